package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pissaypratheesh/realtime-console/internal/session"
)

// EnvPrefix is the namespace prefix for all Realtime Console environment
// variables.
const EnvPrefix = "REALTIME_CONSOLE_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	AudioDir   string `yaml:"audio_dir"`
	ExportDir  string `yaml:"export_dir"`

	RealtimeModel string `yaml:"realtime_model"`
	ChatModel     string `yaml:"chat_model"`
	VisionModel   string `yaml:"vision_model"`
	APIBaseURL    string `yaml:"api_base_url"`

	CostLimitUSD  float64 `yaml:"cost_limit_usd"`
	MaxResponses  int     `yaml:"max_responses"`
	InterviewType string  `yaml:"interview_type"`

	ResponseSettleDelay string `yaml:"response_settle_delay"`
	AutoResumeDelay     string `yaml:"auto_resume_delay"`
	InterviewDelay      string `yaml:"interview_delay"`

	MicSampleRates []int `yaml:"mic_sample_rates"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets are loaded from environment variables only and are never
	// written back to YAML.
	OpenAIAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8765",
		DBPath:                "data/realtime-console.db",
		AudioDir:              "data/audio",
		ExportDir:             "data/transcripts",
		RealtimeModel:         "gpt-4o-realtime-preview",
		ChatModel:             "o1-mini",
		VisionModel:           "o4-mini",
		CostLimitUSD:          5.0,
		MaxResponses:          50,
		InterviewType:         "general",
		ResponseSettleDelay:   "100ms",
		AutoResumeDelay:       "500ms",
		InterviewDelay:        "1s",
		MicSampleRates:        []int{24000, 16000, 8000},
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// A missing file is not an error. It returns the config, any validation
// warnings, and an error if the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func parsedDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// ParsedResponseSettleDelay returns the settle delay before an automatic
// response, falling back to the default when the configured value is invalid.
func (c *Config) ParsedResponseSettleDelay() time.Duration {
	return parsedDuration(c.ResponseSettleDelay, 100*time.Millisecond)
}

func (c *Config) ParsedAutoResumeDelay() time.Duration {
	return parsedDuration(c.AutoResumeDelay, 500*time.Millisecond)
}

func (c *Config) ParsedInterviewDelay() time.Duration {
	return parsedDuration(c.InterviewDelay, time.Second)
}

// SampleRateCandidates returns a deduplicated ordered list of capture sample
// rates to try: configured rates first, then the built-in fallbacks.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{24000, 16000, 8000}

	combined := make([]int, 0, len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

// SessionConfig maps the loaded configuration onto the tuning parameters the
// session manager consumes.
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig(c.RealtimeModel)
	sc.ResponseSettleDelay = c.ParsedResponseSettleDelay()
	sc.AutoResumeDelay = c.ParsedAutoResumeDelay()
	sc.InterviewDelay = c.ParsedInterviewDelay()
	if c.InterviewType != "" {
		sc.InterviewType = c.InterviewType
	}
	return sc
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_DIR"); v != "" {
		cfg.AudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}
	if v := os.Getenv(EnvPrefix + "REALTIME_MODEL"); v != "" {
		cfg.RealtimeModel = v
	}
	if v := os.Getenv(EnvPrefix + "CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv(EnvPrefix + "VISION_MODEL"); v != "" {
		cfg.VisionModel = v
	}
	if v := os.Getenv(EnvPrefix + "API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "COST_LIMIT_USD"); v != "" {
		if limit, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && limit > 0 {
			cfg.CostLimitUSD = limit
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_RESPONSES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MaxResponses = n
		}
	}
	if v := os.Getenv(EnvPrefix + "INTERVIEW_TYPE"); v != "" {
		cfg.InterviewType = v
	}
	if v := os.Getenv(EnvPrefix + "RESPONSE_SETTLE_DELAY"); v != "" {
		cfg.ResponseSettleDelay = v
	}
	if v := os.Getenv(EnvPrefix + "AUTO_RESUME_DELAY"); v != "" {
		cfg.AutoResumeDelay = v
	}
	if v := os.Getenv(EnvPrefix + "INTERVIEW_DELAY"); v != "" {
		cfg.InterviewDelay = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv(EnvPrefix + "OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured. Set OPENAI_API_KEY to enable realtime sessions and completions.")
	}
	if _, err := time.ParseDuration(cfg.ResponseSettleDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid response_settle_delay %q. Using default 100ms.", cfg.ResponseSettleDelay))
	}
	if _, err := time.ParseDuration(cfg.AutoResumeDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid auto_resume_delay %q. Using default 500ms.", cfg.AutoResumeDelay))
	}
	if _, err := time.ParseDuration(cfg.InterviewDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid interview_delay %q. Using default 1s.", cfg.InterviewDelay))
	}

	return warnings
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
