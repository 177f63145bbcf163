package cost

import (
	"math"
	"time"
)

// Prices are USD per 1000 tokens unless noted otherwise.
const (
	RealtimeModel = "gpt-4o-realtime-preview"
	ChatModel     = "o1-mini"
	WhisperModel  = "whisper-1"

	realtimeInputTextPer1K   = 0.005
	realtimeOutputTextPer1K  = 0.02
	realtimeInputAudioPer1K  = 0.10
	realtimeOutputAudioPer1K = 0.20

	chatInputPer1K     = 0.003
	chatOutputPer1K    = 0.012
	chatReasoningPer1K = 0.003

	whisperPerMinute = 0.006

	// Streaming estimates approximate tokens from character length before
	// authoritative usage arrives.
	charsPerToken = 4

	// Audio runs at roughly 1500 tokens per minute.
	audioTokensPerMinute = 1500
)

type Kind string

const (
	KindRealtimeResponse   Kind = "realtime_response"
	KindChatCompletion     Kind = "chat_completion"
	KindImageAnalysis      Kind = "image_analysis"
	KindAudioTranscription Kind = "audio_transcription"
)

// RealtimeUsage mirrors the usage block of a realtime response.done event.
type RealtimeUsage struct {
	InputTextTokens   int `json:"input_text_tokens"`
	OutputTextTokens  int `json:"output_text_tokens"`
	InputAudioTokens  int `json:"input_audio_tokens"`
	OutputAudioTokens int `json:"output_audio_tokens"`
}

// ChatUsage mirrors the usage block of a chat completion response.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens"`
}

// Record is one priced API interaction. Immutable once created.
type Record struct {
	Kind      Kind           `json:"kind"`
	Model     string         `json:"model"`
	Tokens    map[string]int `json:"tokens,omitempty"`
	Total     float64        `json:"total"`
	CreatedAt time.Time      `json:"created_at"`
}

// RealtimeBreakdown is the per-category cost of one realtime response.
type RealtimeBreakdown struct {
	InputText   float64
	OutputText  float64
	InputAudio  float64
	OutputAudio float64
	Total       float64
}

// ChatBreakdown is the per-category cost of one chat completion.
type ChatBreakdown struct {
	Input     float64
	Output    float64
	Reasoning float64
	Total     float64
}

func Realtime(u RealtimeUsage) RealtimeBreakdown {
	b := RealtimeBreakdown{
		InputText:   float64(u.InputTextTokens) * realtimeInputTextPer1K / 1000,
		OutputText:  float64(u.OutputTextTokens) * realtimeOutputTextPer1K / 1000,
		InputAudio:  float64(u.InputAudioTokens) * realtimeInputAudioPer1K / 1000,
		OutputAudio: float64(u.OutputAudioTokens) * realtimeOutputAudioPer1K / 1000,
	}
	b.Total = b.InputText + b.OutputText + b.InputAudio + b.OutputAudio
	return b
}

func Chat(u ChatUsage) ChatBreakdown {
	b := ChatBreakdown{
		Input:     float64(u.PromptTokens) * chatInputPer1K / 1000,
		Output:    float64(u.CompletionTokens) * chatOutputPer1K / 1000,
		Reasoning: float64(u.ReasoningTokens) * chatReasoningPer1K / 1000,
	}
	b.Total = b.Input + b.Output + b.Reasoning
	return b
}

// Whisper prices transcription by duration in minutes.
func Whisper(durationMinutes float64) float64 {
	return durationMinutes * whisperPerMinute
}

// EstimateTokens approximates a token count from text length.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

// StreamingDelta estimates the output-text cost of one streamed delta.
func StreamingDelta(delta string) float64 {
	return float64(EstimateTokens(delta)) * realtimeOutputTextPer1K / 1000
}

// TranscriptEstimate approximates the input-audio cost of a finished
// transcript, used before authoritative usage arrives.
func TranscriptEstimate(transcript string) (tokens int, total float64) {
	tokens = EstimateTokens(transcript)
	return tokens, float64(tokens) * realtimeInputAudioPer1K / 1000
}

// EstimateAudioMinutes converts audio tokens to an approximate duration.
func EstimateAudioMinutes(audioTokens int) float64 {
	return float64(audioTokens) / audioTokensPerMinute
}

func RealtimeRecord(u RealtimeUsage, now time.Time) Record {
	b := Realtime(u)
	return Record{
		Kind:  KindRealtimeResponse,
		Model: RealtimeModel,
		Tokens: map[string]int{
			"input_text_tokens":   u.InputTextTokens,
			"output_text_tokens":  u.OutputTextTokens,
			"input_audio_tokens":  u.InputAudioTokens,
			"output_audio_tokens": u.OutputAudioTokens,
		},
		Total:     b.Total,
		CreatedAt: now,
	}
}

func ChatRecord(kind Kind, model string, u ChatUsage, now time.Time) Record {
	b := Chat(u)
	return Record{
		Kind:  kind,
		Model: model,
		Tokens: map[string]int{
			"prompt_tokens":     u.PromptTokens,
			"completion_tokens": u.CompletionTokens,
			"reasoning_tokens":  u.ReasoningTokens,
		},
		Total:     b.Total,
		CreatedAt: now,
	}
}

func TranscriptionRecord(transcript string, now time.Time) Record {
	tokens, total := TranscriptEstimate(transcript)
	return Record{
		Kind:      KindAudioTranscription,
		Model:     RealtimeModel,
		Tokens:    map[string]int{"input_audio_tokens": tokens},
		Total:     total,
		CreatedAt: now,
	}
}

// Summary aggregates a list of records.
type Summary struct {
	Total        float64          `json:"total"`
	ByKind       map[Kind]float64 `json:"by_kind"`
	RequestCount int              `json:"request_count"`
}

func Aggregate(records []Record) Summary {
	s := Summary{ByKind: make(map[Kind]float64, 4)}
	for _, r := range records {
		s.Total += r.Total
		s.ByKind[r.Kind] += r.Total
		s.RequestCount++
	}
	return s
}
