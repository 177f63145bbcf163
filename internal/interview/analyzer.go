package interview

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

const historyLimit = 20

var questionPatterns = []*regexp.Regexp{
	// Direct question words.
	regexp.MustCompile(`(?i)\b(what|how|why|when|where|who|which|whose|whom)\b`),
	// Modal question phrases.
	regexp.MustCompile(`(?i)\b(can you|could you|would you|will you|do you|did you|have you|are you|is it|was it)\b`),
	// Interview-specific imperatives.
	regexp.MustCompile(`(?i)\b(tell me about|describe|explain|walk me through|give me an example)\b`),
	// Opinion and experience questions.
	regexp.MustCompile(`(?i)\b(what's your|how do you|what would you|how would you)\b`),
	// Clarification requests.
	regexp.MustCompile(`(?i)\b(could you clarify|what do you mean|can you elaborate)\b`),
}

var interviewerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(next question|moving on|let's talk about|another question)\b`),
	regexp.MustCompile(`(?i)\b(thank you|thanks|okay|alright|good|great|excellent)\b.*\b(now|next|so)\b`),
	regexp.MustCompile(`(?i)\b(final question|last question|one more thing)\b`),
}

var formalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(we're looking for|we need|the role requires|this position)\b`),
	regexp.MustCompile(`(?i)\b(our company|our team|we offer|we provide)\b`),
	regexp.MustCompile(`(?i)\b(interview|position|role|candidate|experience|qualifications)\b`),
}

// Trailing words that often carry rising intonation.
var risingWords = []string{"right", "okay", "yes", "no", "correct", "true", "false"}

var topicKeywords = []string{
	"experience", "background", "technical", "project", "team", "challenge",
	"achievement", "goal", "skill", "technology", "role", "responsibility",
}

type QuestionSignal struct {
	Detected   bool    `json:"detected"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence"`
}

type InterviewerSignal struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
}

type FlowSignals struct {
	RecentQuestions int    `json:"recent_questions"`
	SpeakerChanges  int    `json:"speaker_changes"`
	Pace            string `json:"pace"`
	TopicShift      bool   `json:"topic_shift"`
}

// ResponseContext carries everything the prompt builder needs to synthesize
// a response-generation instruction.
type ResponseContext struct {
	Question              string
	Context               string
	QuestionType          string
	InterviewerConfidence float64
	Style                 string
}

type Analysis struct {
	Transcript    string
	Timestamp     time.Time
	Question      QuestionSignal
	Interviewer   InterviewerSignal
	Flow          FlowSignals
	ShouldRespond bool
	Confidence    float64
	Reason        string
	Response      *ResponseContext
}

// Analyzer classifies inbound transcripts in interview mode and decides
// whether an automatic candidate response is warranted. It keeps a bounded
// history of analyzed transcripts per session.
type Analyzer struct {
	mu      sync.Mutex
	history []Analysis
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze classifies one finished transcript.
func (a *Analyzer) Analyze(transcript string, timestamp time.Time) Analysis {
	a.mu.Lock()
	defer a.mu.Unlock()

	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return Analysis{Timestamp: timestamp, Reason: "empty_transcript"}
	}

	analysis := Analysis{
		Transcript:  trimmed,
		Timestamp:   timestamp,
		Question:    detectQuestion(trimmed),
		Interviewer: detectInterviewer(trimmed),
	}
	analysis.Flow = a.flowSignals(trimmed)

	a.history = append(a.history, analysis)
	if len(a.history) > historyLimit {
		a.history = a.history[len(a.history)-historyLimit:]
	}

	a.decide(&analysis)
	return analysis
}

// Reset clears the history; called when interview mode is (re)activated.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

func detectQuestion(transcript string) QuestionSignal {
	text := strings.ToLower(strings.TrimSpace(transcript))

	if strings.HasSuffix(text, "?") {
		return QuestionSignal{Detected: true, Type: "punctuation", Confidence: 0.9}
	}

	for _, pattern := range questionPatterns {
		if pattern.MatchString(text) {
			return QuestionSignal{Detected: true, Type: "pattern", Confidence: 0.8}
		}
	}

	for _, word := range risingWords {
		if strings.HasSuffix(text, word) {
			return QuestionSignal{Detected: true, Type: "intonation", Confidence: 0.6}
		}
	}

	return QuestionSignal{}
}

func detectInterviewer(transcript string) InterviewerSignal {
	text := strings.ToLower(transcript)

	for _, pattern := range interviewerPatterns {
		if pattern.MatchString(text) {
			return InterviewerSignal{Detected: true, Confidence: 0.9}
		}
	}
	for _, pattern := range formalPatterns {
		if pattern.MatchString(text) {
			return InterviewerSignal{Detected: true, Confidence: 0.7}
		}
	}
	return InterviewerSignal{Confidence: 0.3}
}

func (a *Analyzer) flowSignals(transcript string) FlowSignals {
	recent := a.history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	flow := FlowSignals{Pace: pace(recent)}
	for _, entry := range recent {
		if entry.Question.Detected {
			flow.RecentQuestions++
		}
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Interviewer.Detected != recent[i-1].Interviewer.Detected {
			flow.SpeakerChanges++
		}
	}
	flow.TopicShift = topicShift(transcript, recent)
	return flow
}

func pace(recent []Analysis) string {
	if len(recent) < 2 {
		return "unknown"
	}
	span := recent[len(recent)-1].Timestamp.Sub(recent[0].Timestamp)
	if span <= 0 {
		return "fast"
	}
	entriesPerMinute := float64(len(recent)) / span.Minutes()
	switch {
	case entriesPerMinute > 10:
		return "fast"
	case entriesPerMinute > 5:
		return "normal"
	default:
		return "slow"
	}
}

func topicShift(transcript string, recent []Analysis) bool {
	if len(recent) == 0 {
		return false
	}

	current := matchedTopics(transcript)
	if len(current) == 0 {
		return false
	}

	last := recent
	if len(last) > 2 {
		last = last[len(last)-2:]
	}
	past := make(map[string]bool)
	for _, entry := range last {
		for _, topic := range matchedTopics(entry.Transcript) {
			past[topic] = true
		}
	}

	common := 0
	for _, topic := range current {
		if past[topic] {
			common++
		}
	}
	// Below 50% keyword overlap counts as a topic shift.
	return float64(common) < float64(len(current))*0.5
}

func matchedTopics(transcript string) []string {
	text := strings.ToLower(transcript)
	var topics []string
	for _, keyword := range topicKeywords {
		if strings.Contains(text, keyword) {
			topics = append(topics, keyword)
		}
	}
	return topics
}

// decide applies the response policy in priority order.
func (a *Analyzer) decide(analysis *Analysis) {
	if !analysis.Question.Detected {
		analysis.Reason = "no_question_detected"
		return
	}

	switch {
	case analysis.Question.Confidence > 0.8 && analysis.Interviewer.Detected:
		analysis.ShouldRespond = true
		analysis.Confidence = 0.9
		analysis.Reason = "clear_interviewer_question"
	case analysis.Question.Confidence > 0.7 && analysis.Flow.RecentQuestions > 0:
		analysis.ShouldRespond = true
		analysis.Confidence = 0.7
		analysis.Reason = "likely_question_in_interview_context"
	case analysis.Question.Confidence > 0.5 && a.recentInterviewActivity():
		analysis.ShouldRespond = true
		analysis.Confidence = 0.5
		analysis.Reason = "possible_question_in_interview"
	default:
		analysis.Reason = "insufficient_confidence"
		return
	}

	analysis.Response = a.responseContext(analysis)
}

func (a *Analyzer) recentInterviewActivity() bool {
	recent := a.history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for _, entry := range recent {
		if entry.Question.Detected || entry.Interviewer.Detected {
			return true
		}
	}
	return false
}

func (a *Analyzer) responseContext(analysis *Analysis) *ResponseContext {
	recent := a.history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	parts := make([]string, 0, len(recent))
	for _, entry := range recent {
		parts = append(parts, entry.Transcript)
	}

	return &ResponseContext{
		Question:              analysis.Transcript,
		Context:               strings.Join(parts, " "),
		QuestionType:          analysis.Question.Type,
		InterviewerConfidence: analysis.Interviewer.Confidence,
		Style:                 responseStyle(analysis.Transcript),
	}
}

func responseStyle(transcript string) string {
	text := strings.ToLower(transcript)
	switch {
	case strings.Contains(text, "experience") || strings.Contains(text, "background"):
		return "experience_focused"
	case strings.Contains(text, "technical") || strings.Contains(text, "how do you"):
		return "technical_explanation"
	case strings.Contains(text, "example") || strings.Contains(text, "tell me about"):
		return "example_based"
	case strings.Contains(text, "why") || strings.Contains(text, "what motivates"):
		return "motivation_focused"
	default:
		return "general_professional"
	}
}
