package interview

import (
	"strings"
	"testing"
	"time"
)

func TestEmptyTranscript(t *testing.T) {
	a := NewAnalyzer()
	got := a.Analyze("   ", time.Now())

	if got.ShouldRespond {
		t.Error("responded to empty transcript")
	}
	if got.Reason != "empty_transcript" {
		t.Errorf("reason = %q, want empty_transcript", got.Reason)
	}
}

func TestDetectQuestion(t *testing.T) {
	tests := []struct {
		transcript string
		detected   bool
		qType      string
		confidence float64
	}{
		{"What do you think about Go?", true, "punctuation", 0.9},
		{"tell me about your last project", true, "pattern", 0.8},
		{"can you walk me through the design", true, "pattern", 0.8},
		{"so that approach is correct", true, "intonation", 0.6},
		{"I worked there for five years.", false, "", 0},
	}

	for _, tt := range tests {
		got := detectQuestion(tt.transcript)
		if got.Detected != tt.detected || got.Type != tt.qType || got.Confidence != tt.confidence {
			t.Errorf("detectQuestion(%q) = %+v, want {%v %s %v}",
				tt.transcript, got, tt.detected, tt.qType, tt.confidence)
		}
	}
}

func TestDetectInterviewer(t *testing.T) {
	tests := []struct {
		transcript string
		detected   bool
		confidence float64
	}{
		{"okay, moving on to the next topic", true, 0.9},
		{"the role requires strong communication", true, 0.7},
		{"I really liked the food there", false, 0.3},
	}

	for _, tt := range tests {
		got := detectInterviewer(tt.transcript)
		if got.Detected != tt.detected || got.Confidence != tt.confidence {
			t.Errorf("detectInterviewer(%q) = %+v", tt.transcript, got)
		}
	}
}

func TestClearInterviewerQuestion(t *testing.T) {
	a := NewAnalyzer()
	got := a.Analyze("Next question: what does this position mean to you?", time.Now())

	if !got.ShouldRespond {
		t.Fatalf("should respond, reason = %q", got.Reason)
	}
	if got.Confidence != 0.9 || got.Reason != "clear_interviewer_question" {
		t.Errorf("confidence = %v, reason = %q", got.Confidence, got.Reason)
	}
	if got.Response == nil {
		t.Fatal("no response context synthesized")
	}
	if got.Response.Question != got.Transcript {
		t.Errorf("response question = %q", got.Response.Question)
	}
}

func TestQuestionInFlowContext(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()

	// Seed the flow with a prior question.
	a.Analyze("What is your name?", now)

	// A trailing "?" scores 0.9 but no interviewer signal; the flow rule fires.
	got := a.Analyze("and the deadline was tight?", now.Add(5*time.Second))
	if !got.ShouldRespond || got.Reason != "likely_question_in_interview_context" {
		t.Errorf("analysis = %+v", got)
	}
	if got.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", got.Confidence)
	}
}

func TestNonQuestionNeverResponds(t *testing.T) {
	a := NewAnalyzer()
	got := a.Analyze("I spent three months refactoring the billing system.", time.Now())

	if got.ShouldRespond {
		t.Error("responded to a statement")
	}
	if got.Reason != "no_question_detected" {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestHistoryBounded(t *testing.T) {
	a := NewAnalyzer()
	for i := 0; i < 30; i++ {
		a.Analyze("What about this?", time.Now())
	}
	if len(a.history) != historyLimit {
		t.Errorf("history = %d entries, want %d", len(a.history), historyLimit)
	}

	a.Reset()
	if len(a.history) != 0 {
		t.Error("history survived reset")
	}
}

func TestResponseStyle(t *testing.T) {
	tests := []struct {
		transcript string
		want       string
	}{
		{"tell me about your experience with Go", "experience_focused"},
		{"how do you debug a deadlock", "technical_explanation"},
		{"give me an example of a hard bug", "example_based"},
		{"why did you leave your last job", "motivation_focused"},
		{"what is your name", "general_professional"},
	}
	for _, tt := range tests {
		if got := responseStyle(tt.transcript); got != tt.want {
			t.Errorf("responseStyle(%q) = %q, want %q", tt.transcript, got, tt.want)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	rc := ResponseContext{
		Question: "How do you test concurrent code?",
		Context:  "earlier talk about testing How do you test concurrent code?",
		Style:    "technical_explanation",
	}

	prompt := BuildPrompt(rc, TypeTechnical)
	for _, want := range []string{
		"How do you test concurrent code?",
		"clear technical explanation",
		"technical interview",
		"Keep the response concise",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	behavioral := BuildPrompt(rc, TypeBehavioral)
	if !strings.Contains(behavioral, "STAR method") {
		t.Error("behavioral prompt missing STAR directive")
	}
}

func TestPace(t *testing.T) {
	now := time.Now()
	fast := []Analysis{
		{Timestamp: now},
		{Timestamp: now.Add(2 * time.Second)},
		{Timestamp: now.Add(4 * time.Second)},
	}
	if got := pace(fast); got != "fast" {
		t.Errorf("pace = %q, want fast", got)
	}

	slow := []Analysis{
		{Timestamp: now},
		{Timestamp: now.Add(2 * time.Minute)},
	}
	if got := pace(slow); got != "slow" {
		t.Errorf("pace = %q, want slow", got)
	}

	if got := pace([]Analysis{{Timestamp: now}}); got != "unknown" {
		t.Errorf("pace = %q, want unknown", got)
	}
}

func TestTopicShift(t *testing.T) {
	history := []Analysis{{Transcript: "my experience with the team"}}

	if !topicShift("the technology stack and your skill set", history) {
		t.Error("expected topic shift for disjoint keywords")
	}
	if topicShift("more about my experience with the team", history) {
		t.Error("unexpected topic shift for overlapping keywords")
	}
	if topicShift("nothing keyword-like here", history) {
		t.Error("topic shift without any current topics")
	}
}
