package interview

import (
	"fmt"
	"strings"
)

// Interview types a session can be configured for.
const (
	TypeGeneral    = "general"
	TypeTechnical  = "technical"
	TypeBehavioral = "behavioral"
	TypePanel      = "panel"
)

// BuildPrompt renders a response context into the natural-language
// instruction sent to the model when the analyzer decides to respond.
func BuildPrompt(rc ResponseContext, interviewType string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "I'm in an interview setting. The interviewer just asked: %q. ", rc.Question)

	if ctx := strings.TrimSpace(rc.Context); ctx != "" && ctx != rc.Question {
		fmt.Fprintf(&b, "Recent conversation context: %q. ", ctx)
	}

	switch rc.Style {
	case "experience_focused":
		b.WriteString("Please provide a professional response highlighting relevant experience and skills. ")
	case "technical_explanation":
		b.WriteString("Please provide a clear technical explanation with examples if appropriate. ")
	case "example_based":
		b.WriteString("Please provide a specific example or case study to illustrate the point. ")
	case "motivation_focused":
		b.WriteString("Please provide a thoughtful response about motivations and goals. ")
	default:
		b.WriteString("Please provide a professional and appropriate response. ")
	}

	switch interviewType {
	case TypeTechnical:
		b.WriteString("This is a technical interview, so focus on technical aspects and problem-solving. ")
	case TypeBehavioral:
		b.WriteString("This is a behavioral interview, so use the STAR method (Situation, Task, Action, Result) if applicable. ")
	case TypePanel:
		b.WriteString("This is a panel interview with multiple interviewers. ")
	}

	b.WriteString("Keep the response concise, professional, and directly address the question asked.")
	return b.String()
}
