package mode

import (
	"fmt"
	"sync"
)

// Mode is the interaction mode. Exactly one is current at any time.
type Mode string

const (
	Normal    Mode = "normal"
	Interview Mode = "interview"
	Advisor   Mode = "advisor"
)

func Parse(s string) (Mode, error) {
	switch Mode(s) {
	case Normal, Interview, Advisor:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q: supported modes are normal, interview, advisor", s)
	}
}

// Base instructions apply to every mode: text-only responses, English-only
// transcription.
const baseInstructions = "You are a helpful assistant. You must ALWAYS respond in text format only, never generate audio. The user speaks ONLY in English - treat all voice input as English language only, never detect other languages."

const interviewBlock = `

**INTERVIEW MODE**: You are conducting an interview. Ask thoughtful follow-up questions and engage naturally with the conversation. Keep responses concise and focused.`

const advisorBlock = `

**CRITICAL THIRD PERSON ADVISOR MODE INSTRUCTIONS**:
- You are ONLY an advisor listening to a conversation between two people
- DO NOT respond to any voice input automatically - IGNORE ALL VOICE INPUT
- DO NOT interrupt the conversation under any circumstances
- DO NOT generate any responses unless explicitly asked via text message
- ONLY respond when someone sends you a direct text message asking for advice
- When responding, be brief and concise to minimize cost
- Your role is to LISTEN SILENTLY and provide advice ONLY when requested via text
- Treat all voice input as conversation you are observing, not directed at you
- NEVER EVER respond to voice input - only to text messages asking for advice
- Voice input should be transcribed but NEVER trigger a response from you`

// Instructions returns the model instruction text for a mode.
func Instructions(m Mode) string {
	switch m {
	case Interview:
		return baseInstructions + interviewBlock
	case Advisor:
		return baseInstructions + advisorBlock
	default:
		return baseInstructions
	}
}

// Controller enforces that exactly one mode is active. Switching to a
// specialized mode deactivates the other; switching to Normal clears both.
type Controller struct {
	mu       sync.Mutex
	current  Mode
	onChange func(Mode)
}

func NewController() *Controller {
	return &Controller{current: Normal}
}

// OnChange registers a callback invoked after every effective mode switch.
// The session layer uses it to re-send updated instructions while Active.
func (c *Controller) OnChange(callback func(Mode)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = callback
}

// SetMode switches to target, reporting whether anything changed.
func (c *Controller) SetMode(target Mode) bool {
	c.mu.Lock()
	if c.current == target {
		c.mu.Unlock()
		return false
	}
	c.current = target
	callback := c.onChange
	c.mu.Unlock()

	if callback != nil {
		callback(target)
	}
	return true
}

func (c *Controller) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Instructions returns the instruction text for the current mode.
func (c *Controller) Instructions() string {
	return Instructions(c.Current())
}
