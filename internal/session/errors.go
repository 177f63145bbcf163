package session

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession is returned by Stop and SendEvent when no session is active.
var ErrNoActiveSession = errors.New("no active session")

// ErrSessionActive is returned by Start when a session is already running.
var ErrSessionActive = errors.New("session already active")

// Setup stages, used to categorize Start failures.
const (
	StageToken     = "token"
	StageMedia     = "media"
	StageNegotiate = "negotiate"
)

// StartError wraps a session setup failure with the stage it occurred in.
type StartError struct {
	Stage string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("session setup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// UserMessage returns operator-facing guidance for the failed stage.
func (e *StartError) UserMessage() string {
	switch e.Stage {
	case StageToken:
		return "Could not obtain a session token. Check that the API key is configured and the vendor endpoint is reachable."
	case StageMedia:
		return "Could not access the microphone. Check device permissions and that an input device is connected."
	case StageNegotiate:
		return "Could not establish the realtime connection. Check network access to the vendor endpoint."
	default:
		return "Session setup failed."
	}
}
