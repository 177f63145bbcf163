package realtime

// Inbound event types the dispatcher consumes.
const (
	EventSessionCreated         = "session.created"
	EventResponseCreated        = "response.created"
	EventResponseDone           = "response.done"
	EventResponseTextDelta      = "response.text.delta"
	EventResponseTextDone       = "response.text.done"
	EventAudioTranscriptDelta   = "response.audio_transcript.delta"
	EventAudioTranscriptDone    = "response.audio_transcript.done"
	EventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTranscriptionPartial   = "conversation.item.input_audio_transcription.partial"
	EventTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventError                  = "error"
)

// Outbound event types.
const (
	EventSessionUpdate    = "session.update"
	EventItemCreate       = "conversation.item.create"
	EventResponseCreate   = "response.create"
	EventInputAudioAppend = "input_audio_buffer.append"
)

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type Transcription struct {
	Model string `json:"model"`
}

type SessionConfig struct {
	Instructions            string        `json:"instructions"`
	Modalities              []string      `json:"modalities"`
	InputAudioTranscription Transcription `json:"input_audio_transcription"`
	TurnDetection           TurnDetection `json:"turn_detection"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ResponseParams struct {
	Modalities      []string `json:"modalities"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
}

// ClientEvent is one outbound protocol event. The lifecycle manager stamps
// EventID before sending when absent.
type ClientEvent struct {
	Type     string          `json:"type"`
	EventID  string          `json:"event_id,omitempty"`
	Session  *SessionConfig  `json:"session,omitempty"`
	Item     *Item           `json:"item,omitempty"`
	Response *ResponseParams `json:"response,omitempty"`
	Audio    string          `json:"audio,omitempty"`
}

// NewSessionUpdate builds the session.update configuring instructions,
// whisper transcription and server-side turn detection.
func NewSessionUpdate(instructions string) ClientEvent {
	return ClientEvent{
		Type: EventSessionUpdate,
		Session: &SessionConfig{
			Instructions:            instructions,
			Modalities:              []string{"text", "audio"},
			InputAudioTranscription: Transcription{Model: "whisper-1"},
			TurnDetection: TurnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   300,
				SilenceDurationMS: 500,
			},
		},
	}
}

// NewUserMessage builds a conversation.item.create carrying user text.
func NewUserMessage(text string) ClientEvent {
	return ClientEvent{
		Type: EventItemCreate,
		Item: &Item{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewAudioAppend buffers captured microphone audio, base64-encoded PCM16.
func NewAudioAppend(audioB64 string) ClientEvent {
	return ClientEvent{
		Type:  EventInputAudioAppend,
		Audio: audioB64,
	}
}

// NewResponseCreate requests a text-only response. maxOutputTokens of zero
// leaves the limit unset.
func NewResponseCreate(maxOutputTokens int) ClientEvent {
	return ClientEvent{
		Type: EventResponseCreate,
		Response: &ResponseParams{
			Modalities:      []string{"text"},
			MaxOutputTokens: maxOutputTokens,
		},
	}
}

// Usage is the authoritative token accounting carried by response.done.
type Usage struct {
	InputTextTokens   int `json:"input_text_tokens"`
	OutputTextTokens  int `json:"output_text_tokens"`
	InputAudioTokens  int `json:"input_audio_tokens"`
	OutputAudioTokens int `json:"output_audio_tokens"`
}

type OutputItem struct {
	Type    string        `json:"type"`
	Content []ContentPart `json:"content"`
}

type ResponsePayload struct {
	Usage  *Usage       `json:"usage,omitempty"`
	Output []OutputItem `json:"output,omitempty"`
}

type ErrorInfo struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ServerEvent is one inbound protocol event; Type drives dispatch.
type ServerEvent struct {
	Type       string           `json:"type"`
	EventID    string           `json:"event_id,omitempty"`
	Delta      string           `json:"delta,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
	Response   *ResponsePayload `json:"response,omitempty"`
	Usage      *Usage           `json:"usage,omitempty"`
	Error      *ErrorInfo       `json:"error,omitempty"`
}

// ResponseUsage returns the usage block wherever the event carries it.
func (e ServerEvent) ResponseUsage() *Usage {
	if e.Response != nil && e.Response.Usage != nil {
		return e.Response.Usage
	}
	return e.Usage
}

// FinalText returns the final message text of a response.done event, or ""
// when the event carries none.
func (e ServerEvent) FinalText() string {
	if e.Response == nil {
		return ""
	}
	for _, out := range e.Response.Output {
		if out.Type != "message" {
			continue
		}
		for _, part := range out.Content {
			if part.Type == "text" && part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}
