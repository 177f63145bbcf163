package llm

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting reported with a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
}

// Result is a finished completion. Content is always populated; Usage may be
// zero when the vendor omits it.
type Result struct {
	Content string
	Usage   Usage
	Model   string
}

// ImageAnalysisSystemPrompt frames every vision call. It is also surfaced in
// the conversation so the user can see what the model was told.
const ImageAnalysisSystemPrompt = `Analyze this image and respond based on category:
CODING QUESTION: Provide JavaScript solution with:

 - Brute force approach (code + time/space complexity)
 - Optimized approach (code + time/space complexity + algorithm explanation)
 - How the optimal algorithm works conceptually
 - Sample input data walkthrough step-by-step
 - Example I/O demonstration

OTHER QUESTION: Answer comprehensively in relevant context
NO QUESTION: Describe image content + predict next logical step/progression if visible like case of system design
Be detailed, technical, and complete in explanations.`

// ImageRequest is one vision call: the user's text, the image as a data URL
// or https URL, and optional prior conversation for context.
type ImageRequest struct {
	Text    string
	Image   string
	History []Message
}

// Client serves text completions and image analysis outside the realtime
// channel. Streaming methods invoke onDelta for each content fragment; a nil
// onDelta disables streaming delivery but not accumulation.
type Client interface {
	Complete(ctx context.Context, messages []Message) (Result, error)
	Stream(ctx context.Context, messages []Message, onDelta func(delta string)) (Result, error)
	AnalyzeImage(ctx context.Context, req ImageRequest, onDelta func(delta string)) (Result, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL     string
	chatModel   string
	visionModel string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

func WithChatModel(model string) Option {
	return func(o *clientOptions) {
		o.chatModel = model
	}
}

func WithVisionModel(model string) Option {
	return func(o *clientOptions) {
		o.visionModel = model
	}
}
