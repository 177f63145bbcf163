package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultChatModel   = "o1-mini"
	defaultVisionModel = "o4-mini"
)

type openAIClient struct {
	client      *openai.Client
	chatModel   string
	visionModel string
}

// NewOpenAI builds the completion client used for chat fallback, advice
// formatting and image analysis.
func NewOpenAI(apiKey string, opts ...Option) Client {
	o := &clientOptions{
		chatModel:   defaultChatModel,
		visionModel: defaultVisionModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	config := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}

	return &openAIClient{
		client:      openai.NewClientWithConfig(config),
		chatModel:   o.chatModel,
		visionModel: o.visionModel,
	}
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return msgs
}

func usageFrom(u openai.Usage) Usage {
	out := Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	}
	if u.CompletionTokensDetails != nil {
		out.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return out
}

func (c *openAIClient) Complete(ctx context.Context, messages []Message) (Result, error) {
	return c.complete(ctx, c.chatModel, toOpenAI(messages))
}

func (c *openAIClient) complete(ctx context.Context, model string, msgs []openai.ChatCompletionMessage) (Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("chat completion: no choices in response")
	}

	return Result{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage:   usageFrom(resp.Usage),
		Model:   resp.Model,
	}, nil
}

// Stream runs a streaming completion. If the stream breaks after content has
// arrived, the partial content is returned as the result; if it breaks before
// any content, one non-streaming retry is attempted.
func (c *openAIClient) Stream(ctx context.Context, messages []Message, onDelta func(string)) (Result, error) {
	return c.streamWithFallback(ctx, c.chatModel, toOpenAI(messages), onDelta)
}

func (c *openAIClient) streamWithFallback(ctx context.Context, model string, msgs []openai.ChatCompletionMessage, onDelta func(string)) (Result, error) {
	res, err := c.stream(ctx, model, msgs, onDelta)
	if err == nil {
		return res, nil
	}

	if res.Content != "" {
		slog.Warn("completion stream interrupted, keeping partial content", "model", model, "error", err)
		return res, nil
	}

	slog.Warn("completion stream failed, retrying without streaming", "model", model, "error", err)
	res, err = c.complete(ctx, model, msgs)
	if err != nil {
		return Result{}, err
	}
	if onDelta != nil {
		onDelta(res.Content)
	}
	return res, nil
}

func (c *openAIClient) stream(ctx context.Context, model string, msgs []openai.ChatCompletionMessage, onDelta func(string)) (Result, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         model,
		Messages:      msgs,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return Result{}, fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	var b strings.Builder
	res := Result{Model: model}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Content = strings.TrimSpace(b.String())
			return res, fmt.Errorf("read completion stream: %w", err)
		}

		if chunk.Usage != nil {
			res.Usage = usageFrom(*chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	res.Content = strings.TrimSpace(b.String())
	return res, nil
}

// AnalyzeImage sends an image with its text and prior conversation to the
// vision model, framed by the image-analysis system prompt.
func (c *openAIClient) AnalyzeImage(ctx context.Context, req ImageRequest, onDelta func(string)) (Result, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: ImageAnalysisSystemPrompt,
	})
	for _, m := range req.History {
		switch m.Role {
		case openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Text},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    req.Image,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	})
	return c.streamWithFallback(ctx, c.visionModel, msgs, onDelta)
}
