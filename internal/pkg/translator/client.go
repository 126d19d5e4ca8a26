package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tacint/sparrow/internal/pkg/utils"
)

// Result keeps the translated content together with the full response envelope.
// Callers use ancillary metadata from the envelope, not just the text
type Result struct {
	Content string
	Resp    *openai.ChatCompletion
}

// Client calls the translation backend
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a translation client.
// A missing endpoint URL is a configuration error, distinct from remote failures
func NewClient(url, key, model string) (*Client, error) {
	if url == "" {
		return nil, utils.NewErrNoConfig("llm.url")
	}
	if model == "" {
		return nil, utils.NewErrNoConfig("llm.model")
	}
	res := Client{model: model}
	res.client = openai.NewClient(option.WithBaseURL(url), option.WithAPIKey(key))
	return &res, nil
}

// Translate sends the prompt to the backend.
// Generation is fully deterministic (temperature 0) - translations
// must be reproducible for identical input
func (cl *Client) Translate(ctx context.Context, userPrompt string) (*Result, error) {
	goapp.Log.Info().Int("chars", len(userPrompt)).Msg("translate")
	resp, err := cl.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(cl.model),
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("can't call translation backend: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return &Result{Content: resp.Choices[0].Message.Content, Resp: resp}, nil
}

// MakePrompt frames source text for translation to English
func MakePrompt(text string) string {
	return fmt.Sprintf(`Instructions: Translate the following content to English. Output only the translated content.
Content: %s`, text)
}

// FormatConversation normalizes translated conversation text:
// lines trimmed, empty lines dropped
func FormatConversation(content string) string {
	lines := strings.Split(content, "\n")
	res := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			res = append(res, t)
		}
	}
	return strings.Join(res, "\n")
}
