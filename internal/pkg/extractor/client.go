package extractor

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tacint/sparrow/internal/pkg/analysis"
	"github.com/tacint/sparrow/internal/pkg/utils"
)

// ParseError indicates the backend returned a response that violates the
// declared analysis schema. It is kept distinct from transport failures:
// a parse error means the model's output cannot be trusted, not that the
// infrastructure failed
type ParseError struct {
	err error
}

// NewParseError creates new error
func NewParseError(err error) error {
	return &ParseError{err: err}
}

func (e *ParseError) Error() string {
	return "extraction parse error: " + e.err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// Client calls the structured extraction backend
type Client struct {
	client openai.Client
	model  string
	schema map[string]interface{}
}

// NewClient creates an extraction client
func NewClient(url, key, model string) (*Client, error) {
	if url == "" {
		return nil, utils.NewErrNoConfig("llm.url")
	}
	if model == "" {
		return nil, utils.NewErrNoConfig("llm.model")
	}
	res := Client{model: model}
	res.client = openai.NewClient(option.WithBaseURL(url), option.WithAPIKey(key))
	res.schema = GenerateSchema[analysis.ConversationAnalysis]()
	return &res, nil
}

// Extract analyzes the conversation text and returns the structured record.
// The response must strictly conform to the ConversationAnalysis schema -
// a syntactically valid response with wrong typing still fails
func (cl *Client) Extract(ctx context.Context, text string) (*analysis.ConversationAnalysis, error) {
	goapp.Log.Info().Int("chars", len(text)).Msg("extract")
	resp, err := cl.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(cl.model),
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "conversation_analysis",
					Schema: cl.schema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("can't call extraction backend: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	res, err := analysis.Decode([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, NewParseError(err)
	}
	return res, nil
}

const systemInstruction = `Analyze the military conversation and extract detailed tactical information using this structure:

Priority Level: Assess urgency based on tactical situation (High/Medium/Low)

Risk Assessment: Evaluate immediate military threats, enemy movements, and tactical vulnerabilities

Key Insights: Summarize critical military information including enemy force composition and movements, distances and directions, tactical objectives identified, support requirements

Critical Entities: List key military assets, personnel, and locations mentioned

Locations Mentioned: Extract all geographic references, including cities/towns, roads/routes, tactical landmarks

Sentiment Summary: Analyze operational urgency and command dynamics

Source Reliability: Use standard A-F classification based on the conversation's internal consistency:
  A - Completely reliable
  B - Usually reliable
  C - Fairly reliable
  D - Not usually reliable
  E - Unreliable
  F - Reliability cannot be judged

Information Credibility: Use standard 1-6 classification based on the conversation's internal consistency:
  1 - Confirmed by other sources
  2 - Probably true
  3 - Possibly true
  4 - Doubtful
  5 - Improbable
  6 - Truth cannot be judged

Recommended Actions: List tactical recommendations based on the situation

Entity Relationships: Document command structure and unit interactions

Speakers: List all participants in the conversation

Conversation Duration: Estimate length of exchange

Analyzed At: Current timestamp in RFC3339 form with a Z suffix`
