package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
)

// jsonInstruction is appended to the system prompt in JSON mode. The
// messages API has no response format switch.
const jsonInstruction = "You must respond with valid JSON only. Do not include any text outside of the JSON object."

// Anthropic completes prompts with the messages API
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic completer. An empty baseURL uses the
// public API.
func NewAnthropic(apiKey, model, baseURL string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.Config("anthropic API key is not set", nil)
	}
	if model == "" {
		return nil, errors.Config("anthropic model is required", nil)
	}

	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	return &Anthropic{client: anthropic.NewClient(apiKey, opts...), model: model}, nil
}

// Name returns anthropic
func (a *Anthropic) Name() string { return "anthropic" }

// Model returns the model name
func (a *Anthropic) Model() string { return a.model }

// Complete sends one message exchange
func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	prompt := req.User
	temperature := req.Temperature
	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(a.model),
		System:      system,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return Response{}, err
	}

	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text += *block.Text
		}
	}
	if text == "" {
		return Response{}, errors.Parse(fmt.Sprintf("no text in %s response", a.model), nil)
	}

	return Response{
		Text: text,
		Usage: types.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
