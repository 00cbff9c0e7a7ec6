package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deskagent/core/internal/backoff"
	"github.com/deskagent/core/internal/toolregistry"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Logger     *slog.Logger
}

// AnthropicClient implements Client over the Anthropic Messages API.
// The API has no server-side JSON-schema response format, so the schema
// is enforced at the prompt level: a rendered instruction block is
// appended to the system prompt and the caller's parse step remains the
// authority on whether the output conforms.
type AnthropicClient struct {
	client     anthropic.Client
	model      string
	maxRetries int
	logger     *slog.Logger
}

// NewAnthropic constructs an AnthropicClient.
func NewAnthropic(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AnthropicClient{
		client:     anthropic.NewClient(opts...),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}, nil
}

// Chat sends one round and returns the assistant reply.
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	result, err := backoff.RetryWithBackoff(ctx, backoff.DefaultPolicy(), c.maxRetries,
		func(attempt int) (*anthropic.Message, error) {
			msg, err := c.client.Messages.New(ctx, params)
			if err != nil {
				if !isRetryable(err) {
					return nil, backoff.Permanent(err)
				}
				c.logger.Warn("anthropic request failed, retrying",
					slog.Int("attempt", attempt), slog.Any("error", err))
				return nil, err
			}
			return msg, nil
		})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return convertAnthropicResponse(result.Value), nil
}

func (c *AnthropicClient) buildParams(req *ChatRequest) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
	}

	system := req.System
	if len(req.ResponseSchema) > 0 {
		system = system + "\n\n" + schemaInstruction(req.ResponseSchema)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for _, m := range req.Messages {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
		}
		if m.ImageBase64 != "" {
			blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", m.ImageBase64))
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	tools, err := convertAnthropicTools(req.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params.Tools = tools

	return params, nil
}

func convertAnthropicTools(specs []toolregistry.Spec) ([]anthropic.ToolUnionParam, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", spec.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s", spec.Name)
		}
		param.OfTool.Description = anthropic.String(spec.Description)
		out = append(out, param)
	}
	return out, nil
}

func convertAnthropicResponse(msg *anthropic.Message) *ChatResponse {
	resp := &ChatResponse{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			input, err := json.Marshal(variant.Input)
			if err != nil {
				input = []byte("{}")
			}
			resp.ToolRequests = append(resp.ToolRequests, ToolRequest{
				ID:     variant.ID,
				Name:   variant.Name,
				Params: input,
			})
		}
	}
	resp.Text = text.String()
	return resp
}

// schemaInstruction renders the prompt-level fallback for providers (or
// endpoints) without native structured output.
func schemaInstruction(schema json.RawMessage) string {
	return "Respond with a single JSON object conforming to this JSON Schema, with no surrounding prose:\n```json\n" +
		string(schema) + "\n```"
}
