package modelclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deskagent/core/internal/backoff"
	"github.com/deskagent/core/internal/toolregistry"
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Logger     *slog.Logger
}

// OpenAIClient implements Client over the OpenAI chat completions API.
// Unlike the Anthropic adapter it can hand the response schema to the
// provider directly via the json_schema response format, so the model is
// constrained server-side and the parse step only confirms.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	maxRetries int
	logger     *slog.Logger
}

// NewOpenAI constructs an OpenAIClient.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}, nil
}

// Chat sends one round and returns the assistant reply.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	chatReq := c.buildRequest(req)

	result, err := backoff.RetryWithBackoff(ctx, backoff.DefaultPolicy(), c.maxRetries,
		func(attempt int) (openai.ChatCompletionResponse, error) {
			resp, err := c.client.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				if !isRetryable(err) {
					return openai.ChatCompletionResponse{}, backoff.Permanent(err)
				}
				c.logger.Warn("openai request failed, retrying",
					slog.Int("attempt", attempt), slog.Any("error", err))
				return openai.ChatCompletionResponse{}, err
			}
			return resp, nil
		})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	return convertOpenAIResponse(result.Value)
}

func (c *OpenAIClient) buildRequest(req *ChatRequest) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{Model: c.model}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: openAIRole(m.Role)}
		if m.ImageBase64 != "" {
			parts := []openai.ChatMessagePart{}
			if m.Text != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: m.Text,
				})
			}
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/jpeg;base64," + m.ImageBase64,
				},
			})
			msg.MultiContent = parts
		} else {
			msg.Content = m.Text
		}
		chatReq.Messages = append(chatReq.Messages, msg)
	}

	chatReq.Tools = convertOpenAITools(req.Tools)

	if len(req.ResponseSchema) > 0 {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "decision_bundle",
				Schema: req.ResponseSchema,
			},
		}
	}

	return chatReq
}

func openAIRole(r Role) string {
	switch r {
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func convertOpenAITools(specs []toolregistry.Spec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return out
}

func convertOpenAIResponse(resp openai.ChatCompletionResponse) (*ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}
	choice := resp.Choices[0].Message

	out := &ChatResponse{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		out.ToolRequests = append(out.ToolRequests, ToolRequest{
			ID:     tc.ID,
			Name:   tc.Function.Name,
			Params: []byte(tc.Function.Arguments),
		})
	}
	return out, nil
}
