// Package providers adapts third-party model SDKs to the agent.Provider
// contract. Each file owns exactly one SDK; the iteration loop never
// imports any of them directly.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/eren23/attocode-core/internal/agent"
	"github.com/eren23/attocode-core/pkg/models"
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicProvider adapts Anthropic's Messages API to agent.Provider.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider constructs an AnthropicProvider. APIKey is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("providers: anthropic API key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), defaultModel: model}, nil
}

var _ agent.Provider = (*AnthropicProvider)(nil)

// Chat sends one non-streaming completion request to Claude.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []models.Message, opts agent.ChatOptions) (*agent.ChatResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}

	var system string
	converted, err := convertMessages(messages, &system)
	if err != nil {
		return nil, fmt.Errorf("providers: anthropic message conversion failed: %w", err)
	}
	params.Messages = converted
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(opts.Tools) > 0 {
		tools, err := convertTools(opts.Tools)
		if err != nil {
			return nil, fmt.Errorf("providers: anthropic tool conversion failed: %w", err)
		}
		params.Tools = tools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err)
	}

	resp := &agent.ChatResponse{
		Usage: models.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(b.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{ID: b.ID, Name: b.Name, Args: args})
		}
	}
	resp.StopReason = mapStopReason(string(msg.StopReason), len(resp.ToolCalls) > 0)
	return resp, nil
}

func mapStopReason(raw string, hasToolCalls bool) agent.StopReason {
	switch raw {
	case "tool_use":
		return agent.StopToolUse
	case "max_tokens":
		return agent.StopMaxTokens
	default:
		if hasToolCalls {
			return agent.StopToolUse
		}
		return agent.StopEndTurn
	}
}

func convertMessages(messages []models.Message, system *string) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if *system != "" {
				*system += "\n"
			}
			*system += m.Content
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			content = append(content, anthropic.NewTextBlock(m.Content))
		}
		if m.Role == models.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
			out = append(out, anthropic.NewUserMessage(content...))
			continue
		}
		for _, tc := range m.ToolCalls {
			content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
		}
		if m.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertTools(tools []agent.ChatTool) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: t.Schema.Parameters,
			Required:   t.Schema.Required,
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("providers: invalid tool schema for %s", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return agent.NewProviderError(apiErr.StatusCode, err)
	}
	return agent.NewProviderError(0, err)
}

// retryDelay is the base delay used when a caller wraps Chat with the
// shared retry.Config; kept here as documentation of what this provider was
// tuned against, since the SDK itself has no retry knobs exposed through
// this adapter.
const retryDelay = time.Second
