package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/eren23/attocode-core/internal/agent"
	"github.com/eren23/attocode-core/pkg/models"
)

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// BedrockProvider adapts the Converse API to agent.Provider. Unlike the
// Anthropic and OpenAI adapters it reaches AWS through the default or
// explicit credential chain rather than a bearer API key.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// NewBedrockProvider constructs a BedrockProvider, loading AWS config from
// the supplied credentials or, if empty, the default provider chain.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("providers: bedrock failed to load AWS config: %w", err)
	}
	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

var _ agent.Provider = (*BedrockProvider)(nil)

// Chat sends one non-streaming Converse request.
func (p *BedrockProvider) Chat(ctx context.Context, messages []models.Message, opts agent.ChatOptions) (*agent.ChatResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	var system []types.SystemContentBlock
	converted := convertBedrockMessages(messages, &system)

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: converted,
		System:   system,
	}
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		inf := &types.InferenceConfiguration{}
		if opts.MaxTokens > 0 {
			mt := int32(opts.MaxTokens)
			inf.MaxTokens = &mt
		}
		if opts.Temperature > 0 {
			t := float32(opts.Temperature)
			inf.Temperature = &t
		}
		input.InferenceConfig = inf
	}
	if len(opts.Tools) > 0 {
		input.ToolConfig = convertBedrockTools(opts.Tools)
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, wrapBedrockError(err)
	}

	resp := &agent.ChatResponse{}
	if out.Usage != nil {
		resp.Usage = models.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}

	msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("providers: bedrock returned no message output")
	}
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Content += b.Value
		case *types.ContentBlockMemberToolUse:
			var args map[string]any
			if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
				args = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Name: aws.ToString(b.Value.Name),
				Args: args,
			})
		}
	}
	resp.StopReason = mapBedrockStopReason(out.StopReason, len(resp.ToolCalls) > 0)
	return resp, nil
}

func mapBedrockStopReason(reason types.StopReason, hasToolCalls bool) agent.StopReason {
	switch reason {
	case types.StopReasonToolUse:
		return agent.StopToolUse
	case types.StopReasonMaxTokens:
		return agent.StopMaxTokens
	default:
		if hasToolCalls {
			return agent.StopToolUse
		}
		return agent.StopEndTurn
	}
}

func convertBedrockMessages(messages []models.Message, system *[]types.SystemContentBlock) []types.Message {
	var out []types.Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			*system = append(*system, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}

		var content []types.ContentBlock
		if m.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: m.Content})
		}
		if m.Role == models.RoleTool {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
				},
			})
		}
		for _, tc := range m.ToolCalls {
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(tc.Args),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out
}

func convertBedrockTools(tools []agent.ChatTool) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		schemaDoc := map[string]any{
			"type":       "object",
			"properties": t.Schema.Parameters,
		}
		if len(t.Schema.Required) > 0 {
			schemaDoc["required"] = t.Schema.Required
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDoc)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

func wrapBedrockError(err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return agent.NewProviderError(respErr.HTTPStatusCode(), err)
	}
	return agent.NewProviderError(0, err)
}
