package providers

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eren23/attocode-core/internal/agent"
	"github.com/eren23/attocode-core/pkg/models"
)

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected an error when no API key is supplied")
	}
}

func TestConvertOpenAIMessages_ToolResultBecomesToolRoleMessage(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "do the thing"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call-1", Name: "grep", Args: map[string]any{"q": "x"}}}},
		{Role: models.RoleTool, ToolCallID: "call-1", Content: "result text"},
	}
	out := convertOpenAIMessages(msgs)
	if len(out) != 3 {
		t.Fatalf("expected 3 converted messages, got %d", len(out))
	}
	if out[1].ToolCalls[0].Function.Name != "grep" {
		t.Fatalf("assistant tool call name not preserved: %+v", out[1])
	}
	if out[2].Role != openai.ChatMessageRoleTool || out[2].ToolCallID != "call-1" {
		t.Fatalf("tool result message malformed: %+v", out[2])
	}
}

func TestConvertOpenAITools_CarriesSchemaAndRequired(t *testing.T) {
	tools := []agent.ChatTool{
		{
			Name:        "search",
			Description: "search the web",
			Schema: agent.Schema{
				Parameters: map[string]any{"query": map[string]any{"type": "string"}},
				Required:   []string{"query"},
			},
		},
	}
	out := convertOpenAITools(tools)
	if len(out) != 1 || out[0].Function.Name != "search" {
		t.Fatalf("unexpected conversion: %+v", out)
	}
	params := out[0].Function.Parameters.(map[string]any)
	if params["type"] != "object" {
		t.Fatalf("expected object schema type, got %v", params["type"])
	}
	required, ok := params["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "query" {
		t.Fatalf("expected required=[query], got %v", params["required"])
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	cases := []struct {
		reason       openai.FinishReason
		hasToolCalls bool
		want         agent.StopReason
	}{
		{openai.FinishReasonToolCalls, true, agent.StopToolUse},
		{openai.FinishReasonLength, false, agent.StopMaxTokens},
		{openai.FinishReasonStop, false, agent.StopEndTurn},
		{openai.FinishReasonStop, true, agent.StopToolUse},
	}
	for _, c := range cases {
		if got := mapOpenAIFinishReason(c.reason, c.hasToolCalls); got != c.want {
			t.Errorf("mapOpenAIFinishReason(%v, %v) = %v, want %v", c.reason, c.hasToolCalls, got, c.want)
		}
	}
}
