package llm

import "testing"

func TestParseDecisionWithToolCall(t *testing.T) {
	resp := ParseDecision("```json\n{\"response\":\"Looking that up\",\"tool_to_call\":{\"name\":\"manage_crm\",\"arguments\":{\"action\":\"search_customers\",\"name\":\"Dana\"}}}\n```")
	if resp.Text != "Looking that up" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.ToolCall == nil || resp.ToolCall.Name != "manage_crm" {
		t.Fatalf("expected tool call, got %+v", resp.ToolCall)
	}
	if resp.ToolCall.Arguments["name"] != "Dana" {
		t.Fatalf("unexpected arguments: %v", resp.ToolCall.Arguments)
	}
}

func TestParseDecisionNullTool(t *testing.T) {
	resp := ParseDecision(`{"response":"Hello!","tool_to_call":null}`)
	if resp.Text != "Hello!" || resp.ToolCall != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestParseDecisionPlainText(t *testing.T) {
	resp := ParseDecision("  just text  ")
	if resp.Text != "just text" || resp.ToolCall != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestParseDecisionMissingArguments(t *testing.T) {
	resp := ParseDecision(`{"response":"ok","tool_to_call":{"name":"manage_crm"}}`)
	if resp.ToolCall == nil || resp.ToolCall.Arguments == nil {
		t.Fatalf("arguments should default to an empty map: %+v", resp.ToolCall)
	}
}
