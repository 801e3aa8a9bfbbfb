package prompt

import (
	"fmt"
	"strings"
	"testing"

	"AgentDesk/internal/knowledge"
	"AgentDesk/internal/tool"
)

func TestBuildDecisionOnlyListsActiveTools(t *testing.T) {
	tools := tool.ActiveTools(tool.MustDefault(), []tool.Integration{tool.IntegrationCRM})
	text, err := BuildDecision(DecisionInput{
		Persona:   Persona{Name: "Nova", Personality: "upbeat"},
		History:   []Line{{Sender: "user", Text: "hi"}, {Sender: "agent", Text: "hello"}},
		Tools:     tools,
		Utterance: "Who is Dana Levi?",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, want := range []string{
		"You are Nova, an AI assistant with this personality: upbeat.",
		`"name": "manage_crm"`,
		"always use search_customers with name",
		"user: hi\nagent: hello\n",
		knowledge.EmptyText,
		`"Who is Dana Levi?"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("prompt missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, `"name": "manage_gmail"`) {
		t.Fatalf("inactive tool leaked into prompt")
	}
}

func TestBuildDecisionKeepsRulesWithoutCRM(t *testing.T) {
	tools := tool.ActiveTools(tool.MustDefault(), []tool.Integration{tool.IntegrationGoogle})
	text, err := BuildDecision(DecisionInput{Tools: tools, Knowledge: "File: a\nContent: b", Utterance: "x"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(text, "Critical rules for customer records") {
		t.Fatalf("customer rules must be present with a google-only tool set:\n%s", text)
	}
	for i, rule := range crmRules {
		if !strings.Contains(text, fmt.Sprintf("%d. %s", i+1, rule)) {
			t.Fatalf("rule %d missing from prompt", i+1)
		}
	}
	if strings.Contains(text, `"name": "manage_crm"`) {
		t.Fatalf("inactive crm tool must not be listed")
	}
	if !strings.Contains(text, "File: a\nContent: b") || !strings.Contains(text, defaultSystemPrompt) {
		t.Fatalf("unexpected prompt:\n%s", text)
	}
}

func TestBuildSynthesis(t *testing.T) {
	text := BuildSynthesis(SynthesisInput{
		Persona:   Persona{Name: "Nova"},
		Utterance: "find budget",
		Tool:      tool.NameDrive,
		Result:    "Found 1 file: budget.xlsx",
	})
	if !strings.Contains(text, "You are Nova.") || !strings.Contains(text, "manage_drive") || !strings.Contains(text, "budget.xlsx") {
		t.Fatalf("unexpected synthesis prompt:\n%s", text)
	}
}
