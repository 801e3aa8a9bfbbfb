// Package prompt 构造决策与合成两类补全请求的提示词。
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"AgentDesk/internal/knowledge"
	"AgentDesk/internal/tool"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Persona 描述代理的人设。
type Persona struct {
	Name         string
	Personality  string
	SystemPrompt string
}

// Line 是对话历史中的一行。
type Line struct {
	Sender string
	Text   string
}

// DecisionInput 汇总决策提示词所需的全部输入。
type DecisionInput struct {
	Persona   Persona
	History   []Line
	Tools     []tool.Descriptor
	Knowledge string
	Utterance string
}

// SynthesisInput 汇总合成提示词所需的输入。
type SynthesisInput struct {
	Persona   Persona
	Utterance string
	Tool      tool.Name
	Result    string
}

type toolView struct {
	Name        tool.Name        `json:"name"`
	Description string           `json:"description"`
	Integration tool.Integration `json:"integration"`
	Arguments   map[string]any   `json:"arguments"`
}

var crmRules = []string{
	"When the user gives a customer name (for example \"Yossi Cohen\" or \"Dana Levi\"), always use search_customers with name.",
	"Use get_customer_by_id with customer_id only when the user gives a recognizable raw identifier. Never pass a name as customer_id.",
	"Before deleting a customer, resolve the customer to an identifier first with search_customers.",
	"To update a customer, call update_customer directly with name (or email) and data_to_update. No search is needed first. Add company, phone or status when the user gives them to tell customers apart.",
}

var examples = []string{
	`"Who is Yossi Cohen?" -> manage_crm {"action": "search_customers", "name": "Yossi Cohen"}`,
	`"Get customer 12345" -> manage_crm {"action": "get_customer_by_id", "customer_id": "12345"}`,
	`"Add phone 050-1234567 to Yossi Cohen" -> manage_crm {"action": "update_customer", "name": "Yossi Cohen", "data_to_update": {"phone": "050-1234567"}}`,
	`"Show recent customers" -> manage_crm {"action": "list_recent_customers"}`,
	`"Email john@example.com and thank him" -> manage_gmail {"action": "send_email", "to": "john@example.com", "subject": "Thank you", "body": "Thanks for your purchase!"}`,
	`"Am I free tomorrow 14:00-15:00?" -> manage_calendar {"action": "check_availability", "start_time": "2024-XX-XXT14:00:00", "end_time": "2024-XX-XXT15:00:00"}`,
	`"Append 'Avi', 'avi@email.com' to sheet Leads in abc123" -> manage_sheets {"action": "append_row", "spreadsheet_id": "abc123", "range": "Leads", "values": ["Avi", "avi@email.com"]}`,
}

// BuildDecision 生成决策提示词。只包含当前会话启用的工具。
func BuildDecision(in DecisionInput) (string, error) {
	views := make([]toolView, 0, len(in.Tools))
	for _, desc := range in.Tools {
		views = append(views, toolView{
			Name:        desc.Name,
			Description: desc.Description,
			Integration: desc.Integration,
			Arguments:   desc.Schema(),
		})
	}
	toolsJSON, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode tool catalogue: %w", err)
	}
	schemaJSON, err := json.MarshalIndent(decisionShape, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode decision schema: %w", err)
	}

	var b strings.Builder
	writePersona(&b, in.Persona)
	b.WriteString("You have access to tools. When you need a tool you must answer with a JSON object.\n\n")
	b.WriteString("Tools available for this conversation:\n---\n")
	b.Write(toolsJSON)
	b.WriteString("\n---\n")

	// 规则固定写入每一份决策提示词，与当前启用的工具无关。
	b.WriteString("Critical rules for customer records:\n")
	for i, rule := range crmRules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	b.WriteString("\n")

	b.WriteString("Decide the next step based on the user's request. Your answer must be a JSON object matching this schema:\n")
	b.Write(schemaJSON)
	b.WriteString("\n\nExamples:\n")
	for _, example := range examples {
		b.WriteString("- ")
		b.WriteString(example)
		b.WriteString("\n")
	}

	b.WriteString("---\nConversation history:\n")
	for _, line := range in.History {
		fmt.Fprintf(&b, "%s: %s\n", line.Sender, line.Text)
	}

	knowledgeText := strings.TrimSpace(in.Knowledge)
	if knowledgeText == "" {
		knowledgeText = knowledge.EmptyText
	}
	b.WriteString("\n---\nKnowledge base:\n")
	b.WriteString(knowledgeText)
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "Now handle the user's latest request: %q\nYour JSON answer:", in.Utterance)
	return b.String(), nil
}

// BuildSynthesis 生成把工具结果转换为自然语言回复的提示词。
func BuildSynthesis(in SynthesisInput) string {
	var b strings.Builder
	name := strings.TrimSpace(in.Persona.Name)
	if name == "" {
		name = "the assistant"
	}
	fmt.Fprintf(&b, "You are %s. The user asked: %q\n\n", name, in.Utterance)
	fmt.Fprintf(&b, "I ran the tool '%s' and got these results:\n---\n%s\n---\n\n", in.Tool, in.Result)
	b.WriteString("Give the user a helpful and friendly reply based on these results. Be conversational and natural.")
	return b.String()
}

var decisionShape = map[string]any{
	"response":     "Message shown to the user: a confirmation, a question or a final answer.",
	"tool_to_call": map[string]any{"name": "tool_name", "arguments": map[string]any{"argument": "value"}},
}

func writePersona(b *strings.Builder, p Persona) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "Assistant"
	}
	if personality := strings.TrimSpace(p.Personality); personality != "" {
		fmt.Fprintf(b, "You are %s, an AI assistant with this personality: %s.\n", name, personality)
	} else {
		fmt.Fprintf(b, "You are %s, an AI assistant.\n", name)
	}
	system := strings.TrimSpace(p.SystemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	fmt.Fprintf(b, "Your base instructions: %s\n\n", system)
}
