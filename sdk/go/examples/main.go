package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"AgentDesk/sdk/go/agentdesk"
)

// 演示：连接本地 agentdeskd，打开一个带 CRM 工具的会话并提交一个工作流运行。
func main() {
	baseURL := os.Getenv("AGENTDESK_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client, err := agentdesk.NewClient(baseURL, nil)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	agents, err := client.Agents(ctx)
	if err != nil {
		panic(err)
	}
	if len(agents) == 0 {
		fmt.Println("no agents configured")
		return
	}
	agentID := agents[0].ID

	sess, err := client.OpenSession(ctx, agentdesk.OpenSessionRequest{AgentID: agentID, Integrations: []string{"crm"}})
	if err != nil {
		panic(err)
	}
	fmt.Printf("opened session %s with %d tool(s)\n", sess.ID, len(sess.Tools))

	outcome, err := client.SendMessage(ctx, sess.ID, "Show me our most recent leads")
	if err != nil {
		panic(err)
	}
	fmt.Printf("agent: %s\n", outcome.Reply)

	run, err := client.SubmitRun(ctx, agentdesk.RunSubmission{
		AgentID:            agentID,
		TaskName:           "weekly-digest",
		WorkflowDefinition: "List customers with status prospect",
		ToolsToUse:         []string{"crm"},
	})
	if err != nil {
		panic(err)
	}
	finished, err := client.WaitForRun(ctx, run.ID, time.Second)
	if err != nil {
		panic(err)
	}
	fmt.Printf("run %s finished with status=%s\n", finished.ID, finished.Status)
	if finished.Result != nil {
		fmt.Printf("reply: %s\n", finished.Result.Reply)
	}
}
