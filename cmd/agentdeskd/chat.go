package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"AgentDesk/internal/agent"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

func newChatCmd() *cobra.Command {
	var (
		agentID      string
		integrations []string
		sessionID    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to an agent from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			app, err := buildApplication(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if agentID == "" {
				agentID = cfg.Agents[0].ID
			}
			sess, err := app.sessions.Open(cmd.Context(), agent.OpenRequest{
				SessionID:    sessionID,
				AgentID:      agentID,
				Integrations: tool.ParseIntegrations(integrations...),
			})
			if err != nil {
				return err
			}
			defer app.sessions.Close(sess.ID())
			return chat(cmd.Context(), app.sessions, sess, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id (defaults to the first configured agent)")
	cmd.Flags().StringSliceVar(&integrations, "integrations", []string{"crm"}, "integration toggles, e.g. crm,google")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume a stored session")
	return cmd
}

// chat 逐行读取用户输入并打印智能体回复，输入 /quit 或 EOF 结束。
func chat(ctx context.Context, sessions *agent.SessionManager, sess *agent.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "session %s, tools: %s\n", sess.ID(), toolNames(sess.Tools()))
	for _, turn := range sess.Turns() {
		printTurn(out, turn)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		outcome, err := sessions.Send(ctx, sess.ID(), text)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if outcome.Result != nil {
			fmt.Fprintf(out, "  [%s %s: %s]\n", outcome.Result.Tool, outcome.Result.Action, outcome.Result.Kind())
		}
		fmt.Fprintf(out, "%s\n", outcome.Reply)
	}
}

func printTurn(out io.Writer, turn agent.Turn) {
	fmt.Fprintf(out, "%s: %s\n", turn.Sender, turn.Text)
}

func toolNames(descs []tool.Descriptor) string {
	if len(descs) == 0 {
		return "none"
	}
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, string(d.Name))
	}
	return strings.Join(names, ", ")
}
