package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"AgentDesk/internal/task"
	"AgentDesk/pkg/logger"
)

func newRunCmd() *cobra.Command {
	var (
		agentID string
		name    string
		tools   []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run [workflow definition]",
		Short: "Execute one workflow run in-process and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- app.processor.Start(ctx) }()

			run, err := app.runs.Submit(ctx, task.SubmitRequest{
				AgentID:            agentID,
				TaskName:           name,
				WorkflowDefinition: strings.Join(args, " "),
				ToolsToUse:         tools,
			})
			if err != nil {
				return err
			}
			finished, err := app.runs.WaitUntilCompleted(ctx, run.ID, 200*time.Millisecond)
			cancel()
			if perr := <-done; perr != nil && !errors.Is(perr, context.Canceled) && err == nil {
				err = perr
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(finished)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id (defaults to the first configured agent)")
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringSliceVar(&tools, "tools", []string{"crm"}, "integrations the run may use")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for the run")
	return cmd
}
