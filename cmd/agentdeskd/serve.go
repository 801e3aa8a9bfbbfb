package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"AgentDesk/internal/api"
	"AgentDesk/internal/observability/metrics"
	"AgentDesk/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the workflow run processor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr != "" {
				cfg.Server.Address = addr
			}
			app, err := buildApplication(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.L().Error("释放资源失败", slog.Any("error", err))
				}
			}()
			return serve(cmd.Context(), app)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override server.address")
	return cmd
}

// serve 同时运行 API 服务、工作流处理器以及可选的独立指标服务，任一退出时整体退出。
func serve(ctx context.Context, app *application) error {
	server := api.NewServer(app.cfg.Server.Address, api.Dependencies{
		Sessions:  app.sessions,
		Tasks:     app.runs,
		Customers: app.customers,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L().Info("工作流处理器已启动", slog.Int("workers", app.cfg.TaskQueue.Workers))
		return app.processor.Start(gctx)
	})
	if app.cfg.Metrics.Enabled && app.cfg.Metrics.Address != "" {
		g.Go(func() error {
			logger.L().Info("指标服务已启动", slog.String("address", app.cfg.Metrics.Address))
			return metrics.StartServer(gctx, app.cfg.Metrics.Address)
		})
	}
	g.Go(func() error {
		logger.L().Info("API 服务已启动", slog.String("address", app.cfg.Server.Address))
		return server.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.L().Info("AgentDesk 已停止")
	return nil
}
