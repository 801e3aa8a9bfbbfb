package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"AgentDesk/internal/config"
	"AgentDesk/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentdeskd",
		Short:         "AgentDesk conversational tool orchestration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file, JSON or YAML (default $AGENTDESK_CONFIG or configs/agentdesk.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newRunCmd())
	return root
}

// loadConfig 按 --config、AGENTDESK_CONFIG、默认路径的顺序查找配置文件；
// 都不存在时使用默认配置，并初始化全局日志。
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("AGENTDESK_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = filepath.Join("configs", "agentdesk.yaml")
	}

	var cfg *config.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	} else {
		wd, _ := os.Getwd()
		cfg = config.Default(wd)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	if logLevel != "" {
		logger.SetLevel(logLevel)
	}
	return cfg, nil
}
