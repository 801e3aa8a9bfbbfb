package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// main 是 AgentDesk 守护进程与命令行的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "agentdeskd 运行失败: %v\n", err)
		os.Exit(1)
	}
}
