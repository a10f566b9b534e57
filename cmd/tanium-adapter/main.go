package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Checker-Finance/tanium-adapter/internal/cli"
	"github.com/Checker-Finance/tanium-adapter/pkg/config"
	"github.com/Checker-Finance/tanium-adapter/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	root := cli.NewRootCommand(cli.Options{
		Config: cfg,
		Logger: logger.L(),
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.RenderError(err.Error()))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}
