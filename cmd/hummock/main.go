package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/beyondbrewing/hummock/pkg/logger"
)

func main() {
	logger.SetDefault(logger.MustProduction())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logger.SyncDefault()
	if err != nil {
		os.Exit(1)
	}
}
