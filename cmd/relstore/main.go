package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/relstore/relstore/cmd/relstore/app"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	app.MustExecute(ctx)
}
