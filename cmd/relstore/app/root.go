package app

import (
	"context"

	"github.com/relstore/relstore/src/cli"
)

var rootCmd = cli.Init("relstore")

func MustExecute(ctx context.Context) {
	initStart()
	rootCmd.MustExecute(ctx)
}
