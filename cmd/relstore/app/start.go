package app

import (
	"github.com/spf13/cobra"

	srcapp "github.com/relstore/relstore/src/app"
)

func initStart() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Starts the storage engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := &srcapp.Entrypoint{ConfigPath: rootCmd.Options.ConfigPath}

			if err := e.Init(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			return e.Run(cmd.Context())
		},
	})
}
