package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/seqreg/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(_ context.Context, _ *cli.Command) error {
			info := version.Resolve()
			fmt.Printf("seqreg %s\n", info.Version)
			if info.Commit != "" {
				fmt.Printf("commit: %s\n", info.Commit)
			}
			if info.BuildDate != "" {
				fmt.Printf("built:  %s\n", info.BuildDate)
			}
			fmt.Printf("go:     %s\n", info.GoVersion)
			return nil
		},
	}
}
