package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/dukex/notiflow/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := NewRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "notiflow",
		Usage:                 "Author notification workflows and manage trigger instances",
		EnableShellCompletion: true,
		Flags:                 slices.Concat(cmd.CommonFlags(), cmd.RetryFlags(), cmd.LockerFlags()),
		Commands: []*cli.Command{
			NewWorkflowCommand(),
			NewTemplatesCommand(),
			NewSubmitCommand(),
			NewInstanceCommand(),
			NewEventsCommand(),
		},
	}
}
