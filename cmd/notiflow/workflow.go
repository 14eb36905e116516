package main

import (
	"context"
	"fmt"

	"github.com/dukex/notiflow/pkg/definition"
	cli "github.com/urfave/cli/v3"
)

func NewWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:    "workflow",
		Aliases: []string{"w"},
		Usage:   "Manage workflow versions",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Create the templates and workflows of a YAML definition file",
				ArgsUsage: "<file>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					path, err := requireArg(command, 0, "file")
					if err != nil {
						return err
					}

					doc, err := definition.LoadFile(path)
					if err != nil {
						return err
					}

					result, err := a.Importer.Import(ctx, doc)
					if err != nil {
						return err
					}

					for _, flow := range result.Workflows {
						fmt.Fprintf(command.Root().Writer, "%s v%d %s active=%t\n", flow.Code, flow.Version, flow.ID, flow.IsActive)
					}

					return nil
				}),
			},
			{
				Name:      "get",
				Usage:     "Show a workflow version with its graph",
				ArgsUsage: "<workflow-id>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					id, err := requireArg(command, 0, "workflow-id")
					if err != nil {
						return err
					}

					flow, err := a.Workflows.Get(ctx, id)
					if err != nil {
						return err
					}

					return printJSON(command, flow)
				}),
			},
			{
				Name:  "latest",
				Usage: "Show the latest version of a workflow code",
				Flags: codeFlags(),
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					flow, err := a.Workflows.Latest(ctx, command.String("tenant"), command.String("code"))
					if err != nil {
						return err
					}

					return printJSON(command, flow)
				}),
			},
			{
				Name:  "versions",
				Usage: "List the versions of a workflow code",
				Flags: codeFlags(),
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					versions, err := a.Workflows.Versions(ctx, command.String("tenant"), command.String("code"))
					if err != nil {
						return err
					}

					return printJSON(command, versions)
				}),
			},
			{
				Name:      "new-version",
				Usage:     "Copy a workflow graph into a new inactive version",
				ArgsUsage: "<workflow-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Owner of the new version"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					id, err := requireArg(command, 0, "workflow-id")
					if err != nil {
						return err
					}

					flow, err := a.Workflows.NewVersion(ctx, id, command.String("owner"))
					if err != nil {
						return err
					}

					return printJSON(command, flow)
				}),
			},
			{
				Name:      "validate",
				Usage:     "Report the graph problems of a workflow",
				ArgsUsage: "<workflow-id>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					id, err := requireArg(command, 0, "workflow-id")
					if err != nil {
						return err
					}

					report, err := a.Workflows.Validate(ctx, id)
					if err != nil {
						return err
					}

					err = printJSON(command, report)
					if err != nil {
						return err
					}

					if !report.Valid() {
						return cli.Exit("workflow is invalid", 2)
					}

					return nil
				}),
			},
			{
				Name:      "activate",
				Usage:     "Validate a workflow and accept submissions for it",
				ArgsUsage: "<workflow-id>",
				Action:    setActive(true),
			},
			{
				Name:      "deactivate",
				Usage:     "Stop accepting submissions for a workflow",
				ArgsUsage: "<workflow-id>",
				Action:    setActive(false),
			},
		},
	}
}

func codeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "code", Usage: "Workflow code", Required: true},
		&cli.StringFlag{Name: "tenant", Usage: "Tenant id", Sources: cli.EnvVars("NOTIFLOW_TENANT")},
	}
}

func setActive(active bool) cli.ActionFunc {
	return withApp(func(ctx context.Context, command *cli.Command, a *app) error {
		id, err := requireArg(command, 0, "workflow-id")
		if err != nil {
			return err
		}

		if active {
			_, err = a.Workflows.Activate(ctx, id)
		} else {
			_, err = a.Workflows.Deactivate(ctx, id)
		}

		if err != nil {
			return err
		}

		fmt.Fprintf(command.Root().Writer, "%s active=%t\n", id, active)

		return nil
	})
}
