package main

import (
	"context"
	"fmt"

	"github.com/dukex/notiflow/pkg/definition"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

func NewTemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:    "templates",
		Aliases: []string{"t"},
		Usage:   "Manage the node template catalog",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Register the templates of a YAML definition file",
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

					result, err := a.Importer.Import(ctx, &definition.Document{Templates: doc.Templates})
					if err != nil {
						return err
					}

					for _, template := range result.Templates {
						fmt.Fprintf(command.Root().Writer, "%s (%s)\n", template.Code, template.Type)
					}

					return nil
				}),
			},
			{
				Name:      "get",
				Usage:     "Show a template",
				ArgsUsage: "<code>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					code, err := requireArg(command, 0, "code")
					if err != nil {
						return err
					}

					template, err := a.Templates.Get(ctx, code)
					if err != nil {
						return err
					}

					return printJSON(command, template)
				}),
			},
			{
				Name:  "search",
				Usage: "Search templates by type and text",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Node type (email, sms, delay)"},
					&cli.StringFlag{Name: "text", Usage: "Substring of the code or name"},
					&cli.IntFlag{Name: "limit", Usage: "Page size", Value: 20},
					&cli.IntFlag{Name: "offset", Usage: "Results to skip"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					filter := registry.TemplateFilter{Text: command.String("text")}

					if value := command.String("type"); value != "" {
						nodeType := models.NodeType(value)
						filter.Type = &nodeType
					}

					result, err := a.Templates.Search(ctx, filter, registry.Page{
						Limit:  command.Int("limit"),
						Offset: command.Int("offset"),
					})
					if err != nil {
						return err
					}

					return printJSON(command, result)
				}),
			},
		},
	}
}
