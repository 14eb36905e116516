package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a trigger payload to an active workflow",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "Idempotency key", Required: true},
			&cli.StringFlag{Name: "payload", Usage: "JSON object, or @path to read it from a file", Value: "{}"},
		},
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			workflowID, err := requireArg(command, 0, "workflow-id")
			if err != nil {
				return err
			}

			payload, err := readPayload(command.String("payload"))
			if err != nil {
				return err
			}

			instance, created, err := a.Triggers.Submit(ctx, workflowID, command.String("key"), payload)
			if err != nil {
				return err
			}

			if !created {
				a.logger.InfoContext(ctx, "Idempotency key already submitted", "instance_id", instance.ID)
			}

			return printJSON(command, instance)
		}),
	}
}

func NewInstanceCommand() *cli.Command {
	return &cli.Command{
		Name:    "instance",
		Aliases: []string{"i"},
		Usage:   "Inspect and correct trigger instances",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show a trigger instance",
				ArgsUsage: "<instance-id>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					id, err := requireArg(command, 0, "instance-id")
					if err != nil {
						return err
					}

					instance, err := a.Triggers.Get(ctx, id)
					if err != nil {
						return err
					}

					return printJSON(command, instance)
				}),
			},
			{
				Name:  "list",
				Usage: "List trigger instances",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "workflow", Usage: "Workflow id"},
					&cli.StringFlag{Name: "status", Usage: "enqueued, processing, completed or failed"},
					&cli.IntFlag{Name: "limit", Usage: "Page size", Value: 20},
					&cli.IntFlag{Name: "offset", Usage: "Results to skip"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					filter := services.InstanceFilter{
						WorkflowID: command.String("workflow"),
						Limit:      command.Int("limit"),
						Offset:     command.Int("offset"),
					}

					if value := command.String("status"); value != "" {
						status := models.InstanceStatus(value)
						filter.Status = &status
					}

					instances, err := a.Triggers.List(ctx, filter)
					if err != nil {
						return err
					}

					return printJSON(command, instances)
				}),
			},
			{
				Name:      "update",
				Usage:     "Apply a manual transition or reschedule an enqueued instance",
				ArgsUsage: "<instance-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Target status"},
					&cli.IntFlag{Name: "attempts", Usage: "Expected attempts after the change", Value: -1},
					&cli.StringFlag{Name: "available-at", Usage: "RFC 3339 time the instance becomes ready"},
					&cli.StringFlag{Name: "payload", Usage: "Replacement JSON payload, or @path"},
					&cli.StringFlag{Name: "reason", Usage: "Recorded as the last error of a failure"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					id, err := requireArg(command, 0, "instance-id")
					if err != nil {
						return err
					}

					update, err := updateFromFlags(command)
					if err != nil {
						return err
					}

					instance, err := a.Triggers.Update(ctx, id, update)
					if err != nil {
						return err
					}

					return printJSON(command, instance)
				}),
			},
		},
	}
}

func updateFromFlags(command *cli.Command) (services.InstanceUpdate, error) {
	update := services.InstanceUpdate{Reason: command.String("reason")}

	if value := command.String("status"); value != "" {
		status := models.InstanceStatus(value)
		update.Status = &status
	}

	if attempts := command.Int("attempts"); attempts >= 0 {
		update.Attempts = &attempts
	}

	if value := command.String("available-at"); value != "" {
		availableAt, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return update, fmt.Errorf("invalid --available-at: %w", err)
		}

		update.AvailableAt = &availableAt
	}

	if value := command.String("payload"); value != "" {
		payload, err := readPayload(value)
		if err != nil {
			return update, err
		}

		update.Payload = payload
	}

	return update, nil
}

// readPayload returns value as JSON, reading it from a file when it starts with @.
func readPayload(value string) (json.RawMessage, error) {
	if path, ok := strings.CutPrefix(value, "@"); ok {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}

		value = string(content)
	}

	if !json.Valid([]byte(value)) {
		return nil, errors.New("payload is not valid JSON")
	}

	return json.RawMessage(value), nil
}
