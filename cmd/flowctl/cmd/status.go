package cmd

import (
	"context"

	"flowdag/internal/model"
	"flowdag/pkg/workflow"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <runId>",
	Short: "Show a run's lifecycle status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runId, err := uuid.Parse(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		coord, err := connectCoordinator(ctx)
		if err != nil {
			return err
		}
		defer coord.Close()

		manager := workflow.New(coord, workflow.Config{BasePath: basePath(), InstanceName: "flowctl"})

		info, err := manager.GetRunInfo(ctx, model.RunId(runId))
		if err != nil {
			return err
		}
		if info == nil {
			cmd.Printf("Run %s not found\n", runId)
			return nil
		}

		cmd.Printf("Run:        %s\n", info.RunId)
		if info.ParentRunId != nil {
			cmd.Printf("Parent run: %s\n", *info.ParentRunId)
		}
		cmd.Printf("Started:    %s\n", info.StartTimeUtc)
		if info.CompletionTimeUtc != nil {
			cmd.Printf("Completed:  %s\n", *info.CompletionTimeUtc)
		} else {
			cmd.Println("Completed:  (in progress)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
