package cmd

import (
	"context"

	"flowdag/internal/model"
	"flowdag/pkg/workflow"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <runId>",
	Short: "Cancel a run",
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
		if err := manager.Start(ctx); err != nil {
			return err
		}
		defer manager.Close()

		found, err := manager.CancelRun(ctx, model.RunId(runId))
		if err != nil {
			return err
		}
		if !found {
			cmd.Printf("Run %s not found\n", runId)
			return nil
		}
		cmd.Printf("Run %s cancelled\n", runId)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
