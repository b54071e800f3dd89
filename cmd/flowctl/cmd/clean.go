package cmd

import (
	"context"

	"flowdag/internal/model"
	"flowdag/pkg/workflow"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <runId>",
	Short: "Remove a run's state immediately",
	Long: `Remove a run's state immediately, bypassing the auto-cleaner's
age policy. Intended for runs a caller knows are done and no longer
needs, not as the routine way to reclaim space.`,
	Args: cobra.ExactArgs(1),
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

		found, err := manager.Clean(ctx, model.RunId(runId))
		if err != nil {
			return err
		}
		if !found {
			cmd.Printf("Run %s not found\n", runId)
			return nil
		}
		cmd.Printf("Run %s cleaned\n", runId)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
