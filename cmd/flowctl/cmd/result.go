package cmd

import (
	"context"

	"flowdag/internal/model"
	"flowdag/pkg/workflow"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var resultCmd = &cobra.Command{
	Use:   "result <runId> <taskId>",
	Short: "Fetch a task's execution result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		runId, err := uuid.Parse(args[0])
		if err != nil {
			return err
		}
		taskId, err := uuid.Parse(args[1])
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

		result, err := manager.GetTaskExecutionResult(ctx, model.RunId(runId), model.TaskId(taskId))
		if err != nil {
			return err
		}
		if result == nil {
			cmd.Println("No result yet")
			return nil
		}

		cmd.Printf("Status:    %s\n", result.Status)
		cmd.Printf("Message:   %s\n", result.Message)
		cmd.Printf("Completed: %s\n", result.CompletionTimeUtc)
		for k, v := range result.ResultMetadata {
			cmd.Printf("  %s = %s\n", k, v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resultCmd)
}
