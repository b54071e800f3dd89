package cmd

import (
	"context"

	"flowdag/internal/dag"
	"flowdag/internal/model"
	"flowdag/pkg/workflow"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single-task run",
	Long: `Submit a run consisting of a single executable task of the given
type. For multi-task DAGs, embed flowdag's pkg/workflow package directly
instead of going through flowctl.

Example:
  flowctl submit --task-type build --task-type-version v1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		taskTypeName, _ := flags.GetString("task-type")
		taskTypeVersion, _ := flags.GetString("task-type-version")
		if taskTypeName == "" {
			cmd.Println("Error: --task-type is required")
			return nil
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

		taskType := model.TaskType{Name: taskTypeName, Version: taskTypeVersion, Mode: model.ModeStandard, Executable: true}
		task := &dag.Task{Id: model.NewTaskId(), Type: taskType}

		runId, err := manager.SubmitTask(ctx, task)
		if err != nil {
			return err
		}
		cmd.Printf("Run submitted: %s\n", runId)
		return nil
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.String("task-type", "", "task type name (required)")
	flags.String("task-type-version", "v1", "task type version")

	rootCmd.AddCommand(submitCmd)
}
