package cmd

import (
	"context"
	"sort"

	"flowdag/internal/model"
	"flowdag/pkg/workflow"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks <runId>",
	Short: "List a run's tasks and their dynamic state",
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

		details, err := manager.GetTaskDetails(ctx, model.RunId(runId))
		if err != nil {
			return err
		}
		if details == nil {
			cmd.Printf("Run %s not found\n", runId)
			return nil
		}

		infos, err := manager.GetTaskInfo(ctx, model.RunId(runId))
		if err != nil {
			return err
		}
		stateByTask := make(map[model.TaskId]model.TaskRunState, len(infos))
		for _, info := range infos {
			stateByTask[info.TaskId] = info.State
		}

		ids := make([]model.TaskId, 0, len(details))
		for id := range details {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

		for _, id := range ids {
			d := details[id]
			state := stateByTask[id]
			if state == "" {
				state = "STRUCTURAL"
			}
			cmd.Printf("%s  %-20s  %s\n", id, d.Type.Name, state)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
