package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"flowdag/internal/coordinator"
	"flowdag/internal/coordinator/etcdcoord"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "flowctl is a command line tool for administering flowdag runs",
	Long: `flowctl is the command-line client for flowdag, a distributed workflow
engine that runs DAGs of tasks across a fleet of worker processes.

flowctl embeds the same manager library flowdag-scheduler and
flowdag-worker use; it talks to the coordinator directly rather than
through a network API.

Common workflows:

  Submit a run:
    flowctl submit --task-type build --task-type-version v1

  Check run status:
    flowctl status <runId>

  List a run's tasks:
    flowctl tasks <runId>

  Fetch a task's result:
    flowctl result <runId> <taskId>

  Cancel a run:
    flowctl cancel <runId>

  Remove a run's state:
    flowctl clean <runId>

Configuration:
  Set the coordinator endpoints via environment variable or a config file:
    FLOWDAG_COORDINATOR_ENDPOINTS   comma-separated etcd endpoints`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".flowctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FLOWDAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flowctl.yaml)")

	rootCmd.PersistentFlags().String("coordinator-endpoints", "localhost:2379", "comma-separated etcd endpoints")
	viper.BindPFlag("coordinator-endpoints", rootCmd.PersistentFlags().Lookup("coordinator-endpoints"))

	rootCmd.PersistentFlags().String("base-path", "/flowdag", "coordinator namespace prefix")
	viper.BindPFlag("base-path", rootCmd.PersistentFlags().Lookup("base-path"))
}

func connectCoordinator(ctx context.Context) (coordinator.Client, error) {
	endpoints := viper.GetString("coordinator-endpoints")
	return etcdcoord.New(ctx, etcdcoord.Config{
		Endpoints: splitCSV(endpoints),
	})
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func basePath() string {
	return viper.GetString("base-path")
}
