package cmd

import (
	"fmt"
	"os"
	"strings"

	"authcore/internal/config"
	"authcore/pkg/logging"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var policiesConfigPath string

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the configured access policies",
	Long: `Loads the configuration and renders the enterprise access policies as a
table: id, enabled state, condition count and actions. Useful for checking
what a configuration edit will do before the watcher picks it up.`,
	Args: cobra.NoArgs,
	RunE: runPolicies,
}

func runPolicies(cmd *cobra.Command, args []string) error {
	logging.Init(logging.LevelWarn, os.Stderr)

	configPath := policiesConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.GetDefaultConfigPath()
		if err != nil {
			return err
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(cfg.Enterprise.Policies) == 0 {
		fmt.Println("No policies configured.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Enabled", "Conditions", "Actions"})

	for _, p := range cfg.Enterprise.Policies {
		t.AppendRow(table.Row{
			p.ID,
			p.Name,
			p.Enabled,
			len(p.Conditions),
			strings.Join(p.Actions, ", "),
		})
	}

	t.Render()
	return nil
}

func init() {
	policiesCmd.Flags().StringVar(&policiesConfigPath, "config-path", "", "Configuration directory (default: ~/.config/authcore)")
	rootCmd.AddCommand(policiesCmd)
}
