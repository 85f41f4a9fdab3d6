package cmd

import (
	"fmt"
	"os"

	"authcore/internal/app"
	"authcore/internal/config"
	"authcore/pkg/logging"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath specifies the configuration directory. When empty the
// per-user default directory is used.
var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization gateway",
	Long: `Starts the authcore gateway: loads configuration, constructs the audit
log, rate limiter, policy engine and credential issuers, and serves the
bearer-challenge surface plus the protected-resource-metadata discovery
document over HTTP.

The policy list is hot-reloaded when the configuration file changes;
structural settings require a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logLevel := logging.LevelInfo
	if serveDebug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logLevel, os.Stderr)

	configPath := serveConfigPath
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
	if err := cfg.Validate(); err != nil {
		return err
	}

	services, err := app.NewServices(cfg)
	if err != nil {
		return err
	}
	defer services.Shutdown()

	if err := services.WatchPolicies(configPath); err != nil {
		logging.Warn("App", "Policy hot-reload unavailable: %v", err)
	}

	return app.Run(cmd.Context(), cfg, services)
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default: ~/.config/authcore)")
	rootCmd.AddCommand(serveCmd)
}
