package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "authcore",
	Short: "Trust-and-access control core for API-fronting services",
	Long: `authcore issues and caches short-lived credentials for delegated user
OAuth and application-installation tokens, enforces per-subject request
quotas, evaluates declarative access policies, and produces a
tamper-evident audit trail.

It fronts a protected API with the bearer-challenge half of the HTTP
authorization handshake: unauthenticated requests receive an RFC 6750
challenge pointing at the protected-resource-metadata discovery document.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
