// Package main provides the CLI entry point for the orchestration core.
//
// The core exposes its caller surface as a Go API (package core) and, for
// operational use, as CLI subcommands.
//
// Start the server:
//
//	orchestrator-core serve --config orchestrator-core.yaml
//
// Verify the audit journal's hash chain:
//
//	orchestrator-core verify-audit
//
// Rotate a secret (invalidates every outstanding session if the rotated
// name is the JWT signing key):
//
//	orchestrator-core rotate-secret auth_jwt_key
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/orchestrator-core/internal/config"
)

var configPath string

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orchestrator-core",
		Short: "LLM orchestration core: routing, tool execution, and auth gate",
		Long: `orchestrator-core routes chat/tool completion requests across provider
adapters with caching, cost accounting, and tamper-evident audit logging, and
executes model-emitted tool calls under a static policy and rate-limit gate.`,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"Path to YAML configuration file")

	root.AddCommand(
		buildServeCmd(),
		buildVerifyAuditCmd(),
		buildRotateSecretCmd(),
		buildListProvidersCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
