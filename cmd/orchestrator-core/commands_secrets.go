package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/orchestrator-core/internal/secrets"
)

func buildRotateSecretCmd() *cobra.Command {
	var secretsDir string

	cmd := &cobra.Command{
		Use:   "rotate-secret <name>",
		Short: "Rotate a secret to fresh random material",
		Long: `Rotate a secret in the SecretStore. Rotating "auth_jwt_key" invalidates
every outstanding access/refresh token immediately, since the AuthGate's
signature verification now fails against every token signed with the old
key. Rotating "audit_hmac_key" invalidates verification of every prior
Journal entry signature by design (the Journal's own chain is unaffected —
only future entries sign with the new key).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secrets.Open(secretsDir)
			if err != nil {
				return fmt.Errorf("open secret store: %w", err)
			}
			defer store.Close()

			name := args[0]
			if _, err := store.Rotate(name, secrets.RandomBytes(32)); err != nil {
				return fmt.Errorf("rotate %s: %w", name, err)
			}
			fmt.Printf("rotated %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretsDir, "secrets-dir", defaultSecretsDir(),
		"Directory for the encrypted local secret-store fallback")
	return cmd
}
