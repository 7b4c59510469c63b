package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/orchestrator-core/internal/audit"
	"github.com/haasonsaas/orchestrator-core/internal/secrets"
)

func buildVerifyAuditCmd() *cobra.Command {
	var secretsDir string

	cmd := &cobra.Command{
		Use:   "verify-audit",
		Short: "Walk the Journal's hash chain and report any tampered entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := secrets.Open(secretsDir)
			if err != nil {
				return fmt.Errorf("open secret store: %w", err)
			}
			defer store.Close()

			auditKey, err := store.GetOrCreate("audit_hmac_key", secrets.RandomBytes(32))
			if err != nil {
				return fmt.Errorf("load audit key: %w", err)
			}

			db, err := sql.Open("sqlite", cfg.Audit.DatabasePath)
			if err != nil {
				return fmt.Errorf("open audit database: %w", err)
			}
			defer db.Close()

			journal, err := audit.OpenJournal(db, auditKey)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}

			report, err := journal.VerifyAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify journal: %w", err)
			}

			fmt.Printf("journal entries: %d, verified: %d, tampered: %d\n",
				report.Total, report.Verified, len(report.Tampered))
			for _, id := range report.Tampered {
				fmt.Printf("  tampered: %s\n", id)
			}
			if len(report.Tampered) > 0 {
				return fmt.Errorf("%d journal entries failed verification", len(report.Tampered))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secretsDir, "secrets-dir", defaultSecretsDir(),
		"Directory for the encrypted local secret-store fallback")
	return cmd
}
