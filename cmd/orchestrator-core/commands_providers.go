package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func buildListProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-providers",
		Short: "List the providers enabled in the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ids := make([]string, 0, len(cfg.Providers))
			for id := range cfg.Providers {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range ids {
				pc := cfg.Providers[id]
				status := "disabled"
				if pc.Enabled {
					status = "enabled"
				}
				fmt.Printf("%-12s %-9s models=%v\n", id, status, pc.Models)
			}
			return nil
		},
	}
}
