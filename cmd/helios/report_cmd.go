package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helios-sim/helios/internal/config"
	"github.com/helios-sim/helios/internal/report"
)

func reportCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect persisted simulation reports",
	}

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a single stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openReportStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReport(r)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent stored reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openReportStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range reports {
				fmt.Printf("%s\tcompleted %s\t%.4f kWh\n", r.RunID, r.CompletedAt.Format("2006-01-02T15:04:05Z"), r.ClusterEnergyKWh)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports to list")

	cmd.AddCommand(showCmd, listCmd)
	return cmd
}

func openReportStore(ctx context.Context) (*report.Store, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)

	if cfg.Report.DSN == "" {
		return nil, fmt.Errorf("report.dsn is not configured")
	}
	return report.NewStore(ctx, cfg.Report.DSN)
}
