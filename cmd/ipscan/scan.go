package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/internal/recon"
	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/pkg/models"
)

type scanFlags struct {
	concurrency int
	timeoutMs   int
	onlineOnly  bool
	jsonOut     bool
	csvOut      bool
}

func newScanCmd(a *app) *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [range]",
		Short: "Run a single scan and print the results",
		Long: `Scan a range once and print one row per address.

The range accepts a.b.c.d, a.b.c.d/nn, a.b.c.d-e.f.g.h and comma-separated
lists of those forms. Without an argument the configured scanner.range is used.`,
		Example: `  ipscan scan 192.168.1.0/24
  ipscan scan 10.0.0.1-10.0.0.50,10.0.1.7 --online
  ipscan scan --json | jq '.items[] | select(.status == "online")'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.settings.Scanner.ScanConfig()
			if len(args) == 1 {
				cfg.Range = args[0]
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = f.concurrency
			}
			if cmd.Flags().Changed("timeout-ms") {
				cfg.TimeoutMs = f.timeoutMs
			}
			return runScan(cmd, a, cfg, f)
		},
	}
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "parallel probes (default from config)")
	cmd.Flags().IntVar(&f.timeoutMs, "timeout-ms", 0, "per-probe timeout in milliseconds (default from config)")
	cmd.Flags().BoolVar(&f.onlineOnly, "online", false, "only print online hosts")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the snapshot as JSON")
	cmd.Flags().BoolVar(&f.csvOut, "csv", false, "print the results as CSV")
	cmd.MarkFlagsMutuallyExclusive("json", "csv")
	return cmd
}

func runScan(cmd *cobra.Command, a *app, cfg models.ScanConfig, f scanFlags) error {
	if err := scanner.ValidateConfig(cfg); err != nil {
		return err
	}

	// Progress goes to stderr; the table owns stdout.
	logSettings := a.settings.Log
	logSettings.Format = "console"
	if logSettings.Level == "info" {
		logSettings.Level = "warn"
	}
	logger, err := newLogger(logSettings)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	coord := scanner.NewCoordinator(scanner.Options{
		Prober:    newProber(logger),
		Resolver:  newResolver(a.settings.Scanner, logger),
		RateLimit: a.settings.Scanner.RateLimit,
		Logger:    logger.Named("scanner"),
	})
	snap, err := coord.Run(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	logger.Debug("scan finished", zap.Int64("duration_ms", snap.DurationMs))

	out := cmd.OutOrStdout()
	if f.onlineOnly {
		snap = onlineOnly(snap)
	}
	switch {
	case f.jsonOut:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case f.csvOut:
		return recon.WriteResultsCSV(out, snap)
	default:
		return printSnapshot(out, snap)
	}
}

func onlineOnly(snap *models.Snapshot) *models.Snapshot {
	filtered := *snap
	filtered.Items = make([]models.HostResult, 0, snap.Online)
	for _, item := range snap.Items {
		if item.Status == models.HostStatusOnline {
			filtered.Items = append(filtered.Items, item)
		}
	}
	return &filtered
}

func printSnapshot(w io.Writer, snap *models.Snapshot) error {
	table := tablewriter.NewWriter(w)
	table.Header("IP", "Status", "Method", "Latency", "Hostname", "Name")
	for _, item := range snap.Items {
		latency := "-"
		if item.LatencyMs != nil {
			latency = strconv.FormatFloat(*item.LatencyMs, 'f', 1, 64) + " ms"
		}
		_ = table.Append([]string{
			item.IP,
			string(item.Status),
			string(item.Method),
			latency,
			item.Hostname,
			item.ManualName,
		})
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %d online, %d offline of %d in %d ms\n",
		snap.Range, snap.Online, snap.Offline, snap.Total, snap.DurationMs)
	return err
}
