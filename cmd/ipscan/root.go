package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/ipscan/internal/config"
	"github.com/HerbHall/ipscan/internal/version"
)

// app carries state shared by every subcommand once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	settings   config.Settings
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ipscan",
		Short: "IPv4 range scanner",
		Long: `ipscan probes every address in an IPv4 range with ICMP echo and TCP connect
fallbacks, resolves names for live hosts and keeps the latest results.

Run "ipscan serve" for the HTTP API and auto-scan scheduler, or "ipscan scan"
for a one-shot scan printed as a table.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.SetVersionTemplate(version.Info() + "\n")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("IPSCAN_CONFIG"),
		"path to a YAML config file (env IPSCAN_CONFIG)")

	root.AddCommand(
		newServeCmd(a),
		newScanCmd(a),
		newConfigCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.settings = settings
	return nil
}

// newLogger builds a zap logger from the log settings. "console" selects the
// human-readable encoder; anything else logs JSON.
func newLogger(s config.LogSettings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	var zc zap.Config
	if strings.EqualFold(s.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
