package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/zen-sensors/cmd/recorder/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "recorder",
	Short: "Record LP-bus IMU sensors into SQLite",
	Long: `The recorder discovers LPMS-IG1 sensors on serial ports (or simulated
ones), streams their IMU and GNSS data and stores it in a SQLite database,
one session per sensor.`,
	SilenceUsage: true,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the configured sensors until interrupted",
	Long: `Record the sensors listed in the configuration file. Sensors that are
not found at startup, or that disconnect, are picked up again on the next
rescan when a rescan schedule is configured.

Example:
  recorder record -c config.yaml`,
	RunE: runRecord,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sensors found on the configured IO systems",
	RunE:  runList,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	_ = rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(listCmd)
}

func setup() (*app.Config, *slog.Logger, error) {
	var logLevel slog.LevelVar

	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration file '%s': %w", configPath, err)
	}

	logLevel.Set(config.Settings.LogLevel)
	return config, app.NewLogger(os.Stderr, config.Settings.LogFormat, &logLevel), nil
}

func runRecord(cmd *cobra.Command, _ []string) error {
	config, logger, err := setup()
	if err != nil {
		return err
	}

	if err = app.Run(cmd.Context(), config, logger); err != nil {
		logger.Error(err.Error())
		return err
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	config, logger, err := setup()
	if err != nil {
		return err
	}

	return app.List(cmd.Context(), config, logger, cmd.OutOrStdout())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
