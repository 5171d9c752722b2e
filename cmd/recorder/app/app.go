package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"

	"github.com/roman-kulish/zen-sensors/internal/client"
	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/iosys/serial"
	"github.com/roman-kulish/zen-sensors/internal/iosys/sim"
	"github.com/roman-kulish/zen-sensors/internal/storage"
)

const (
	storageDir = "data"
)

// NewLogger creates the application logger writing to w in the given format.
func NewLogger(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	if format == LogFormatTint {
		return slog.New(tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.TimeOnly}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Run records the configured sensors until ctx is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	c, err := createClient(config, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer c.Close()

	o := NewOrchestrator(c, store, logger,
		WithSensors(config.Sensors),
		WithAutoObtain(config.Settings.AutoObtain),
		WithMaxBatchSize(config.Storage.maxBatchSize()),
		WithBufferSize(config.Storage.bufferSize()),
		WithRescanSchedule(config.Settings.RescanSchedule),
		WithStatusInterval(config.Settings.StatusInterval.Duration(defaultStatusInterval)),
	)

	return o.Run(ctx)
}

// List prints the sensors discovered on the configured IO systems to w.
func List(ctx context.Context, config *Config, logger *slog.Logger, w io.Writer) error {
	c, err := createClient(config, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer c.Close()

	descs, err := c.ListSensors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sensors: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tIO TYPE\tIDENTIFIER\tSERIAL NUMBER\tBAUD RATE")
	for _, d := range descs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.IoType, d.Identifier, d.SerialNumber, humanize.Comma(int64(d.BaudRate)))
	}
	if err = tw.Flush(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "\n%s found\n", pluralize(len(descs), "sensor"))
	return err
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func createClient(config *Config, logger *slog.Logger) (*client.Client, error) {
	registry, err := createRegistry(config, logger)
	if err != nil {
		return nil, err
	}

	options := []func(*client.Client){client.WithLogger(logger)}
	if config.Settings.QueueSize > 0 {
		options = append(options, client.WithQueueSize(config.Settings.QueueSize))
	}
	return client.New(registry, options...)
}

func createRegistry(config *Config, logger *slog.Logger) (*iosys.Registry, error) {
	var systems []iosys.System

	if config.Serial != nil {
		s, err := serial.New(config.Serial, serial.WithLogger(logger.With(slog.String("io", serial.IoType))))
		if err != nil {
			return nil, fmt.Errorf("creating serial IO system: %w", err)
		}
		systems = append(systems, s)
	}

	if config.Sim != nil {
		s, err := sim.New(config.Sim, sim.WithLogger(logger.With(slog.String("io", sim.IoType))))
		if err != nil {
			return nil, fmt.Errorf("creating sim IO system: %w", err)
		}
		systems = append(systems, s)
	}

	return iosys.NewRegistry(systems...)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = storageDir
	}
	if !filepath.IsAbs(dbPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("zen_recording_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
