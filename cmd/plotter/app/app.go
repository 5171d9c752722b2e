package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/zen-sensors/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	data, err := readSeries(ctx, store, config, logger)
	if err != nil {
		return err
	}

	renderer, err := NewChartRenderer(RenderConfig{
		Width:         config.Width,
		Height:        config.Height,
		Location:      config.TimeZone,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}

	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("channel", string(config.Channel)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	return writeImage(config.OutputFile, config.Format, img)
}

// readerOptions translates the configured filters into reader options.
// Filter descriptions are returned for logging.
func readerOptions(config *Config) ([]storage.ReaderOption[storage.ImuRecord], []any) {
	type T = storage.ImuRecord

	var opts []storage.ReaderOption[T]
	var filters []any
	switch {
	case config.StartTime != nil && config.EndTime != nil:
		opts = append(opts, storage.WithTimeRange[T](config.StartTime.UTC(), config.EndTime.UTC()))

		filters = append(filters,
			slog.String("startTime", config.StartTime.UTC().Format(time.DateTime)),
			slog.String("endTime", config.EndTime.UTC().Format(time.DateTime)))

	case config.StartTime != nil:
		opts = append(opts, storage.WithStartTime[T](config.StartTime.UTC()))
		filters = append(filters, slog.String("startTime", config.StartTime.UTC().Format(time.DateTime)))

	case config.EndTime != nil:
		opts = append(opts, storage.WithEndTime[T](config.EndTime.UTC()))
		filters = append(filters, slog.String("endTime", config.EndTime.UTC().Format(time.DateTime)))
	}

	if config.FirstFrame != nil || config.LastFrame != nil {
		first, last := uint32(0), uint32(math.MaxUint32)
		if config.FirstFrame != nil {
			first = *config.FirstFrame
		}
		if config.LastFrame != nil {
			last = *config.LastFrame
		}

		opts = append(opts, storage.WithFrameRange(first, last))
		filters = append(filters, slog.Any("firstFrame", first), slog.Any("lastFrame", last))
	}

	return opts, filters
}

func readSeries(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*SeriesData, error) {
	opts, filters := readerOptions(config)
	logger.Info("reader configuration", filters...)

	iter, err := store.ReadImu(ctx, config.SessionID, opts...)
	if errors.Is(err, storage.ErrNoData) {
		return nil, fmt.Errorf("session %d has no IMU samples matching the filters", config.SessionID)
	}
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	bounds := NewValueBounds()
	if config.MinValue != nil {
		bounds.WithFixedMin(*config.MinValue)
	}
	if config.MaxValue != nil {
		bounds.WithFixedMax(*config.MaxValue)
	}

	data, err := NewSeriesData(config.Channel, bounds)
	if err != nil {
		return nil, err
	}
	data.Session = iter.Session()

	logger.Info("reading samples",
		slog.Int64("session", data.Session.ID),
		slog.String("uuid", data.Session.UUID.String()),
		slog.String("sensor", data.Session.SensorName))

	for iter.Next(ctx) {
		data.Update(iter.Current())

		if config.Verbose && data.Len()%100_000 == 0 {
			logger.Info("progress", slog.String("samples", humanize.Comma(int64(data.Len()))))
		}
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}
	if data.Len() == 0 {
		return nil, fmt.Errorf("session %d has no IMU samples matching the filters", config.SessionID)
	}

	lo, hi := bounds.Observed()
	logger.Info("finished reading samples",
		slog.Group("stats",
			slog.String("samples", humanize.Comma(int64(data.Len()))),
			slog.String("startTime", data.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("endTime", data.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.Any("firstFrame", data.FrameFirst),
			slog.Any("lastFrame", data.FrameLast),
			slog.Float64("minValue", lo),
			slog.Float64("maxValue", hi),
		))

	return data, nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch format {
	case ImagePNG:
		return png.Encode(out, img)
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return fmt.Errorf("invalid image format: %s", format)
}
