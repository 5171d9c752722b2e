package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/storage"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

func writeTestRecording(t *testing.T, dbPath string, n int) (*storage.Session, time.Time) {
	t.Helper()

	ctx := context.Background()
	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	desc := zen.SensorDesc{Name: "IG1", IoType: "sim", Identifier: "sim0", SerialNumber: "SIM-IG1"}
	sess, err := store.CreateSession(ctx, desc, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := make([]storage.ImuRecord, n)
	for i := range records {
		records[i] = storage.ImuRecord{
			ReceivedAt: start.Add(time.Duration(i) * 10 * time.Millisecond),
			Data: zen.ImuData{
				FrameCount: uint32(i),
				R:          [3]float32{float32(i % 90), -float32(i % 45), 180},
				Q:          [4]float32{1, 0, 0, 0},
			},
		}
	}
	if err = store.StoreImuSamples(ctx, sess.ID, records); err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	return sess, start
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "recording.sqlite")
	sess, start := writeTestRecording(t, dbPath, 1000)

	first := uint32(100)
	end := start.Add(5 * time.Second)
	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = sess.ID
	config.OutputFile = filepath.Join(dir, "euler.png")
	config.Channel = ChannelEuler
	config.Width, config.Height = 300, 150
	config.TimeZone = time.UTC
	config.FirstFrame = &first
	config.EndTime = &end

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Run(context.Background(), config, logger); err != nil {
		t.Fatalf("Failed to run: %v", err)
	}

	info, err := os.Stat(config.OutputFile)
	if err != nil {
		t.Fatalf("Failed to stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("output image is empty")
	}
}

func TestReadSeries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "recording.sqlite")
	sess, start := writeTestRecording(t, dbPath, 1000)

	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	first, last := uint32(200), uint32(299)
	config := NewConfig()
	config.SessionID = sess.ID
	config.Channel = ChannelEuler
	config.FirstFrame = &first
	config.LastFrame = &last

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	data, err := readSeries(context.Background(), store, config, logger)
	if err != nil {
		t.Fatalf("Failed to read series: %v", err)
	}

	if data.Len() != 100 || data.FrameFirst != 200 || data.FrameLast != 299 {
		t.Errorf("got %d samples, frames %d..%d; want 100, 200..299", data.Len(), data.FrameFirst, data.FrameLast)
	}
	if !data.TimestampStart.Equal(start.Add(2 * time.Second)) {
		t.Errorf("TimestampStart = %v", data.TimestampStart)
	}
	if data.Session == nil || data.Session.UUID != sess.UUID {
		t.Errorf("Session = %+v, want %s", data.Session, sess.UUID)
	}
	if got := data.Series[2].Values[0]; got != 180 {
		t.Errorf("yaw = %v, want 180", got)
	}

	// Frames past the recording
	first, last = 5000, 6000
	if _, err = readSeries(context.Background(), store, config, logger); err == nil {
		t.Error("readSeries() of an empty frame range succeeded")
	}
}

func TestRunMissingDatabase(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "missing.sqlite")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Run(context.Background(), config, logger); err == nil {
		t.Error("Run() with a missing database succeeded")
	}
}
