package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/client"
	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/iosys/sim"
	"github.com/roman-kulish/zen-sensors/internal/storage"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRig(t *testing.T, sensors ...sim.SensorConfig) (*sim.System, *client.Client, *storage.SqliteStore) {
	t.Helper()

	system, err := sim.New(&sim.Config{Sensors: sensors})
	if err != nil {
		t.Fatalf("Failed to create sim system: %v", err)
	}
	registry, err := iosys.NewRegistry(system)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	c, err := client.New(registry)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "recording.sqlite"))
	t.Cleanup(func() { _ = store.Close() })

	return system, c, store
}

func TestOrchestratorRecords(t *testing.T) {
	_, c, store := newTestRig(t, sim.SensorConfig{Name: "sim0", Gnss: true, SamplingRate: 200})

	o := NewOrchestrator(c, store, discardLogger,
		WithSensors([]SensorConfig{{
			Name:         "sim0",
			IoType:       sim.IoType,
			Enabled:      true,
			SamplingRate: 100,
			Output:       ig1.DefaultOutputConfig | ig1.OutputTemperature,
		}}),
		WithMaxBatchSize(20),
		WithBufferSize(40),
		WithStatusInterval(50*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()

	if err := o.Run(ctx); err != nil {
		t.Fatalf("Failed to run orchestrator: %v", err)
	}

	ctx = context.Background()

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}

	sess := sessions[0]
	if sess.SensorName != "sim0" || sess.IoType != sim.IoType || sess.SerialNumber != "SIM-sim0" {
		t.Errorf("session = %+v", sess)
	}
	if sess.Config == nil || !strings.Contains(*sess.Config, `"temperature"`) || !strings.Contains(*sess.Config, `"samplingRate":100`) {
		t.Errorf("session config = %v", sess.Config)
	}

	imu, err := store.ReadImu(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to read imu samples: %v", err)
	}
	defer imu.Close()

	var n int
	var last storage.ImuRecord
	for imu.Next(ctx) {
		cur := *imu.Current()
		if n > 0 && (cur.Data.FrameCount <= last.Data.FrameCount || cur.ReceivedAt.Before(last.ReceivedAt)) {
			t.Fatalf("sample %d (frame %d) out of order after frame %d", n, cur.Data.FrameCount, last.Data.FrameCount)
		}
		last = cur
		n++
	}
	if err = imu.Error(); err != nil {
		t.Fatalf("Failed to read imu samples: %v", err)
	}
	if n < 20 {
		t.Errorf("recorded %d imu samples, want at least 20", n)
	}
	if uint64(n) != o.imuCount.Load() {
		t.Errorf("recorded %d imu samples, received %d", n, o.imuCount.Load())
	}

	gnss, err := store.ReadGnss(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to read gnss samples: %v", err)
	}
	defer gnss.Close()

	var gn int
	for gnss.Next(ctx) {
		gn++
	}
	if gn == 0 {
		t.Error("recorded no gnss samples")
	}
}

func TestOrchestratorReconnects(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a rescan")
	}

	system, c, store := newTestRig(t, sim.SensorConfig{Name: "sim0"})

	o := NewOrchestrator(c, store, discardLogger,
		WithAutoObtain(true),
		WithRescanSchedule("@every 1s"),
		WithStatusInterval(0),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for o.active() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if err := system.Unplug("sim0"); err != nil {
		t.Fatalf("Failed to unplug sensor: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Failed to run orchestrator: %v", err)
	}

	sessions, err := store.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1 across the reconnect", len(sessions))
	}

	events, err := store.Events(context.Background(), sessions[0].ID)
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}

	var types []zen.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	if len(types) < 2 || types[0] != zen.EventTypeSensorDisconnected || types[1] != zen.EventTypeSensorFound {
		t.Errorf("event types = %v, want disconnect followed by found", types)
	}
}

func TestOrchestratorNoSensors(t *testing.T) {
	_, c, store := newTestRig(t, sim.SensorConfig{Name: "sim0"})

	o := NewOrchestrator(c, store, discardLogger, WithSensors([]SensorConfig{{Name: "other", IoType: sim.IoType, Enabled: true}}))
	if err := o.Run(context.Background()); err == nil {
		t.Error("Run() without sensors to record succeeded")
	}
}

func TestList(t *testing.T) {
	config := &Config{Sim: &sim.Config{Sensors: []sim.SensorConfig{{Name: "sim0"}, {Name: "sim1"}}}}

	var out bytes.Buffer
	if err := List(context.Background(), config, discardLogger, &out); err != nil {
		t.Fatalf("Failed to list sensors: %v", err)
	}

	for _, want := range []string{"sim0", "sim1", "SIM-sim0", "921,600", "2 sensors found"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
