package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

var testDesc = zen.SensorDesc{
	Name:         "LPMS-IG1",
	SerialNumber: "IG1-0042",
	IoType:       "serial",
	Identifier:   "/dev/ttyUSB0",
}

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "recording.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func imuRecords(start time.Time, firstFrame uint32, n int) []ImuRecord {
	records := make([]ImuRecord, n)
	for i := range records {
		frame := firstFrame + uint32(i)
		records[i] = ImuRecord{
			ReceivedAt: start.Add(time.Duration(i) * 10 * time.Millisecond),
			Data: zen.ImuData{
				Timestamp:   float64(frame) * 0.002,
				FrameCount:  frame,
				A:           [3]float32{0, 0, -1},
				G1:          [3]float32{float32(i), 0.5, -0.5},
				R:           [3]float32{1, 2, float32(i)},
				Q:           [4]float32{1, 0, 0, 0},
				Temperature: 24.5,
			},
		}
	}
	return records
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	config := map[string]any{"samplingRate": 100}

	first, err := s.CreateSession(ctx, testDesc, config)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	second, err := s.CreateSession(ctx, zen.SensorDesc{Name: "sim", IoType: "sim", Identifier: "sim"}, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if first.ID == second.ID || first.UUID == second.UUID {
		t.Fatalf("sessions share identifiers: %+v, %+v", first, second)
	}

	got, err := s.Session(ctx, first.ID)
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if got.UUID != first.UUID || got.SensorName != testDesc.Name || got.SerialNumber != testDesc.SerialNumber ||
		got.IoType != testDesc.IoType || got.Identifier != testDesc.Identifier {
		t.Errorf("Session() = %+v, want %+v", got, first)
	}
	if got.Config == nil || *got.Config != `{"samplingRate":100}` {
		t.Errorf("Session().Config = %v", got.Config)
	}
	if !got.StartTime.Equal(first.StartTime) {
		t.Errorf("Session().StartTime = %v, want %v", got.StartTime, first.StartTime)
	}

	byUUID, err := s.SessionByUUID(ctx, second.UUID)
	if err != nil {
		t.Fatalf("Failed to load session by UUID: %v", err)
	}
	if byUUID.ID != second.ID || byUUID.Config != nil || byUUID.SerialNumber != "" {
		t.Errorf("SessionByUUID() = %+v, want %+v", byUUID, second)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != first.ID || sessions[1].ID != second.ID {
		t.Errorf("Sessions() returned %d sessions", len(sessions))
	}

	if _, err = s.Session(ctx, 999); err == nil {
		t.Error("Session() of unknown ID succeeded")
	}
}

func TestImuRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, testDesc, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	start := time.Date(2024, 11, 3, 8, 15, 0, 0, time.UTC)
	records := imuRecords(start, 100, 2500)

	if err = s.StoreImuSamples(ctx, sess.ID, records); err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	r, err := s.ReadImu(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer r.Close()

	if r.Session().UUID != sess.UUID {
		t.Errorf("Session().UUID = %s, want %s", r.Session().UUID, sess.UUID)
	}

	var n int
	for r.Next(ctx) {
		got := r.Current()
		want := records[n]

		if !got.ReceivedAt.Equal(want.ReceivedAt) {
			t.Fatalf("sample %d: ReceivedAt = %v, want %v", n, got.ReceivedAt, want.ReceivedAt)
		}
		if got.Data.FrameCount != want.Data.FrameCount || got.Data.G1 != want.Data.G1 || got.Data.R != want.Data.R {
			t.Fatalf("sample %d: got %+v, want %+v", n, got.Data, want.Data)
		}
		if got.Data.RotationM != zen.RotationFromQuaternion(want.Data.Q) {
			t.Fatalf("sample %d: RotationM = %v", n, got.Data.RotationM)
		}
		n++
	}
	if err = r.Error(); err != nil {
		t.Fatalf("Failed to read samples: %v", err)
	}
	if n != len(records) {
		t.Errorf("read %d samples, want %d", n, len(records))
	}
}

func TestImuFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, testDesc, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	start := time.Date(2024, 11, 3, 8, 15, 0, 0, time.UTC)
	if err = s.StoreImuSamples(ctx, sess.ID, imuRecords(start, 0, 100)); err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	testCases := []struct {
		name  string
		opts  []ReaderOption[ImuRecord]
		first uint32
		count int
	}{
		{
			name:  "all",
			count: 100,
		},
		{
			name:  "time range",
			opts:  []ReaderOption[ImuRecord]{WithTimeRange[ImuRecord](start.Add(100*time.Millisecond), start.Add(190*time.Millisecond))},
			first: 10,
			count: 10,
		},
		{
			name:  "start time",
			opts:  []ReaderOption[ImuRecord]{WithStartTime[ImuRecord](start.Add(900 * time.Millisecond))},
			first: 90,
			count: 10,
		},
		{
			name:  "end time",
			opts:  []ReaderOption[ImuRecord]{WithEndTime[ImuRecord](start.Add(40 * time.Millisecond))},
			count: 5,
		},
		{
			name:  "frame range",
			opts:  []ReaderOption[ImuRecord]{WithFrameRange(20, 29)},
			first: 20,
			count: 10,
		},
		{
			name: "time and frame range",
			opts: []ReaderOption[ImuRecord]{
				WithStartTime[ImuRecord](start.Add(250 * time.Millisecond)),
				WithFrameRange(20, 29),
			},
			first: 25,
			count: 5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := s.ReadImu(ctx, sess.ID, tc.opts...)
			if err != nil {
				t.Fatalf("Failed to create reader: %v", err)
			}
			defer r.Close()

			var frames []uint32
			for r.Next(ctx) {
				frames = append(frames, r.Current().Data.FrameCount)
			}
			if err = r.Error(); err != nil {
				t.Fatalf("Failed to read samples: %v", err)
			}

			if len(frames) != tc.count {
				t.Fatalf("read %d samples, want %d", len(frames), tc.count)
			}
			if frames[0] != tc.first {
				t.Errorf("first frame = %d, want %d", frames[0], tc.first)
			}
		})
	}

	if _, err = s.ReadImu(ctx, sess.ID, WithFrameRange(10, 5)); err == nil {
		t.Error("ReadImu() accepted an inverted frame range")
	}
	if _, err = s.ReadImu(ctx, sess.ID, WithTimeRange[ImuRecord](start.Add(time.Second), start)); err == nil {
		t.Error("ReadImu() accepted an inverted time range")
	}
}

func TestReadEmptySession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, testDesc, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err = s.ReadImu(ctx, sess.ID); !errors.Is(err, ErrNoData) {
		t.Errorf("ReadImu() error = %v, want ErrNoData", err)
	}
	if _, err = s.ReadGnss(ctx, sess.ID); !errors.Is(err, ErrNoData) {
		t.Errorf("ReadGnss() error = %v, want ErrNoData", err)
	}
	if err = s.StoreImuSamples(ctx, sess.ID, nil); err != nil {
		t.Errorf("StoreImuSamples(nil) failed: %v", err)
	}
}

func TestGnssRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, testDesc, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	receivedAt := time.Date(2024, 11, 3, 8, 15, 42, 500_000_000, time.UTC)
	records := []GnssRecord{
		{
			ReceivedAt: receivedAt,
			Data: zen.GnssData{
				Timestamp:            12.5,
				Latitude:             35.6812362,
				Longitude:            139.7671248,
				HorizontalAccuracy:   0.5,
				Height:               40.25,
				Velocity:             1.25,
				FixType:              zen.GnssFix3D,
				CarrierPhaseSolution: zen.CarrierPhaseFixedAmbiguities,
				NumberSatellitesUsed: 14,
				Year:                 2024,
				Month:                11,
				Day:                  3,
				Hour:                 8,
				Minute:               15,
				Second:               42,
				NanoSecondCorrection: 1500,
			},
		},
		{
			ReceivedAt: receivedAt.Add(100 * time.Millisecond),
			Data: zen.GnssData{
				Timestamp: 12.6,
				FixType:   zen.GnssFixNoFix,
			},
		},
	}

	if err = s.StoreGnssSamples(ctx, sess.ID, records); err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	r, err := s.ReadGnss(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer r.Close()

	var got []GnssRecord
	for r.Next(ctx) {
		got = append(got, *r.Current())
	}
	if err = r.Error(); err != nil {
		t.Fatalf("Failed to read samples: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("read %d samples, want %d", len(got), len(records))
	}

	first := got[0].Data
	if first.Latitude != records[0].Data.Latitude || first.Longitude != records[0].Data.Longitude ||
		first.FixType != zen.GnssFix3D || first.NumberSatellitesUsed != 14 ||
		first.CarrierPhaseSolution != zen.CarrierPhaseFixedAmbiguities {
		t.Errorf("first sample = %+v, want %+v", first, records[0].Data)
	}
	if !first.Time().Equal(records[0].Data.Time()) {
		t.Errorf("first sample time = %v, want %v", first.Time(), records[0].Data.Time())
	}
	if !got[1].Data.Time().IsZero() {
		t.Errorf("second sample time = %v, want zero", got[1].Data.Time())
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, testDesc, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	now := time.Now()
	events := []zen.Event{
		zen.NewEvent(0, 0, testDesc),
		zen.NewEvent(3, 0, zen.SensorDisconnected{Error: zen.ErrorIoReadFailed}),
	}
	for i, ev := range events {
		if err = s.StoreEvent(ctx, sess.ID, now.Add(time.Duration(i)*time.Second), ev); err != nil {
			t.Fatalf("Failed to store event: %v", err)
		}
	}

	got, err := s.Events(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("Events() returned %d events, want %d", len(got), len(events))
	}

	for i, e := range got {
		if e.Type != events[i].Type() || e.Sensor != events[i].Sensor() {
			t.Errorf("event %d = %s/%d, want %s/%d", i, e.Type, e.Sensor, events[i].Type(), events[i].Sensor())
		}

		var decoded struct {
			Type string `json:"type"`
		}
		if err = json.Unmarshal(e.Data, &decoded); err != nil {
			t.Fatalf("Failed to decode event data: %v", err)
		}
		if decoded.Type != events[i].Type().String() {
			t.Errorf("event %d data type = %s, want %s", i, decoded.Type, events[i].Type())
		}
	}
}
