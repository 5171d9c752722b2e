package ig1

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

func near(a, b, tolerance float32) bool {
	return float32(math.Abs(float64(a-b))) <= tolerance
}

func nearVec(a, b []float32, tolerance float32) bool {
	for i := range a {
		if !near(a[i], b[i], tolerance) {
			return false
		}
	}
	return true
}

// packet16 builds a 16-bit packet by hand: timestamp followed by raw int16 values.
func packet16(ts uint32, values ...int16) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, ts)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
	}
	return buf
}

func TestDecodeImu16Bit(t *testing.T) {
	cfg := OutputAccCalibrated | OutputGyro0AlignCalib | OutputQuaternion | OutputEuler | OutputTemperature | Output16Bit

	data := packet16(500,
		1000, -2000, 500, // acc: 1, -2, 0.5 g
		123, 0, -10,      // gyro0: 12.3, 0, -1 deg/s
		10000, 0, 0, 0,   // quaternion identity
		9000, -4500, 100, // euler: 90, -45, 1 deg
		2550,             // temperature: 25.5 C
	)
	if len(data) != cfg.PacketSize() {
		t.Fatalf("packet size = %d, want %d", len(data), cfg.PacketSize())
	}

	d, err := DecodeImu(data, cfg)
	if err != nil {
		t.Fatalf("DecodeImu() failed: %v", err)
	}

	if d.FrameCount != 500 || math.Abs(d.Timestamp-1.0) > 1e-9 {
		t.Errorf("frame/timestamp = %d/%v, want 500/1.0", d.FrameCount, d.Timestamp)
	}
	if !nearVec(d.A[:], []float32{1, -2, 0.5}, 1e-6) {
		t.Errorf("A = %v", d.A)
	}
	if !nearVec(d.G1[:], []float32{12.3, 0, -1}, 1e-5) {
		t.Errorf("G1 = %v", d.G1)
	}
	if !nearVec(d.Q[:], []float32{1, 0, 0, 0}, 1e-6) {
		t.Errorf("Q = %v", d.Q)
	}
	if !nearVec(d.R[:], []float32{90, -45, 1}, 1e-5) {
		t.Errorf("R = %v", d.R)
	}
	if !near(d.Temperature, 25.5, 1e-5) {
		t.Errorf("Temperature = %v", d.Temperature)
	}
	if d.RotationM != [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1} {
		t.Errorf("RotationM = %v, want identity", d.RotationM)
	}
}

func TestDecodeImu16BitRadians(t *testing.T) {
	cfg := OutputGyro0Raw | OutputGyro1Raw | OutputEuler | Output16Bit | OutputRadians

	// pi/2 rad for gyro0 (1/1000 rad), gyro1 (1/100 rad) and euler (1/10000 rad)
	data := packet16(1,
		1571, 0, 0,
		157, 0, 0,
		15708, 0, 0,
	)

	d, err := DecodeImu(data, cfg)
	if err != nil {
		t.Fatalf("DecodeImu() failed: %v", err)
	}

	if !near(d.G1Raw[0], 90, 0.05) {
		t.Errorf("G1Raw[0] = %v, want ~90", d.G1Raw[0])
	}
	if !near(d.G2Raw[0], 90, 0.5) {
		t.Errorf("G2Raw[0] = %v, want ~90", d.G2Raw[0])
	}
	if !near(d.R[0], 90, 0.01) {
		t.Errorf("R[0] = %v, want ~90", d.R[0])
	}
}

func TestImuRoundTrip(t *testing.T) {
	in := zen.ImuData{
		FrameCount:  1234,
		A:           [3]float32{0.01, -0.02, -1.0},
		G2:          [3]float32{1.5, -3.25, 0.5},
		B:           [3]float32{20.5, -30.25, 40},
		Q:           [4]float32{0.7071, 0, 0, 0.7071},
		R:           [3]float32{10, 20, -30},
		LinAcc:      [3]float32{0.001, 0.002, 0.003},
		Pressure:    1013.2,
		Altitude:    120.5,
		Temperature: 31.25,
	}

	testCases := []struct {
		name      string
		cfg       OutputConfig
		tolerance float32
	}{
		{"float32", DefaultOutputConfig | OutputPressure | OutputAltitude | OutputTemperature, 1e-4},
		{"float32 radians", DefaultOutputConfig | OutputRadians, 1e-3},
		{"int16", DefaultOutputConfig | OutputPressure | OutputAltitude | OutputTemperature | Output16Bit, 0.1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := EncodeImu(in, tc.cfg)
			if len(raw) != tc.cfg.PacketSize() {
				t.Fatalf("encoded %d bytes, want %d", len(raw), tc.cfg.PacketSize())
			}

			out, err := DecodeImu(raw, tc.cfg)
			if err != nil {
				t.Fatalf("DecodeImu() failed: %v", err)
			}
			if out.FrameCount != in.FrameCount {
				t.Errorf("FrameCount = %d, want %d", out.FrameCount, in.FrameCount)
			}

			checks := []struct {
				name    string
				got, in []float32
			}{
				{"A", out.A[:], in.A[:]},
				{"G2", out.G2[:], in.G2[:]},
				{"B", out.B[:], in.B[:]},
				{"R", out.R[:], in.R[:]},
				{"LinAcc", out.LinAcc[:], in.LinAcc[:]},
			}
			for _, c := range checks {
				if !nearVec(c.got, c.in, tc.tolerance) {
					t.Errorf("%s = %v, want %v", c.name, c.got, c.in)
				}
			}
			if !nearVec(out.Q[:], in.Q[:], 1e-3) {
				t.Errorf("Q = %v, want %v", out.Q, in.Q)
			}
			if tc.cfg&OutputPressure != 0 && !near(out.Pressure, in.Pressure, tc.tolerance) {
				t.Errorf("Pressure = %v, want %v", out.Pressure, in.Pressure)
			}
		})
	}
}

func TestDecodeImuShortPacket(t *testing.T) {
	raw := EncodeImu(zen.ImuData{}, DefaultOutputConfig)

	_, err := DecodeImu(raw[:len(raw)-1], DefaultOutputConfig)
	if !errors.Is(err, ErrShortPacket) {
		t.Errorf("DecodeImu() error = %v, want ErrShortPacket", err)
	}
}

func TestGnssRoundTrip(t *testing.T) {
	in := zen.GnssData{
		Timestamp:            12.5,
		Latitude:             35.6812362,
		Longitude:            139.7671248,
		HorizontalAccuracy:   0.5,
		VerticalAccuracy:     0.75,
		Height:               40.25,
		Heading:              181.5,
		HeadingAccuracy:      2,
		Velocity:             1.25,
		VelocityAccuracy:     0.125,
		FixType:              zen.GnssFix3D,
		CarrierPhaseSolution: zen.CarrierPhaseFixedAmbiguities,
		NumberSatellitesUsed: 14,
		Year:                 2024,
		Month:                11,
		Day:                  3,
		Hour:                 8,
		Minute:               15,
		Second:               42,
		NanoSecondCorrection: -1500,
	}

	raw := EncodeGnss(in)
	if len(raw) != GnssPacketSize {
		t.Fatalf("encoded %d bytes, want %d", len(raw), GnssPacketSize)
	}

	out, err := DecodeGnss(raw)
	if err != nil {
		t.Fatalf("DecodeGnss() failed: %v", err)
	}
	if out != in {
		t.Errorf("DecodeGnss() = %+v, want %+v", out, in)
	}

	if _, err = DecodeGnss(raw[:40]); !errors.Is(err, ErrShortPacket) {
		t.Errorf("DecodeGnss(short) error = %v, want ErrShortPacket", err)
	}
}

func TestOutputConfigYAML(t *testing.T) {
	var cfg struct {
		Output OutputConfig `yaml:"output"`
	}

	src := "output: [accCalibrated, quaternion, euler, 16bit]\n"
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() failed: %v", err)
	}

	want := OutputAccCalibrated | OutputQuaternion | OutputEuler | Output16Bit
	if cfg.Output != want {
		t.Errorf("Output = %s, want %s", cfg.Output, want)
	}
	if err := cfg.Output.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}

	p, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() failed: %v", err)
	}
	var back struct {
		Output OutputConfig `yaml:"output"`
	}
	if err = yaml.Unmarshal(p, &back); err != nil {
		t.Fatalf("yaml.Unmarshal() of marshaled config failed: %v", err)
	}
	if back.Output != want {
		t.Errorf("round trip Output = %s, want %s", back.Output, want)
	}

	if err = yaml.Unmarshal([]byte("output: [bogus]\n"), &cfg); err == nil {
		t.Error("yaml.Unmarshal() accepted an unknown output name")
	}
	if err = Output16Bit.Validate(); err == nil {
		t.Error("Validate() accepted a config without fields")
	}
}

func TestDecodeString(t *testing.T) {
	s, err := DecodeString([]byte("LPMS-IG1\x00\x00\x00"))
	if err != nil || s != "LPMS-IG1" {
		t.Errorf("DecodeString() = %q, %v; want LPMS-IG1", s, err)
	}
	if _, err = DecodeString([]byte{0x01, 'a'}); !errors.Is(err, ErrBadString) {
		t.Errorf("DecodeString() error = %v, want ErrBadString", err)
	}
}
