package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rbErr := rb.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone && *err == nil {
		*err = rbErr
	}
}

// sqliteDatetime scans DATETIME values that lost their column type, such as
// the results of MIN() and MAX(), which the driver returns as plain text.
type sqliteDatetime struct {
	Datetime time.Time
	Valid    bool
}

func (d *sqliteDatetime) Scan(value any) error {
	var s string

	switch v := value.(type) {
	case nil:
		d.Datetime, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Datetime, d.Valid = v, true
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported datetime value type %T", value)
	}

	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			d.Datetime, d.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized datetime format '%s'", s)
}

func configString(config any) (sql.NullString, error) {
	switch v := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(config)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func imuValues(sessionID int64, r ImuRecord) []any {
	d := &r.Data
	return []any{
		sessionID,
		r.ReceivedAt.UTC(),
		d.Timestamp,
		int64(d.FrameCount),
		d.A[0], d.A[1], d.A[2],
		d.G1[0], d.G1[1], d.G1[2],
		d.G2[0], d.G2[1], d.G2[2],
		d.B[0], d.B[1], d.B[2],
		d.W[0], d.W[1], d.W[2],
		d.R[0], d.R[1], d.R[2],
		d.Q[0], d.Q[1], d.Q[2], d.Q[3],
		d.LinAcc[0], d.LinAcc[1], d.LinAcc[2],
		d.Pressure,
		d.Altitude,
		d.Temperature,
	}
}

func scanImu(rows *sql.Rows) (ImuRecord, error) {
	var r ImuRecord
	var frameCount int64
	d := &r.Data

	err := rows.Scan(
		&r.ReceivedAt,
		&d.Timestamp,
		&frameCount,
		&d.A[0], &d.A[1], &d.A[2],
		&d.G1[0], &d.G1[1], &d.G1[2],
		&d.G2[0], &d.G2[1], &d.G2[2],
		&d.B[0], &d.B[1], &d.B[2],
		&d.W[0], &d.W[1], &d.W[2],
		&d.R[0], &d.R[1], &d.R[2],
		&d.Q[0], &d.Q[1], &d.Q[2], &d.Q[3],
		&d.LinAcc[0], &d.LinAcc[1], &d.LinAcc[2],
		&d.Pressure,
		&d.Altitude,
		&d.Temperature,
	)
	if err != nil {
		return ImuRecord{}, fmt.Errorf("scanning imu sample: %w", err)
	}

	d.FrameCount = uint32(frameCount)
	d.RotationM = zen.RotationFromQuaternion(d.Q)
	return r, nil
}

func gnssValues(sessionID int64, r GnssRecord) []any {
	d := &r.Data

	var utc sql.NullTime
	if t := d.Time(); !t.IsZero() {
		utc = sql.NullTime{Time: t, Valid: true}
	}

	return []any{
		sessionID,
		r.ReceivedAt.UTC(),
		d.Timestamp,
		d.Latitude,
		d.Longitude,
		d.HorizontalAccuracy,
		d.VerticalAccuracy,
		d.Height,
		d.Heading,
		d.HeadingAccuracy,
		d.Velocity,
		d.VelocityAccuracy,
		int64(d.FixType),
		int64(d.CarrierPhaseSolution),
		int64(d.NumberSatellitesUsed),
		utc,
	}
}

func scanGnss(rows *sql.Rows) (GnssRecord, error) {
	var r GnssRecord
	var fixType, carrierPhase, satellites int64
	var utc sqliteDatetime
	d := &r.Data

	err := rows.Scan(
		&r.ReceivedAt,
		&d.Timestamp,
		&d.Latitude,
		&d.Longitude,
		&d.HorizontalAccuracy,
		&d.VerticalAccuracy,
		&d.Height,
		&d.Heading,
		&d.HeadingAccuracy,
		&d.Velocity,
		&d.VelocityAccuracy,
		&fixType,
		&carrierPhase,
		&satellites,
		&utc,
	)
	if err != nil {
		return GnssRecord{}, fmt.Errorf("scanning gnss sample: %w", err)
	}

	d.FixType = zen.GnssFixType(fixType)
	d.CarrierPhaseSolution = zen.CarrierPhaseSolution(carrierPhase)
	d.NumberSatellitesUsed = uint8(satellites)

	if utc.Valid {
		t := utc.Datetime.UTC()
		d.Year = uint16(t.Year())
		d.Month = uint8(t.Month())
		d.Day = uint8(t.Day())
		d.Hour = uint8(t.Hour())
		d.Minute = uint8(t.Minute())
		d.Second = uint8(t.Second())
		d.NanoSecondCorrection = int32(t.Nanosecond())
	}
	return r, nil
}
