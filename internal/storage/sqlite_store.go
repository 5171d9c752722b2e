package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		// Sqlite allows a single writer
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, desc zen.SensorDesc, config any) (session *Session, err error) {
	configData, err := configString(config)
	if err != nil {
		return
	}

	id, err := uuid.NewRandom()
	if err != nil {
		err = fmt.Errorf("generating session UUID: %w", err)
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	sess := Session{
		UUID:         id,
		StartTime:    time.Now().UTC(),
		IoType:       desc.IoType,
		SensorName:   desc.Name,
		SerialNumber: desc.SerialNumber,
		Identifier:   desc.Identifier,
	}
	if configData.Valid {
		sess.Config = &configData.String
	}

	serialNumber := sql.NullString{String: desc.SerialNumber, Valid: desc.SerialNumber != ""}

	result, err := stmt.ExecContext(ctx, sess.UUID, sess.StartTime, sess.IoType, sess.SensorName, serialNumber, sess.Identifier, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	if sess.ID, err = result.LastInsertId(); err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
		return
	}
	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (*Session, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return querySession(ctx, db, selectSessionSQL, id)
}

func (s *SqliteStore) SessionByUUID(ctx context.Context, id uuid.UUID) (*Session, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return querySession(ctx, db, selectSessionByUUIDSQL, id)
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			return
		}
		sessions = append(sessions, sess)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func querySession(ctx context.Context, db *sql.DB, query string, arg any) (session *Session, err error) {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	return scanSession(stmt.QueryRowContext(ctx, arg))
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var serialNumber, config sql.NullString

	if err := row.Scan(&sess.ID, &sess.UUID, &sess.StartTime, &sess.IoType, &sess.SensorName, &serialNumber, &sess.Identifier, &config); err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	sess.SerialNumber = serialNumber.String
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

// StoreImuSamples inserts samples in a single transaction.
func (s *SqliteStore) StoreImuSamples(ctx context.Context, sessionID int64, samples []ImuRecord) error {
	return batchInsert(ctx, s, insertImuSampleSQL, imuColumnsCount, samples, func(r ImuRecord) []any {
		return imuValues(sessionID, r)
	})
}

// StoreGnssSamples inserts samples in a single transaction.
func (s *SqliteStore) StoreGnssSamples(ctx context.Context, sessionID int64, samples []GnssRecord) error {
	return batchInsert(ctx, s, insertGnssSampleSQL, gnssColumnsCount, samples, func(r GnssRecord) []any {
		return gnssValues(sessionID, r)
	})
}

func batchInsert[T any](ctx context.Context, s *SqliteStore, insertSQL string, columns int, records []T, values func(T) []any) (err error) {
	if len(records) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	valuesPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", columns), ", ") + ")"

	for chunk := range slices.Chunk(records, maxInsertRows) {
		args := make([]any, 0, len(chunk)*columns)

		var sb strings.Builder

		sb.WriteString(insertSQL)

		for i, r := range chunk {
			args = append(args, values(r)...)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("batch inserting samples: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// StoreEvent logs ev as JSON.
func (s *SqliteStore) StoreEvent(ctx context.Context, sessionID int64, receivedAt time.Time, ev zen.Event) (err error) {
	data, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertEventSQL, sessionID, receivedAt.UTC(), int64(ev.Type()), int64(ev.Sensor()), string(data)); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func (s *SqliteStore) Events(ctx context.Context, sessionID int64) (events []EventRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectEventsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying events: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var e EventRecord
		var eventType, sensor int64
		var data string
		if err = rows.Scan(&e.ID, &e.ReceivedAt, &eventType, &sensor, &data); err != nil {
			err = fmt.Errorf("scanning event: %w", err)
			return
		}
		e.Type = zen.EventType(eventType)
		e.Sensor = zen.SensorHandle(sensor)
		e.Data = []byte(data)
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating events: %w", err)
	}
	return
}

// ReadImu returns a reader over the IMU samples of a session. It returns
// ErrNoData when the session has no IMU samples.
//
// The returned reader must be closed after use to release database resources.
func (s *SqliteStore) ReadImu(ctx context.Context, sessionID int64, opts ...ReaderOption[ImuRecord]) (*SqliteReader[ImuRecord], error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteReader(ctx, db, sessionID, imuQueries, opts...)
}

// ReadGnss returns a reader over the GNSS samples of a session. It returns
// ErrNoData when the session has no GNSS samples.
//
// The returned reader must be closed after use to release database resources.
func (s *SqliteStore) ReadGnss(ctx context.Context, sessionID int64, opts ...ReaderOption[GnssRecord]) (*SqliteReader[GnssRecord], error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteReader(ctx, db, sessionID, gnssQueries, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
