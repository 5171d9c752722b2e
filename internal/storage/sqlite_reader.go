package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoData indicates either that no samples exist for the given parameters,
// or that all available samples have been read from the reader.
var ErrNoData = errors.New("no data available")

// Reader provides an iterator-based interface for reading recorded samples
// with optional time and frame filtering.
type Reader[T Record] interface {
	// Session returns metadata about the recording this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another sample
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sample in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *T

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	// After Close is called, the reader should not be used.
	Close() error
}

// ReaderOption configures a Reader with specific filtering criteria.
type ReaderOption[T Record] func(*SqliteReader[T])

// WithStartTime excludes samples received before t.
func WithStartTime[T Record](t time.Time) ReaderOption[T] {
	return func(r *SqliteReader[T]) {
		r.startTime = &t
	}
}

// WithEndTime excludes samples received after t.
func WithEndTime[T Record](t time.Time) ReaderOption[T] {
	return func(r *SqliteReader[T]) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange[T Record](startTime, endTime time.Time) ReaderOption[T] {
	return func(r *SqliteReader[T]) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithFrameRange limits IMU samples to frame counters between first and last, inclusive.
func WithFrameRange(first, last uint32) ReaderOption[ImuRecord] {
	return func(r *SqliteReader[ImuRecord]) {
		r.firstFrame = &first
		r.lastFrame = &last
	}
}

// readerQueries binds a record type to its table.
type readerQueries[T Record] struct {
	selectSQL    string
	timeRangeSQL string
	scan         func(*sql.Rows) (T, error)
}

var (
	imuQueries = readerQueries[ImuRecord]{
		selectSQL:    selectImuSamplesSQL,
		timeRangeSQL: selectImuTimeRangeSQL,
		scan:         scanImu,
	}

	gnssQueries = readerQueries[GnssRecord]{
		selectSQL:    selectGnssSamplesSQL,
		timeRangeSQL: selectGnssTimeRangeSQL,
		scan:         scanGnss,
	}
)

func newSqliteReader[T Record](ctx context.Context, db *sql.DB, sessionID int64, queries readerQueries[T], opts ...ReaderOption[T]) (*SqliteReader[T], error) {
	r := &SqliteReader[T]{
		db:        db,
		sessionID: sessionID,
		queries:   queries,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

// SqliteReader implements Reader for SQLite database backend.
type SqliteReader[T Record] struct {
	db *sql.DB

	sessionID int64
	session   *Session
	queries   readerQueries[T]

	startTime  *time.Time // Optional start of time range filter
	endTime    *time.Time // Optional end of time range filter
	firstFrame *uint32    // Optional first frame counter
	lastFrame  *uint32    // Optional last frame counter

	current *T
	rows    *sql.Rows
	err     error
}

func (r *SqliteReader[T]) init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: r.loadSession},
		{msg: "initializing filters", fn: r.initFilters},
		{msg: "initializing query", fn: r.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (r *SqliteReader[T]) loadSession(ctx context.Context) (err error) {
	r.session, err = querySession(ctx, r.db, selectSessionSQL, r.sessionID)
	return
}

func (r *SqliteReader[T]) initFilters(ctx context.Context) error {
	if r.startTime != nil && r.endTime != nil && r.startTime.After(*r.endTime) {
		return fmt.Errorf("start time %s is after end time %s", r.startTime, r.endTime)
	}
	if r.firstFrame != nil && *r.firstFrame > *r.lastFrame {
		return fmt.Errorf("first frame %d is after last frame %d", *r.firstFrame, *r.lastFrame)
	}

	var startTime, endTime sqliteDatetime
	var count int64
	if err := r.db.QueryRowContext(ctx, r.queries.timeRangeSQL, r.sessionID).Scan(&startTime, &endTime, &count); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}
	if count == 0 || !startTime.Valid || !endTime.Valid {
		return ErrNoData
	}

	if r.startTime == nil {
		r.startTime = &startTime.Datetime
	}
	if r.endTime == nil {
		r.endTime = &endTime.Datetime
	}

	return nil
}

func (r *SqliteReader[T]) initQuery(ctx context.Context) (err error) {
	query := r.queries.selectSQL
	args := []any{r.sessionID, r.startTime.UTC(), r.endTime.UTC()}

	if r.firstFrame != nil {
		query += "\n    AND frame_count BETWEEN ? AND ?"
		args = append(args, int64(*r.firstFrame), int64(*r.lastFrame))
	}
	query += "\nORDER BY received_at, id"

	if r.rows, err = r.db.QueryContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

func (r *SqliteReader[T]) Session() *Session {
	return r.session
}

func (r *SqliteReader[T]) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			r.err = fmt.Errorf("iterating samples: %w", err)
		} else {
			r.err = ErrNoData
		}
		return false
	}

	current, err := r.queries.scan(r.rows)
	if err != nil {
		r.err = err
		return false
	}

	r.current = &current
	return true
}

func (r *SqliteReader[T]) Current() *T {
	return r.current
}

func (r *SqliteReader[T]) Error() error {
	if errors.Is(r.err, ErrNoData) {
		return nil
	}
	return r.err
}

func (r *SqliteReader[T]) Close() error {
	if r.rows == nil {
		return nil
	}

	err := r.rows.Close()
	r.rows = nil
	return err
}
