package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// Store provides an interface for managing sensor recordings.
// It handles sessions, IMU and GNSS samples and the event log in a thread-safe manner.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession starts a new recording of the sensor described by desc.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - desc: Descriptor of the recorded sensor
	//   - config: Optional sensor configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - session: The created session, including its ID and UUID
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, desc zen.SensorDesc, config any) (*Session, error)

	// Session retrieves a recording session by its ID.
	Session(ctx context.Context, id int64) (*Session, error)

	// SessionByUUID retrieves a recording session by its UUID.
	SessionByUUID(ctx context.Context, id uuid.UUID) (*Session, error)

	// Sessions returns all sessions ordered by start time in ascending order.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreImuSamples saves IMU samples of a session.
	// All samples are stored in a single atomic transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session the samples belong to
	//   - samples: Samples in the order they should be read back
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreImuSamples(ctx context.Context, sessionID int64, samples []ImuRecord) error

	// StoreGnssSamples saves GNSS samples of a session.
	// All samples are stored in a single atomic transaction.
	StoreGnssSamples(ctx context.Context, sessionID int64, samples []GnssRecord) error

	// StoreEvent appends an event to the session event log.
	StoreEvent(ctx context.Context, sessionID int64, receivedAt time.Time, ev zen.Event) error

	// Events returns the event log of a session in the order events were received.
	Events(ctx context.Context, sessionID int64) ([]EventRecord, error)

	// ReadImu returns a reader over the IMU samples of a session.
	ReadImu(ctx context.Context, sessionID int64, opts ...ReaderOption[ImuRecord]) (*SqliteReader[ImuRecord], error)

	// ReadGnss returns a reader over the GNSS samples of a session.
	ReadGnss(ctx context.Context, sessionID int64, opts ...ReaderOption[GnssRecord]) (*SqliteReader[GnssRecord], error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)

var (
	_ Reader[ImuRecord]  = (*SqliteReader[ImuRecord])(nil)
	_ Reader[GnssRecord] = (*SqliteReader[GnssRecord])(nil)
)
