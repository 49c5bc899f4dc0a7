package streamsink

import (
	"context"
	"time"

	"github.com/coregx/streamsink/model"
)

// UserRepository persists users keyed by id.
//
// Implementations must be safe for concurrent use: every partition worker of
// the users stream shares one repository.
type UserRepository interface {
	// Upsert inserts the user or replaces the row with the same id.
	Upsert(ctx context.Context, u model.User) error

	// Load retrieves a user by id.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id string) (model.User, error)

	// FindAll retrieves up to limit users ordered by id.
	// Returns ErrNoData if the table is empty.
	FindAll(ctx context.Context, limit int) ([]model.User, error)
}

// OrderRepository persists orders keyed by id.
type OrderRepository interface {
	// Upsert inserts the order or replaces the row with the same id.
	Upsert(ctx context.Context, o model.Order) error

	// Load retrieves an order by id.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id string) (model.Order, error)

	// FindAll retrieves up to limit orders ordered by id.
	// Returns ErrNoData if the table is empty.
	FindAll(ctx context.Context, limit int) ([]model.Order, error)

	// FindByUser retrieves up to limit orders placed by userID.
	// Returns ErrNoData if there are none.
	FindByUser(ctx context.Context, userID string, limit int) ([]model.Order, error)
}

// NotificationRepository persists notifications keyed by id.
type NotificationRepository interface {
	// Upsert inserts the notification or replaces the row with the same id.
	Upsert(ctx context.Context, n model.Notification) error

	// Load retrieves a notification by id.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id string) (model.Notification, error)
}

// EventRepository persists generic events keyed by id.
type EventRepository interface {
	// Upsert inserts the event or replaces the row with the same id.
	Upsert(ctx context.Context, e model.EventRecord) error

	// Load retrieves an event by id.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id string) (model.EventRecord, error)
}

// DeadLetterRepository persists the dead-letter archive.
type DeadLetterRepository interface {
	// Load retrieves an archived item by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.DeadLetter, error)

	// Save creates a new item (if ID=0) or updates an existing one.
	// Returns the saved item with populated ID.
	Save(ctx context.Context, m model.DeadLetter) (model.DeadLetter, error)

	// FindBySource retrieves the item archived for one source record.
	// Returns ErrNoData if not found.
	FindBySource(ctx context.Context, stream string, partition int32, offset int64) (model.DeadLetter, error)

	// FindUnresolved retrieves unresolved items, oldest first.
	// Returns ErrNoData if there are none.
	FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error)

	// FindByStream retrieves items from one source stream, newest first.
	// Returns ErrNoData if there are none.
	FindByStream(ctx context.Context, stream string, limit int) ([]model.DeadLetter, error)

	// FindOlderThan retrieves unresolved items dead-lettered before now-threshold.
	// Returns ErrNoData if there are none.
	FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error)

	// GetStats retrieves aggregate counts over the archive.
	GetStats(ctx context.Context) (model.DeadLetterStats, error)
}
