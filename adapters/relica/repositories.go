package relica

import (
	"context"
	"database/sql"

	"github.com/coregx/relica"

	"github.com/coregx/streamsink"
)

// defaultListLimit caps list queries called with a non-positive limit.
const defaultListLimit = 1000

func listLimit(limit int) int64 {
	if limit <= 0 {
		return defaultListLimit
	}
	return int64(limit)
}

// upsert inserts values or, when a row with the same id exists, overwrites
// every other column. Relica emits ON CONFLICT for PostgreSQL and SQLite and
// ON DUPLICATE KEY UPDATE for MySQL.
func upsert(ctx context.Context, db *relica.DB, table string, values map[string]interface{}) error {
	_, err := db.Builder().
		Upsert(table, values).
		OnConflict("id").
		WithContext(ctx).
		Execute()
	return err
}

// Repositories holds all repository implementations.
type Repositories struct {
	User         streamsink.UserRepository
	Order        streamsink.OrderRepository
	Notification streamsink.NotificationRepository
	Event        streamsink.EventRepository
	DeadLetter   streamsink.DeadLetterRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db, driverName),
		Order:        NewOrderRepository(db, driverName),
		Notification: NewNotificationRepository(db, driverName),
		Event:        NewEventRepository(db, driverName),
		DeadLetter:   NewDeadLetterRepository(db, driverName),
	}
}
