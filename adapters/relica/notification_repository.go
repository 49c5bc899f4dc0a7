package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// NotificationRepository implements streamsink.NotificationRepository using Relica.
type NotificationRepository struct {
	db *relica.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(sqlDB *sql.DB, driverName string) *NotificationRepository {
	return &NotificationRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *NotificationRepository) tableName() string {
	return model.Notification{}.TableName()
}

// Upsert inserts the notification or updates the row with the same id.
func (r *NotificationRepository) Upsert(ctx context.Context, n model.Notification) error {
	err := upsert(ctx, r.db, r.tableName(), map[string]interface{}{
		"id":      n.ID,
		"message": n.Message,
		"level":   n.Level,
	})
	if err != nil {
		return streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to upsert notification", err)
	}
	return nil
}

// Load retrieves a notification by id.
func (r *NotificationRepository) Load(ctx context.Context, id string) (model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return n, streamsink.ErrNoData
	}
	if err != nil {
		return n, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to load notification", err)
	}
	return n, nil
}
