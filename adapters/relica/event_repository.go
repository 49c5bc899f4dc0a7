package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// EventRepository implements streamsink.EventRepository using Relica.
type EventRepository struct {
	db *relica.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(sqlDB *sql.DB, driverName string) *EventRepository {
	return &EventRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *EventRepository) tableName() string {
	return model.EventRecord{}.TableName()
}

// Upsert inserts the event or updates the row with the same id.
func (r *EventRepository) Upsert(ctx context.Context, e model.EventRecord) error {
	err := upsert(ctx, r.db, r.tableName(), map[string]interface{}{
		"id":           e.ID,
		"type":         e.Type,
		"payload_json": e.PayloadJSON,
	})
	if err != nil {
		return streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to upsert event", err)
	}
	return nil
}

// Load retrieves an event by id.
func (r *EventRepository) Load(ctx context.Context, id string) (model.EventRecord, error) {
	var e model.EventRecord
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&e)
	if errors.Is(err, sql.ErrNoRows) {
		return e, streamsink.ErrNoData
	}
	if err != nil {
		return e, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to load event", err)
	}
	return e, nil
}
