package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// DeadLetterRepository implements streamsink.DeadLetterRepository using Relica.
type DeadLetterRepository struct {
	db *relica.DB
}

// NewDeadLetterRepository creates a new DeadLetterRepository.
func NewDeadLetterRepository(sqlDB *sql.DB, driverName string) *DeadLetterRepository {
	return &DeadLetterRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *DeadLetterRepository) tableName() string {
	return model.DeadLetter{}.TableName()
}

// Load retrieves an archived item by ID.
func (r *DeadLetterRepository) Load(ctx context.Context, id int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, streamsink.ErrNoData
	}
	if err != nil {
		return dl, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to load dead letter", err)
	}
	return dl, nil
}

// Save creates or updates an archived item.
func (r *DeadLetterRepository) Save(ctx context.Context, m model.DeadLetter) (model.DeadLetter, error) {
	if m.ID == 0 {
		// m.ID is auto-populated by Model().Insert()
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to insert dead letter", err)
		}
		return m, nil
	}

	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to update dead letter", err)
	}
	return m, nil
}

// FindBySource retrieves the item archived for one source record.
func (r *DeadLetterRepository) FindBySource(ctx context.Context, stream string, partition int32, offset int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("original_stream = ? AND partition_hint = ? AND source_offset = ?", stream, partition, offset).
		One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, streamsink.ErrNoData
	}
	if err != nil {
		return dl, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to find dead letter by source", err)
	}
	return dl, nil
}

// FindUnresolved retrieves unresolved items, oldest first.
func (r *DeadLetterRepository) FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	var items []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ?", false).
		OrderBy("dead_lettered_at ASC").
		Limit(listLimit(limit)).
		WithContext(ctx).
		All(&items)
	if err != nil {
		return nil, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to find unresolved dead letters", err)
	}
	if len(items) == 0 {
		return nil, streamsink.ErrNoData
	}
	return items, nil
}

// FindByStream retrieves items from one source stream, newest first.
func (r *DeadLetterRepository) FindByStream(ctx context.Context, stream string, limit int) ([]model.DeadLetter, error) {
	var items []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("original_stream = ?", stream).
		OrderBy("dead_lettered_at DESC").
		Limit(listLimit(limit)).
		WithContext(ctx).
		All(&items)
	if err != nil {
		return nil, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to find dead letters by stream", err)
	}
	if len(items) == 0 {
		return nil, streamsink.ErrNoData
	}
	return items, nil
}

// FindOlderThan retrieves unresolved items dead-lettered before now-threshold.
func (r *DeadLetterRepository) FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error) {
	var items []model.DeadLetter
	cutoffTime := time.Now().Add(-threshold)
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ? AND dead_lettered_at < ?", false, cutoffTime).
		OrderBy("dead_lettered_at ASC").
		Limit(listLimit(limit)).
		WithContext(ctx).
		All(&items)
	if err != nil {
		return nil, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to find old dead letters", err)
	}
	if len(items) == 0 {
		return nil, streamsink.ErrNoData
	}
	return items, nil
}

type streamRow struct {
	OriginalStream string `db:"original_stream"`
	IsResolved     bool   `db:"is_resolved"`
}

// GetStats retrieves aggregate counts over the archive.
func (r *DeadLetterRepository) GetStats(ctx context.Context) (model.DeadLetterStats, error) {
	stats := model.DeadLetterStats{ByStream: map[string]int{}, LastUpdated: time.Now()}

	var rows []streamRow
	err := r.db.WithContext(ctx).Select("original_stream, is_resolved").From(r.tableName()).All(&rows)
	if err != nil {
		return stats, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to collect dead letter stats", err)
	}

	for _, row := range rows {
		stats.TotalItems++
		if !row.IsResolved {
			stats.UnresolvedItems++
		}
		stats.ByStream[row.OriginalStream]++
	}
	stats.ResolvedItems = stats.TotalItems - stats.UnresolvedItems
	return stats, nil
}
