package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// Repositories holds every in-memory repository.
type Repositories struct {
	User         *UserRepository
	Order        *OrderRepository
	Notification *NotificationRepository
	Event        *EventRepository
	DeadLetter   *DeadLetterRepository
}

// NewRepositories creates empty repositories.
func NewRepositories() *Repositories {
	return &Repositories{
		User:         &UserRepository{rows: map[string]model.User{}},
		Order:        &OrderRepository{rows: map[string]model.Order{}},
		Notification: &NotificationRepository{rows: map[string]model.Notification{}},
		Event:        &EventRepository{rows: map[string]model.EventRecord{}},
		DeadLetter:   &DeadLetterRepository{rows: map[int64]model.DeadLetter{}},
	}
}

// sortedLimit sorts rows by key and truncates to limit (limit <= 0 means all).
func sortedLimit[T any](rows []T, less func(a, b T) bool, limit int) []T {
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// UserRepository implements streamsink.UserRepository.
type UserRepository struct {
	mu   sync.RWMutex
	rows map[string]model.User
}

// Upsert stores u, replacing any row with the same id.
func (r *UserRepository) Upsert(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[u.ID] = u
	return nil
}

// Load retrieves a user by id.
func (r *UserRepository) Load(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.rows[id]
	if !ok {
		return u, streamsink.ErrNoData
	}
	return u, nil
}

// FindAll retrieves users ordered by id.
func (r *UserRepository) FindAll(_ context.Context, limit int) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.rows) == 0 {
		return nil, streamsink.ErrNoData
	}
	return sortedLimit(lo.Values(r.rows), func(a, b model.User) bool { return a.ID < b.ID }, limit), nil
}

// OrderRepository implements streamsink.OrderRepository.
type OrderRepository struct {
	mu   sync.RWMutex
	rows map[string]model.Order
}

// Upsert stores o, replacing any row with the same id.
func (r *OrderRepository) Upsert(_ context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[o.ID] = o
	return nil
}

// Load retrieves an order by id.
func (r *OrderRepository) Load(_ context.Context, id string) (model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.rows[id]
	if !ok {
		return o, streamsink.ErrNoData
	}
	return o, nil
}

// FindAll retrieves orders ordered by id.
func (r *OrderRepository) FindAll(_ context.Context, limit int) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.rows) == 0 {
		return nil, streamsink.ErrNoData
	}
	return sortedLimit(lo.Values(r.rows), func(a, b model.Order) bool { return a.ID < b.ID }, limit), nil
}

// FindByUser retrieves the orders of one user ordered by id.
func (r *OrderRepository) FindByUser(_ context.Context, userID string, limit int) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := lo.Filter(lo.Values(r.rows), func(o model.Order, _ int) bool { return o.UserID == userID })
	if len(rows) == 0 {
		return nil, streamsink.ErrNoData
	}
	return sortedLimit(rows, func(a, b model.Order) bool { return a.ID < b.ID }, limit), nil
}

// NotificationRepository implements streamsink.NotificationRepository.
type NotificationRepository struct {
	mu   sync.RWMutex
	rows map[string]model.Notification
}

// Upsert stores n, replacing any row with the same id.
func (r *NotificationRepository) Upsert(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[n.ID] = n
	return nil
}

// Load retrieves a notification by id.
func (r *NotificationRepository) Load(_ context.Context, id string) (model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.rows[id]
	if !ok {
		return n, streamsink.ErrNoData
	}
	return n, nil
}

// EventRepository implements streamsink.EventRepository.
type EventRepository struct {
	mu   sync.RWMutex
	rows map[string]model.EventRecord
}

// Upsert stores e, replacing any row with the same id.
func (r *EventRepository) Upsert(_ context.Context, e model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[e.ID] = e
	return nil
}

// Load retrieves an event by id.
func (r *EventRepository) Load(_ context.Context, id string) (model.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rows[id]
	if !ok {
		return e, streamsink.ErrNoData
	}
	return e, nil
}

// DeadLetterRepository implements streamsink.DeadLetterRepository.
type DeadLetterRepository struct {
	mu     sync.RWMutex
	rows   map[int64]model.DeadLetter
	nextID int64
}

// Load retrieves an archived item by ID.
func (r *DeadLetterRepository) Load(_ context.Context, id int64) (model.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.rows[id]
	if !ok {
		return d, streamsink.ErrNoData
	}
	return d, nil
}

// Save inserts m when its ID is zero and replaces the stored row otherwise.
func (r *DeadLetterRepository) Save(_ context.Context, m model.DeadLetter) (model.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	} else if _, ok := r.rows[m.ID]; !ok {
		return m, streamsink.ErrNoData
	}
	r.rows[m.ID] = m
	return m, nil
}

// FindBySource retrieves the item archived for one source record.
func (r *DeadLetterRepository) FindBySource(_ context.Context, stream string, partition int32, offset int64) (model.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := lo.Find(lo.Values(r.rows), func(d model.DeadLetter) bool {
		return d.OriginalStream == stream && d.PartitionHint == partition && d.SourceOffset == offset
	})
	if !ok {
		return d, streamsink.ErrNoData
	}
	return d, nil
}

// FindUnresolved retrieves unresolved items, oldest first.
func (r *DeadLetterRepository) FindUnresolved(_ context.Context, limit int) ([]model.DeadLetter, error) {
	return r.find(func(d model.DeadLetter) bool { return !d.IsResolved }, oldestFirst, limit)
}

// FindByStream retrieves items from one source stream, newest first.
func (r *DeadLetterRepository) FindByStream(_ context.Context, stream string, limit int) ([]model.DeadLetter, error) {
	return r.find(func(d model.DeadLetter) bool { return d.OriginalStream == stream }, func(a, b model.DeadLetter) bool {
		return oldestFirst(b, a)
	}, limit)
}

// FindOlderThan retrieves unresolved items dead-lettered before now-threshold.
func (r *DeadLetterRepository) FindOlderThan(_ context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error) {
	return r.find(func(d model.DeadLetter) bool { return !d.IsResolved && d.IsOld(threshold) }, oldestFirst, limit)
}

// GetStats retrieves aggregate counts over the archive.
func (r *DeadLetterRepository) GetStats(_ context.Context) (model.DeadLetterStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := model.DeadLetterStats{ByStream: map[string]int{}, LastUpdated: time.Now()}
	for _, d := range r.rows {
		stats.TotalItems++
		if !d.IsResolved {
			stats.UnresolvedItems++
		}
		stats.ByStream[d.OriginalStream]++
	}
	stats.ResolvedItems = stats.TotalItems - stats.UnresolvedItems
	return stats, nil
}

func (r *DeadLetterRepository) find(match func(model.DeadLetter) bool, less func(a, b model.DeadLetter) bool, limit int) ([]model.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := lo.Filter(lo.Values(r.rows), func(d model.DeadLetter, _ int) bool { return match(d) })
	if len(rows) == 0 {
		return nil, streamsink.ErrNoData
	}
	return sortedLimit(rows, less, limit), nil
}

func oldestFirst(a, b model.DeadLetter) bool {
	if a.DeadLetteredAt.Equal(b.DeadLetteredAt) {
		return a.ID < b.ID
	}
	return a.DeadLetteredAt.Before(b.DeadLetteredAt)
}
