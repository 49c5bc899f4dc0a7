package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// OrderRepository implements streamsink.OrderRepository using Relica.
type OrderRepository struct {
	db *relica.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(sqlDB *sql.DB, driverName string) *OrderRepository {
	return &OrderRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *OrderRepository) tableName() string {
	return model.Order{}.TableName()
}

// Upsert inserts the order or updates the row with the same id.
func (r *OrderRepository) Upsert(ctx context.Context, o model.Order) error {
	err := upsert(ctx, r.db, r.tableName(), map[string]interface{}{
		"id":      o.ID,
		"user_id": o.UserID,
		"product": o.Product,
		"amount":  o.Amount,
	})
	if err != nil {
		return streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to upsert order", err)
	}
	return nil
}

// Load retrieves an order by id.
func (r *OrderRepository) Load(ctx context.Context, id string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&o)
	if errors.Is(err, sql.ErrNoRows) {
		return o, streamsink.ErrNoData
	}
	if err != nil {
		return o, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to load order", err)
	}
	return o, nil
}

// FindAll retrieves orders ordered by id.
func (r *OrderRepository) FindAll(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("id ASC").
		Limit(listLimit(limit)).
		WithContext(ctx).
		All(&orders)
	if err != nil {
		return nil, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to list orders", err)
	}
	if len(orders) == 0 {
		return nil, streamsink.ErrNoData
	}
	return orders, nil
}

// FindByUser retrieves the orders placed by one user.
func (r *OrderRepository) FindByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("user_id = ?", userID).
		OrderBy("id ASC").
		Limit(listLimit(limit)).
		WithContext(ctx).
		All(&orders)
	if err != nil {
		return nil, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to find orders by user", err)
	}
	if len(orders) == 0 {
		return nil, streamsink.ErrNoData
	}
	return orders, nil
}
