package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// UserRepository implements streamsink.UserRepository using Relica.
type UserRepository struct {
	db *relica.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(sqlDB *sql.DB, driverName string) *UserRepository {
	return &UserRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *UserRepository) tableName() string {
	return model.User{}.TableName()
}

// Upsert inserts the user or updates the row with the same id.
func (r *UserRepository) Upsert(ctx context.Context, u model.User) error {
	err := upsert(ctx, r.db, r.tableName(), map[string]interface{}{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
	})
	if err != nil {
		return streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to upsert user", err)
	}
	return nil
}

// Load retrieves a user by id.
func (r *UserRepository) Load(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return u, streamsink.ErrNoData
	}
	if err != nil {
		return u, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to load user", err)
	}
	return u, nil
}

// FindAll retrieves users ordered by id.
func (r *UserRepository) FindAll(ctx context.Context, limit int) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("id ASC").
		Limit(listLimit(limit)).
		WithContext(ctx).
		All(&users)
	if err != nil {
		return nil, streamsink.NewErrorWithCause(streamsink.ErrCodeDatabase, "failed to list users", err)
	}
	if len(users) == 0 {
		return nil, streamsink.ErrNoData
	}
	return users, nil
}
