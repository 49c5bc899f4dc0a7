package relica

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

func newSQLiteRepositories(t *testing.T) *Repositories {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "repos.db")
	require.NoError(t, MigrateUp("sqlite3", dsn))

	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewRepositories(db, "sqlite3")
}

func TestUserRepository_Upsert(t *testing.T) {
	repos := newSQLiteRepositories(t)
	ctx := context.Background()

	require.NoError(t, repos.User.Upsert(ctx, model.User{ID: "u1", Name: "Ann", Email: "ann@example.com"}))
	u, err := repos.User.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.User{ID: "u1", Name: "Ann", Email: "ann@example.com"}, u)

	// Same id overwrites the row.
	require.NoError(t, repos.User.Upsert(ctx, model.User{ID: "u1", Name: "Anna", Email: "not-an-email"}))
	u, err = repos.User.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", u.Name)
	assert.Equal(t, "not-an-email", u.Email)

	require.NoError(t, repos.User.Upsert(ctx, model.User{ID: "u0", Name: "Bob"}))
	users, err := repos.User.FindAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u0", users[0].ID)
	assert.Equal(t, "u1", users[1].ID)

	_, err = repos.User.Load(ctx, "missing")
	assert.True(t, streamsink.IsNoData(err))
}

func TestOrderRepository_Upsert(t *testing.T) {
	repos := newSQLiteRepositories(t)
	ctx := context.Background()

	_, err := repos.Order.FindAll(ctx, 10)
	assert.True(t, streamsink.IsNoData(err))

	order := model.Order{ID: "o1", UserID: "u1", Product: "book", Amount: decimal.RequireFromString("10.25")}
	require.NoError(t, repos.Order.Upsert(ctx, order))

	o, err := repos.Order.Load(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "book", o.Product)
	assert.True(t, o.Amount.Equal(decimal.RequireFromString("10.25")), "amount %s", o.Amount)

	order.Product = "ebook"
	order.Amount = decimal.RequireFromString("-3.5")
	require.NoError(t, repos.Order.Upsert(ctx, order))
	require.NoError(t, repos.Order.Upsert(ctx, model.Order{ID: "o2", UserID: "u2", Product: "pen"}))

	o, err = repos.Order.Load(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "ebook", o.Product)
	assert.Equal(t, "-3.5", o.Amount.String())

	orders, err := repos.Order.FindByUser(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o2", orders[0].ID)
	assert.True(t, orders[0].Amount.IsZero())

	orders, err = repos.Order.FindAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)

	_, err = repos.Order.FindByUser(ctx, "nobody", 10)
	assert.True(t, streamsink.IsNoData(err))
}

func TestNotificationRepository_Upsert(t *testing.T) {
	repos := newSQLiteRepositories(t)
	ctx := context.Background()

	require.NoError(t, repos.Notification.Upsert(ctx, model.Notification{ID: "n1", Message: "disk full", Level: "warning"}))
	n, err := repos.Notification.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "warning", n.Level)

	require.NoError(t, repos.Notification.Upsert(ctx, model.Notification{ID: "n1", Message: "disk ok", Level: "critical"}))
	n, err = repos.Notification.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, model.Notification{ID: "n1", Message: "disk ok", Level: "critical"}, n)

	_, err = repos.Notification.Load(ctx, "n2")
	assert.True(t, streamsink.IsNoData(err))
}

func TestEventRepository_Upsert(t *testing.T) {
	repos := newSQLiteRepositories(t)
	ctx := context.Background()

	rec := model.GenericEvent{ID: "e1", Type: "signup", Payload: map[string]interface{}{"plan": "pro"}}.ToRecord()
	require.NoError(t, repos.Event.Upsert(ctx, rec))

	e, err := repos.Event.Load(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "signup", e.Type)
	assert.JSONEq(t, `{"plan":"pro"}`, e.PayloadJSON)

	require.NoError(t, repos.Event.Upsert(ctx, model.EventRecord{ID: "e1", Type: "upgrade", PayloadJSON: model.EmptyPayloadJSON}))
	e, err = repos.Event.Load(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "upgrade", e.Type)
	assert.Equal(t, model.EmptyPayloadJSON, e.PayloadJSON)
}

func TestDeadLetterRepository(t *testing.T) {
	repos := newSQLiteRepositories(t)
	ctx := context.Background()

	env := model.NewEnvelope("users", "u1", 2, 7, []byte(`{"id":"u1"}`))
	rec := model.NewDeadLetterRecord(env, "boom")

	saved, err := repos.DeadLetter.Save(ctx, model.NewDeadLetter(rec))
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	found, err := repos.DeadLetter.FindBySource(ctx, "users", 2, 7)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, "u1", found.MessageKey)
	assert.Equal(t, `{"id":"u1"}`, found.Payload)
	assert.Equal(t, model.PayloadEncodingJSON, found.PayloadEncoding)
	assert.Equal(t, "boom", found.FailureReason)
	assert.False(t, found.IsResolved)
	assert.Nil(t, found.ResolvedAt)
	assert.WithinDuration(t, rec.DeadLetteredAt, found.DeadLetteredAt, time.Second)

	_, err = repos.DeadLetter.FindBySource(ctx, "users", 2, 8)
	assert.True(t, streamsink.IsNoData(err))

	// The source index rejects a second row for the same record.
	_, err = repos.DeadLetter.Save(ctx, model.NewDeadLetter(rec))
	require.Error(t, err)
	assert.True(t, streamsink.HasCode(err, streamsink.ErrCodeDatabase))

	other := model.NewEnvelope("orders", "o1", 0, 1, []byte("not json"))
	_, err = repos.DeadLetter.Save(ctx, model.NewDeadLetter(model.NewDeadLetterRecord(other, "bad")))
	require.NoError(t, err)

	found.Resolve("ops", "replayed")
	_, err = repos.DeadLetter.Save(ctx, found)
	require.NoError(t, err)

	loaded, err := repos.DeadLetter.Load(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, loaded.IsResolved)
	assert.Equal(t, "ops", loaded.ResolvedBy)
	require.NotNil(t, loaded.ResolvedAt)

	unresolved, err := repos.DeadLetter.FindUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "orders", unresolved[0].OriginalStream)
	assert.Equal(t, model.PayloadEncodingText, unresolved[0].PayloadEncoding)

	byStream, err := repos.DeadLetter.FindByStream(ctx, "users", 10)
	require.NoError(t, err)
	require.Len(t, byStream, 1)

	stats, err := repos.DeadLetter.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 1, stats.UnresolvedItems)
	assert.Equal(t, 1, stats.ResolvedItems)
	assert.Equal(t, map[string]int{"users": 1, "orders": 1}, stats.ByStream)
}

func TestDeadLetterArchiveSink_DedupesOnSQLite(t *testing.T) {
	repos := newSQLiteRepositories(t)
	ctx := context.Background()
	sink := streamsink.NewDeadLetterArchiveSink(repos.DeadLetter, &streamsink.NoopLogger{})

	rec := model.NewDeadLetterRecord(model.NewEnvelope("users", "u1", 0, 3, []byte(`{"id":"u1"}`)), "boom")
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	for offset := int64(0); offset < 2; offset++ {
		env := model.NewEnvelope("deadletter-topic", "u1", 0, offset, payload)
		require.NoError(t, sink.Handle(ctx, env))
	}

	stats, err := repos.DeadLetter.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalItems)
}
