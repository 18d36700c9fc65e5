package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTranslatePgError(t *testing.T) {
	dup := &pgconn.PgError{Code: uniqueViolation}
	assert.True(t, errors.Is(translatePgError("x", dup), ErrAlreadyExists))
	assert.True(t, errors.Is(translatePgError("x", pgx.ErrNoRows), ErrNotFound))
	assert.False(t, errors.Is(translatePgError("x", &pgconn.PgError{Code: "42P01"}), ErrNotFound))
}

// newTestPostgresStore migrates and connects to TEST_DATABASE_URL, skipping
// the test when it is unset.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, RunMigrations(url))

	pool, err := NewPostgresPool(context.Background(), url, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewPostgresStore(pool)
}

func TestPostgresStoreTransactions(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	owner := "user-" + uuid.New().String()
	day := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	tx := addTx(t, s, owner, "food", "12.34", day)
	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.34")))

	amount := decimal.RequireFromString("20")
	require.NoError(t, s.UpdateTransaction(ctx, tx.ID, model.TransactionPatch{Amount: &amount}))
	got, _ = s.GetTransaction(ctx, tx.ID)
	assert.True(t, got.Amount.Equal(amount))

	assert.True(t, errors.Is(s.UpdateTransaction(ctx, uuid.New().String(), model.SetCategory("x")), ErrNotFound))
	assert.True(t, errors.Is(s.UpdateTransaction(ctx, tx.ID, model.TransactionPatch{}), ErrEmptyPatch))

	// Sub-cent amounts come back exactly as written.
	fine := addTx(t, s, "other-"+owner, "fx", "12.345", day)
	got, err = s.GetTransaction(ctx, fine.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.345", got.Amount.String())

	addTx(t, s, owner, "food", "5", day)
	addTx(t, s, owner, "rent", "100", day.AddDate(0, -1, 0))

	groups, err := s.AggregateByCategory(ctx, owner, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Total.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 2, groups[0].Count)

	months, err := s.AggregateByMonth(ctx, owner, day.AddDate(0, -2, 0), day)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, time.May, months[0].Month)
	assert.Equal(t, time.June, months[1].Month)

	moved, err := s.ReassignCategory(ctx, owner, "food", "groceries")
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	require.NoError(t, s.DeleteTransaction(ctx, tx.ID))
	assert.True(t, errors.Is(s.DeleteTransaction(ctx, tx.ID), ErrNotFound))
}

func TestPostgresStoreFindOrCreateCategory(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	owner := "user-" + uuid.New().String()

	legacy, err := s.CreateCategory(ctx, &model.Category{OwnerID: owner, Name: "Travel"})
	require.NoError(t, err)

	c, created, err := s.FindOrCreateCategory(ctx, owner, "TRAVEL", model.CategoryTypeExpense, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, legacy.ID, c.ID)

	deleted, err := s.DeleteCategory(ctx, legacy.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	fresh, created, err := s.FindOrCreateCategory(ctx, owner, "travel", model.CategoryTypeExpense, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, legacy.ID, fresh.ID)

	list, err := s.ListCategories(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
