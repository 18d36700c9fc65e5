package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTransactionDocRoundTrip(t *testing.T) {
	tx := &model.Transaction{
		ID:         "tx-1",
		OwnerID:    "user-1",
		Vendor:     "Cafe",
		Date:       time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("4.55"),
		CategoryID: "cat-1",
	}

	doc := toTransactionDoc(tx)
	assert.Equal(t, "4.55", doc.Amount)
	assert.Equal(t, int64(455), doc.AmountCents)

	back, err := doc.toModel()
	require.NoError(t, err)
	assert.Equal(t, tx.ID, back.ID)
	assert.True(t, back.Amount.Equal(tx.Amount))
}

func TestTransactionDocFallsBackToCents(t *testing.T) {
	doc := transactionDoc{Id: "old", AmountCents: 1999}
	tx, err := doc.toModel()
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("19.99")))

	_, err = transactionDoc{Id: "bad", Amount: "12,00"}.toModel()
	assert.Error(t, err)
}

func TestCategoryDocCarriesNameKey(t *testing.T) {
	doc := toCategoryDoc(&model.Category{ID: "c", OwnerID: "u", Name: " Groceries ", Type: model.CategoryTypeExpense})
	assert.Equal(t, "groceries", doc.NameKey)
	assert.Equal(t, "expense", doc.Type)
	assert.Equal(t, " Groceries ", doc.toModel().Name)
}

func TestNameIndexID(t *testing.T) {
	a := nameIndexID("user-1", "food")
	assert.Len(t, a, 64)
	assert.Equal(t, a, nameIndexID("user-1", "food"))
	assert.NotEqual(t, a, nameIndexID("user-2", "food"))
	// The separator keeps (ab, c) and (a, bc) apart.
	assert.NotEqual(t, nameIndexID("ab", "c"), nameIndexID("a", "bc"))
}

func TestTranslateError(t *testing.T) {
	assert.True(t, errors.Is(translateError("x", status.Error(codes.NotFound, "gone")), ErrNotFound))
	assert.True(t, errors.Is(translateError("x", status.Error(codes.AlreadyExists, "dup")), ErrAlreadyExists))

	other := fmt.Errorf("boom")
	err := translateError("x", other)
	assert.True(t, errors.Is(err, other))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFirestoreStoreRejectsEmptyPatch(t *testing.T) {
	s := &FirestoreStore{}
	err := s.UpdateTransaction(context.Background(), "tx-1", model.TransactionPatch{})
	assert.True(t, errors.Is(err, ErrEmptyPatch))
}

// newEmulatorStore connects to the Firestore emulator, skipping the test when
// FIRESTORE_EMULATOR_HOST is unset.
func newEmulatorStore(t *testing.T) *FirestoreStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "spending-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewFirestoreStore(client)
}

func TestFirestoreStoreAggregates(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	owner := "user-" + uuid.New().String()
	day := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	addTx(t, s, owner, "food", "10", day)
	addTx(t, s, owner, "food", "2.5", day.AddDate(0, -1, 0))
	addTx(t, s, owner, "rent", "500", day)

	groups, err := s.AggregateByCategory(ctx, owner, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "rent", groups[0].CategoryID)

	months, err := s.AggregateByMonth(ctx, owner, day.AddDate(0, -2, 0), day)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, time.March, months[0].Month)

	moved, err := s.ReassignCategory(ctx, owner, "food", "groceries")
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
}

func TestFirestoreStoreFindOrCreateCategory(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	owner := "user-" + uuid.New().String()

	// A legacy duplicate pair with no name claim.
	legacy, err := s.CreateCategory(ctx, &model.Category{OwnerID: owner, Name: "Food"})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, &model.Category{OwnerID: owner, Name: "FOOD"})
	require.NoError(t, err)

	c, created, err := s.FindOrCreateCategory(ctx, owner, "food", model.CategoryTypeExpense, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, legacy.ID, c.ID)

	u, created, err := s.FindOrCreateCategory(ctx, owner, model.UncategorizedName, model.CategoryTypeExpense, model.UncategorizedColor)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.FindOrCreateCategory(ctx, owner, "uncategorized", model.CategoryTypeExpense, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)

	deleted, err := s.DeleteCategory(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// The claim is released with the category.
	fresh, created, err := s.FindOrCreateCategory(ctx, owner, model.UncategorizedName, model.CategoryTypeExpense, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, u.ID, fresh.ID)
}
