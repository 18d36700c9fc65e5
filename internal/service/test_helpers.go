package service

import (
	"context"
	"testing"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testOwner = "user-123"

// testNow is the fixed clock used by service tests: mid July 2025, UTC.
var testNow = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestService(st store.Store, opts ...Option) *SpendingService {
	return NewSpendingService(st, append([]Option{WithClock(fixedClock)}, opts...)...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedCategory creates a category directly, bypassing name uniqueness the
// way legacy data did.
func seedCategory(t *testing.T, st store.Store, owner, name string) *model.Category {
	t.Helper()
	c, err := st.CreateCategory(context.Background(), &model.Category{OwnerID: owner, Name: name, Type: model.CategoryTypeExpense})
	require.NoError(t, err)
	return c
}

func seedTx(t *testing.T, st store.Store, owner, categoryID, amount string, date time.Time) *model.Transaction {
	t.Helper()
	tx := &model.Transaction{
		OwnerID:    owner,
		Vendor:     "vendor",
		Date:       date,
		Amount:     dec(amount),
		CategoryID: categoryID,
	}
	require.NoError(t, st.CreateTransaction(context.Background(), tx))
	return tx
}

// requireAllResolve checks every transaction of owner references an existing
// category of that owner.
func requireAllResolve(t *testing.T, st store.Store, owner string) {
	t.Helper()
	ctx := context.Background()
	categories, err := st.ListCategories(ctx, owner)
	require.NoError(t, err)
	ids := make(map[string]bool, len(categories))
	for _, c := range categories {
		ids[c.ID] = true
	}
	txs, err := st.ListTransactions(ctx, owner)
	require.NoError(t, err)
	for _, tx := range txs {
		require.Truef(t, ids[tx.CategoryID], "transaction %s references %q", tx.ID, tx.CategoryID)
	}
}
