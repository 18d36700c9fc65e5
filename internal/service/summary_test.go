package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/period"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestGetSummary(t *testing.T) {
	st := store.NewMemoryStore()
	food := seedCategory(t, st, testOwner, "Food")
	rent := seedCategory(t, st, testOwner, "Rent")
	july := time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC)

	seedTx(t, st, testOwner, food.ID, "30.00", july)
	seedTx(t, st, testOwner, food.ID, "20.00", july.AddDate(0, 0, 1))
	seedTx(t, st, testOwner, rent.ID, "100.00", july)
	seedTx(t, st, testOwner, "deleted-1", "50.00", july)
	// Outside the window or owned by someone else.
	seedTx(t, st, testOwner, food.ID, "999", time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC))
	seedTx(t, st, "someone-else", food.ID, "999", july)

	svc := newTestService(st)
	result, err := svc.GetSummary(context.Background(), testOwner, period.Spec{Kind: period.CurrentMonth})
	require.NoError(t, err)

	assert.Equal(t, "July 2025", result.Period)
	assert.True(t, result.StartDate.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, result.EndDate.Equal(testNow))
	assert.True(t, result.TotalSpending.Equal(dec("200")), result.TotalSpending.String())

	require.Len(t, result.Categories, 2)
	assert.Equal(t, "Rent", result.Categories[0].Name)
	assert.True(t, result.Categories[0].Percentage.Equal(dec("50")))
	assert.Equal(t, "Food", result.Categories[1].Name)
	assert.Equal(t, 2, result.Categories[1].TransactionCount)
	assert.True(t, result.Categories[1].Percentage.Equal(dec("25")))

	assert.True(t, result.UnresolvedTotal.Equal(dec("50")))
	assert.Equal(t, 1, result.UnresolvedCount)
}

func TestGetSummaryBucketsDanglingSpending(t *testing.T) {
	st := store.NewMemoryStore()
	food := seedCategory(t, st, testOwner, "Food")
	day := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	seedTx(t, st, testOwner, food.ID, "10", day)
	seedTx(t, st, testOwner, "gone", "20", day)
	seedTx(t, st, testOwner, model.LegacyMiscRef, "5", day)
	seedTx(t, st, testOwner, "", "5", day)

	svc := newTestService(st, WithDanglingPolicy(BucketDangling))
	result, err := svc.GetSummary(context.Background(), testOwner, period.Spec{Kind: period.PastWeek})
	require.NoError(t, err)

	require.Len(t, result.Categories, 2)
	unknown := result.Categories[0]
	assert.Equal(t, UnknownCategoryName, unknown.Name)
	assert.Empty(t, unknown.CategoryID)
	assert.True(t, unknown.TotalAmount.Equal(dec("30")))
	assert.Equal(t, 3, unknown.TransactionCount)
	assert.True(t, unknown.Percentage.Equal(dec("75")))
}

func TestGetSummaryIgnoresOtherOwnersCategory(t *testing.T) {
	st := store.NewMemoryStore()
	foreign := seedCategory(t, st, "someone-else", "Food")
	seedTx(t, st, testOwner, foreign.ID, "10", time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC))

	result, err := newTestService(st).GetSummary(context.Background(), testOwner, period.Spec{})
	require.NoError(t, err)
	assert.Empty(t, result.Categories)
	assert.Equal(t, 1, result.UnresolvedCount)
}

func TestGetSummaryPercentagesSumToHundred(t *testing.T) {
	st := store.NewMemoryStore()
	day := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	amounts := []string{"33.33", "33.33", "33.34", "0.01", "17.77", "1.00"}
	sum := decimal.Zero
	for i, a := range amounts {
		c := seedCategory(t, st, testOwner, string(rune('A'+i)))
		seedTx(t, st, testOwner, c.ID, a, day)
		sum = sum.Add(dec(a))
	}

	result, err := newTestService(st).GetSummary(context.Background(), testOwner, period.Spec{Kind: period.Past30Days})
	require.NoError(t, err)
	assert.True(t, result.TotalSpending.Equal(sum))

	pct := decimal.Zero
	for _, c := range result.Categories {
		pct = pct.Add(c.Percentage)
	}
	tolerance := dec("0.01").Mul(decimal.NewFromInt(int64(len(result.Categories))))
	assert.True(t, pct.Sub(dec("100")).Abs().LessThanOrEqual(tolerance), pct.String())
}

func TestGetSummaryEmpty(t *testing.T) {
	result, err := newTestService(store.NewMemoryStore()).GetSummary(context.Background(), testOwner, period.Spec{Kind: period.CurrentMonth})
	require.NoError(t, err)
	assert.True(t, result.TotalSpending.IsZero())
	assert.NotNil(t, result.Categories)
	assert.Empty(t, result.Categories)
}

func TestGetSummaryValidatesBeforeStoreAccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations: any store call fails the test.
	svc := newTestService(store.NewMockStore(ctrl))
	start := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		owner   string
		spec    period.Spec
		wantErr error
	}{
		{"start after end", testOwner, period.Spec{Kind: period.Custom, Start: &start, End: &end}, period.ErrInvalidPeriod},
		{"custom without bounds", testOwner, period.Spec{Kind: period.Custom, Start: &start}, period.ErrInvalidPeriod},
		{"unknown kind", testOwner, period.Spec{Kind: "fortnight"}, period.ErrInvalidPeriod},
		{"missing owner", "  ", period.Spec{Kind: period.CurrentMonth}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetSummary(context.Background(), tt.owner, tt.spec)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetSummaryCustomWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := store.NewMockStore(ctrl)
	svc := newTestService(mockStore)

	start := time.Date(2025, 5, 3, 15, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 9, 1, 0, 0, 0, time.UTC)
	wantStart := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 5, 9, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	mockStore.EXPECT().
		AggregateByCategory(gomock.Any(), testOwner, wantStart, wantEnd).
		Return([]model.CategoryTotal{{CategoryID: "c1", Total: dec("10"), Count: 1}}, nil)
	mockStore.EXPECT().
		GetCategory(gomock.Any(), "c1").
		Return(&model.Category{ID: "c1", OwnerID: testOwner, Name: "Food", Type: model.CategoryTypeExpense}, nil)

	result, err := svc.GetSummary(context.Background(), testOwner, period.Spec{Kind: period.Custom, Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, "May 3, 2025 - May 9, 2025", result.Period)
	require.Len(t, result.Categories, 1)
	assert.True(t, result.Categories[0].Percentage.Equal(dec("100")))
}

func TestGetSummaryStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := store.NewMockStore(ctrl)
	svc := newTestService(mockStore)
	boom := errors.New("unavailable")

	t.Run("aggregate fails", func(t *testing.T) {
		mockStore.EXPECT().AggregateByCategory(gomock.Any(), testOwner, gomock.Any(), gomock.Any()).Return(nil, boom)
		_, err := svc.GetSummary(context.Background(), testOwner, period.Spec{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("category lookup fails", func(t *testing.T) {
		mockStore.EXPECT().AggregateByCategory(gomock.Any(), testOwner, gomock.Any(), gomock.Any()).
			Return([]model.CategoryTotal{{CategoryID: "c1", Total: dec("1"), Count: 1}}, nil)
		mockStore.EXPECT().GetCategory(gomock.Any(), "c1").Return(nil, boom)
		_, err := svc.GetSummary(context.Background(), testOwner, period.Spec{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestPercentage(t *testing.T) {
	assert.True(t, percentage(dec("1"), decimal.Zero).IsZero())
	assert.True(t, percentage(dec("1"), dec("3")).Equal(dec("33.33")))
	assert.True(t, percentage(dec("2"), dec("3")).Equal(dec("66.67")))
}
