package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestGetMonthlyTrendsIncrease(t *testing.T) {
	st := store.NewMemoryStore()
	// 1000 in each of Jan..Jun 2025, 1200 so far in July.
	for m := time.January; m <= time.June; m++ {
		seedTx(t, st, testOwner, "c", "600", time.Date(2025, m, 1, 0, 0, 0, 0, time.UTC))
		seedTx(t, st, testOwner, "c", "400", time.Date(2025, m, 28, 23, 59, 59, 0, time.UTC))
	}
	seedTx(t, st, testOwner, "c", "1200", time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC))
	// After now; not part of the current month total.
	seedTx(t, st, testOwner, "c", "5000", time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC))

	result, err := newTestService(st).GetMonthlyTrends(context.Background(), testOwner, 6, true)
	require.NoError(t, err)

	require.NotNil(t, result.CurrentMonth)
	assert.Equal(t, "July 2025", result.CurrentMonth.Label)
	assert.True(t, result.CurrentMonth.TotalAmount.Equal(dec("1200")))
	assert.Equal(t, 1, result.CurrentMonth.TransactionCount)

	assert.True(t, result.Trend.BaselineAverage.Equal(dec("1000")))
	assert.True(t, result.Trend.PercentageChange.Equal(dec("20")), result.Trend.PercentageChange.String())
	assert.Equal(t, model.DirectionIncrease, result.Trend.Direction)
	assert.Equal(t, "Previous 6 months", result.Trend.ComparisonPeriod)

	require.Len(t, result.MonthlyBreakdown, 6)
	assert.Equal(t, "Jan 2025", result.MonthlyBreakdown[0].Label)
	assert.Equal(t, "Jun 2025", result.MonthlyBreakdown[5].Label)
	for _, m := range result.MonthlyBreakdown {
		assert.Equal(t, 2, m.TransactionCount)
	}
}

func TestGetMonthlyTrendsSparseData(t *testing.T) {
	st := store.NewMemoryStore()
	seedTx(t, st, testOwner, "c", "240", time.Date(2024, 9, 15, 0, 0, 0, 0, time.UTC))

	result, err := newTestService(st).GetMonthlyTrends(context.Background(), testOwner, 12, false)
	require.NoError(t, err)

	assert.Nil(t, result.CurrentMonth)
	require.Len(t, result.MonthlyBreakdown, 12)
	assert.Equal(t, time.July, result.MonthlyBreakdown[0].Month)
	assert.Equal(t, 2024, result.MonthlyBreakdown[0].Year)
	assert.Equal(t, time.June, result.MonthlyBreakdown[11].Month)

	nonZero := 0
	for _, m := range result.MonthlyBreakdown {
		if !m.TotalAmount.IsZero() {
			nonZero++
			assert.Equal(t, time.September, m.Month)
		}
	}
	assert.Equal(t, 1, nonZero)

	// 240 / 12 months, not / 1 month with data.
	assert.True(t, result.Trend.BaselineAverage.Equal(dec("20")))
	assert.True(t, result.Trend.PercentageChange.Equal(dec("-100")))
	assert.Equal(t, model.DirectionDecrease, result.Trend.Direction)
}

func TestGetMonthlyTrendsZeroBaseline(t *testing.T) {
	st := store.NewMemoryStore()
	seedTx(t, st, testOwner, "c", "50", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))

	result, err := newTestService(st).GetMonthlyTrends(context.Background(), testOwner, 0, true)
	require.NoError(t, err)
	assert.Len(t, result.MonthlyBreakdown, DefaultMonthCount)
	assert.True(t, result.Trend.PercentageChange.IsZero())
	assert.Equal(t, model.DirectionStable, result.Trend.Direction)
}

func TestGetMonthlyTrendsSingleMonth(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := store.NewMockStore(ctrl)
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	juneEnd := time.Date(2025, 6, 30, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	mockStore.EXPECT().
		FindByOwnerAndRange(gomock.Any(), testOwner, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), testNow).
		Return([]*model.Transaction{{Amount: dec("99.5")}}, nil)
	mockStore.EXPECT().
		AggregateByMonth(gomock.Any(), testOwner, june, juneEnd).
		Return([]model.MonthTotal{{Year: 2025, Month: time.June, Total: dec("100"), Count: 4}}, nil)

	result, err := newTestService(mockStore).GetMonthlyTrends(context.Background(), testOwner, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "Previous month", result.Trend.ComparisonPeriod)
	assert.True(t, result.Trend.PercentageChange.Equal(dec("-0.5")))
	assert.Equal(t, model.DirectionStable, result.Trend.Direction)
}

func TestGetMonthlyTrendsValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := newTestService(store.NewMockStore(ctrl))
	for _, n := range []int{-1, 25, 100} {
		_, err := svc.GetMonthlyTrends(context.Background(), testOwner, n, true)
		assert.ErrorIs(t, err, ErrInvalidArgument, "monthCount %d", n)
	}
	_, err := svc.GetMonthlyTrends(context.Background(), "", 6, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetMonthlyTrendsStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := store.NewMockStore(ctrl)
	boom := errors.New("deadline exceeded")
	mockStore.EXPECT().FindByOwnerAndRange(gomock.Any(), testOwner, gomock.Any(), gomock.Any()).Return(nil, nil)
	mockStore.EXPECT().AggregateByMonth(gomock.Any(), testOwner, gomock.Any(), gomock.Any()).Return(nil, boom)

	_, err := newTestService(mockStore).GetMonthlyTrends(context.Background(), testOwner, 6, true)
	assert.ErrorIs(t, err, boom)
}

func TestDirection(t *testing.T) {
	tests := []struct {
		change string
		want   model.Direction
	}{
		{"0", model.DirectionStable},
		{"1", model.DirectionStable},
		{"-1", model.DirectionStable},
		{"1.01", model.DirectionIncrease},
		{"-1.01", model.DirectionDecrease},
		{"250", model.DirectionIncrease},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, direction(decimal.RequireFromString(tt.change)), tt.change)
	}
}
