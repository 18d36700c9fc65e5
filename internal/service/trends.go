package service

import (
	"context"
	"fmt"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/period"
	"github.com/shopspring/decimal"
)

const (
	DefaultMonthCount = 6
	MaxMonthCount     = 24
)

// Changes within this many percent either way count as stable.
var stableBand = decimal.NewFromInt(1)

// GetMonthlyTrends compares the current month's spending with the average
// of the monthCount months before it. A monthCount of 0 means
// DefaultMonthCount. includeCurrentMonth only controls whether the current
// month summary is returned.
func (s *SpendingService) GetMonthlyTrends(ctx context.Context, ownerID string, monthCount int, includeCurrentMonth bool) (*model.TrendResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if monthCount == 0 {
		monthCount = DefaultMonthCount
	}
	if monthCount < 1 || monthCount > MaxMonthCount {
		return nil, fmt.Errorf("%w: month count must be between 1 and %d, got %d",
			ErrInvalidArgument, MaxMonthCount, monthCount)
	}

	now := s.clock()
	current, err := s.currentMonth(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.monthlyBreakdown(ctx, ownerID, now, monthCount)
	if err != nil {
		return nil, err
	}

	sum := decimal.Zero
	for _, m := range breakdown {
		sum = sum.Add(m.TotalAmount)
	}
	average := sum.Div(decimal.NewFromInt(int64(monthCount)))

	change := decimal.Zero
	if average.IsPositive() {
		change = current.TotalAmount.Sub(average).Mul(hundred).Div(average).Round(2)
	}

	result := &model.TrendResult{
		OwnerID: ownerID,
		Trend: model.TrendRecord{
			PercentageChange: change,
			Direction:        direction(change),
			ComparisonPeriod: comparisonLabel(monthCount),
			BaselineAverage:  average.Round(2),
		},
		MonthlyBreakdown: breakdown,
	}
	if includeCurrentMonth {
		result.CurrentMonth = current
	}
	return result, nil
}

func (s *SpendingService) currentMonth(ctx context.Context, ownerID string, now time.Time) (*model.MonthSummary, error) {
	window, err := period.Resolve(period.Spec{Kind: period.CurrentMonth}, now)
	if err != nil {
		return nil, err
	}

	txs, err := s.store.FindByOwnerAndRange(ctx, ownerID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get current month transactions: %w", err)
	}

	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return &model.MonthSummary{
		Label:            window.Label,
		Year:             window.Start.Year(),
		Month:            window.Start.Month(),
		StartDate:        window.Start,
		EndDate:          window.End,
		TotalAmount:      total,
		TransactionCount: len(txs),
	}, nil
}

// monthlyBreakdown returns the monthCount calendar months before now's
// month, oldest first, with zero entries for months without data.
func (s *SpendingService) monthlyBreakdown(ctx context.Context, ownerID string, now time.Time, monthCount int) ([]model.MonthSummary, error) {
	first := period.MonthWindow(now, -monthCount)
	last := period.MonthWindow(now, -1)

	totals, err := s.store.AggregateByMonth(ctx, ownerID, first.Start, last.End)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly spending: %w", err)
	}

	type yearMonth struct {
		year  int
		month time.Month
	}
	byMonth := make(map[yearMonth]model.MonthTotal, len(totals))
	for _, t := range totals {
		byMonth[yearMonth{t.Year, t.Month}] = t
	}

	breakdown := make([]model.MonthSummary, 0, monthCount)
	for offset := -monthCount; offset <= -1; offset++ {
		w := period.MonthWindow(now, offset)
		m := model.MonthSummary{
			Label:       w.Label,
			Year:        w.Start.Year(),
			Month:       w.Start.Month(),
			StartDate:   w.Start,
			EndDate:     w.End,
			TotalAmount: decimal.Zero,
		}
		if t, ok := byMonth[yearMonth{m.Year, m.Month}]; ok {
			m.TotalAmount = t.Total
			m.TransactionCount = t.Count
		}
		breakdown = append(breakdown, m)
	}
	return breakdown, nil
}

func direction(change decimal.Decimal) model.Direction {
	switch {
	case change.GreaterThan(stableBand):
		return model.DirectionIncrease
	case change.LessThan(stableBand.Neg()):
		return model.DirectionDecrease
	default:
		return model.DirectionStable
	}
}

func comparisonLabel(monthCount int) string {
	if monthCount == 1 {
		return "Previous month"
	}
	return fmt.Sprintf("Previous %d months", monthCount)
}
