package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/period"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// GetSummary breaks the owner's spending in the given period down by
// category. Input is validated before the store is touched.
func (s *SpendingService) GetSummary(ctx context.Context, ownerID string, spec period.Spec) (*model.SummaryResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	window, err := period.Resolve(spec, s.clock())
	if err != nil {
		return nil, err
	}

	groups, err := s.store.AggregateByCategory(ctx, ownerID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spending: %w", err)
	}

	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.Total)
	}

	result := &model.SummaryResult{
		OwnerID:         ownerID,
		Period:          window.Label,
		StartDate:       window.Start,
		EndDate:         window.End,
		TotalSpending:   total,
		Categories:      make([]model.CategorySummary, 0, len(groups)),
		UnresolvedTotal: decimal.Zero,
	}

	for _, g := range groups {
		category, err := s.resolveCategory(ctx, ownerID, g.CategoryID)
		if err != nil {
			return nil, err
		}
		if category == nil {
			result.UnresolvedTotal = result.UnresolvedTotal.Add(g.Total)
			result.UnresolvedCount += g.Count
			continue
		}
		result.Categories = append(result.Categories, model.CategorySummary{
			CategoryID:       category.ID,
			Name:             category.Name,
			Type:             category.Type,
			TotalAmount:      g.Total,
			TransactionCount: g.Count,
			Percentage:       percentage(g.Total, total),
		})
	}

	if result.UnresolvedCount > 0 {
		s.logger.Debug("summary has dangling category references",
			zap.String("owner_id", ownerID),
			zap.String("unresolved_total", result.UnresolvedTotal.String()),
			zap.Int("unresolved_count", result.UnresolvedCount),
		)
		if s.dangling == BucketDangling {
			result.Categories = append(result.Categories, model.CategorySummary{
				Name:             UnknownCategoryName,
				Type:             model.CategoryTypeExpense,
				TotalAmount:      result.UnresolvedTotal,
				TransactionCount: result.UnresolvedCount,
				Percentage:       percentage(result.UnresolvedTotal, total),
			})
		}
	}

	sort.SliceStable(result.Categories, func(i, j int) bool {
		return result.Categories[i].TotalAmount.GreaterThan(result.Categories[j].TotalAmount)
	})

	return result, nil
}

// resolveCategory looks up the category a group refers to. It returns nil
// without error when the reference is dangling: empty, the legacy sentinel,
// deleted, or owned by someone else.
func (s *SpendingService) resolveCategory(ctx context.Context, ownerID, categoryID string) (*model.Category, error) {
	if !model.ParseCategoryRef(categoryID).IsID() {
		return nil, nil
	}
	category, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", categoryID, err)
	}
	if category.OwnerID != ownerID {
		return nil, nil
	}
	return category, nil
}

// percentage returns part as a share of whole, rounded to 2 places. A zero
// whole yields zero.
func percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
