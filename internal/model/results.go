package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SummaryResult is the per-category spending breakdown for one window.
type SummaryResult struct {
	OwnerID       string            `json:"ownerId"`
	Period        string            `json:"period"`
	StartDate     time.Time         `json:"startDate"`
	EndDate       time.Time         `json:"endDate"`
	TotalSpending decimal.Decimal   `json:"totalSpending"`
	Categories    []CategorySummary `json:"categories"`
	// UnresolvedTotal and UnresolvedCount cover groups whose category id no
	// longer resolves. They are included in TotalSpending either way.
	UnresolvedTotal decimal.Decimal `json:"unresolvedTotal"`
	UnresolvedCount int             `json:"unresolvedCount"`
}

// CategorySummary is one row of a SummaryResult.
type CategorySummary struct {
	CategoryID       string          `json:"categoryId"`
	Name             string          `json:"name"`
	Type             CategoryType    `json:"type"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TransactionCount int             `json:"transactionCount"`
	Percentage       decimal.Decimal `json:"percentage"`
}

// Direction classifies a trend.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionStable   Direction = "stable"
)

// MonthSummary is the total spend for one calendar month.
type MonthSummary struct {
	Label            string          `json:"label"`
	Year             int             `json:"year"`
	Month            time.Month      `json:"month"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          time.Time       `json:"endDate"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TransactionCount int             `json:"transactionCount"`
}

// TrendRecord compares the current month against the baseline average.
type TrendRecord struct {
	PercentageChange decimal.Decimal `json:"percentageChange"`
	Direction        Direction       `json:"direction"`
	ComparisonPeriod string          `json:"comparisonPeriod"`
	BaselineAverage  decimal.Decimal `json:"baselineAverage"`
}

// TrendResult is the month-over-month trend for an owner.
type TrendResult struct {
	OwnerID string `json:"ownerId"`
	// CurrentMonth is nil when the caller asked not to include it.
	CurrentMonth     *MonthSummary  `json:"currentMonth,omitempty"`
	Trend            TrendRecord    `json:"trend"`
	MonthlyBreakdown []MonthSummary `json:"monthlyBreakdown"`
}

// ActionKind names the repair a MergeAction performed.
type ActionKind string

const (
	ActionLegacySentinel ActionKind = "legacy_sentinel"
	ActionOrphaned       ActionKind = "orphaned"
	ActionMerge          ActionKind = "merge"
)

// OrphanedMarker is the RemovedID of the action summarising orphan repairs.
const OrphanedMarker = "orphaned"

// MergeAction is one entry of a reconciliation report.
type MergeAction struct {
	Kind      ActionKind `json:"kind"`
	KeepID    string     `json:"keepId"`
	RemovedID string     `json:"removedId"`
	Moved     int        `json:"moved"`
}

// ReconcileFailure records a repair that could not be completed. The pass
// carries on past it.
type ReconcileFailure struct {
	Step  string `json:"step"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// ReconciliationReport is the outcome of one reconciliation pass.
type ReconciliationReport struct {
	OwnerID     string             `json:"ownerId"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt time.Time          `json:"completedAt"`
	Actions     []MergeAction      `json:"actions"`
	Failures    []ReconcileFailure `json:"failures,omitempty"`
}

// Clean reports whether the pass found nothing to repair and nothing failed.
func (r *ReconciliationReport) Clean() bool {
	return len(r.Actions) == 0 && len(r.Failures) == 0
}
