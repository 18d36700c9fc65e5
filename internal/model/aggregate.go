package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryTotal is one group of a per-category aggregation.
type CategoryTotal struct {
	CategoryID string
	Total      decimal.Decimal
	Count      int
}

// MonthTotal is one group of a per-calendar-month aggregation.
type MonthTotal struct {
	Year  int
	Month time.Month
	Total decimal.Decimal
	Count int
}
