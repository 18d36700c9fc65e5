package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/audit"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidArgument is returned for malformed input, before any store call.
var ErrInvalidArgument = errors.New("invalid argument")

// DanglingPolicy decides what a summary does with spending whose category id
// no longer resolves.
type DanglingPolicy int

const (
	// SkipDangling leaves dangling groups out of the category list. They are
	// still counted in the total and reported as unresolved.
	SkipDangling DanglingPolicy = iota
	// BucketDangling folds dangling groups into one synthetic entry.
	BucketDangling
)

// UnknownCategoryName labels the synthetic entry used by BucketDangling.
const UnknownCategoryName = "Unknown"

// SpendingService computes spending summaries and trends and repairs
// category references for a single owner at a time.
type SpendingService struct {
	store    store.Store
	logger   *zap.Logger
	recorder audit.Recorder
	now      func() time.Time
	loc      *time.Location

	dangling              DanglingPolicy
	legacyToUncategorized bool
}

// Option configures a SpendingService.
type Option func(*SpendingService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SpendingService) { s.now = now }
}

// WithLocation sets the zone calendar days and months are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *SpendingService) { s.loc = loc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *SpendingService) { s.logger = logger }
}

// WithRecorder sends every reconciliation report to r.
func WithRecorder(r audit.Recorder) Option {
	return func(s *SpendingService) { s.recorder = r }
}

func WithDanglingPolicy(p DanglingPolicy) Option {
	return func(s *SpendingService) { s.dangling = p }
}

// WithLegacyToUncategorized moves "misc" transactions to Uncategorized when
// the owner has no Misc category. Off by default, which leaves them as is.
func WithLegacyToUncategorized(enabled bool) Option {
	return func(s *SpendingService) { s.legacyToUncategorized = enabled }
}

func NewSpendingService(st store.Store, opts ...Option) *SpendingService {
	s := &SpendingService{
		store:  st,
		logger: zap.NewNop(),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SpendingService) clock() time.Time {
	return s.now().In(s.loc)
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	}
	return nil
}
