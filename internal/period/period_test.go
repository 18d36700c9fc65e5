package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	now := time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		spec      Spec
		wantStart time.Time
		wantEnd   time.Time
		wantLabel string
	}{
		{
			name:      "current month",
			spec:      Spec{Kind: CurrentMonth},
			wantStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   now,
			wantLabel: "March 2025",
		},
		{
			name:      "empty kind defaults to current month",
			spec:      Spec{},
			wantStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   now,
			wantLabel: "March 2025",
		},
		{
			name:      "past week clamps to start of day",
			spec:      Spec{Kind: PastWeek},
			wantStart: time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
			wantEnd:   now,
			wantLabel: "Last 7 days",
		},
		{
			name:      "past 30 days crosses month boundary",
			spec:      Spec{Kind: Past30Days},
			wantStart: time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC),
			wantEnd:   now,
			wantLabel: "Last 30 days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Resolve(tt.spec, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, w.Start)
			assert.Equal(t, tt.wantEnd, w.End)
			assert.Equal(t, tt.wantLabel, w.Label)
		})
	}
}

func TestResolveCustom(t *testing.T) {
	now := time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)

	t.Run("floors start and ceils end", func(t *testing.T) {
		start := time.Date(2025, 1, 10, 9, 15, 0, 0, time.UTC)
		end := time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC)

		w, err := Resolve(Spec{Kind: Custom, Start: &start, End: &end}, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2025, 1, 20, 23, 59, 59, int(999*time.Millisecond), time.UTC), w.End)
		assert.Equal(t, "Jan 10, 2025 - Jan 20, 2025", w.Label)
	})

	t.Run("same day is valid", func(t *testing.T) {
		day := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
		w, err := Resolve(Spec{Kind: Custom, Start: &day, End: &day}, now)
		require.NoError(t, err)
		assert.True(t, w.Contains(day))
	})

	t.Run("missing bounds", func(t *testing.T) {
		start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
		_, err := Resolve(Spec{Kind: Custom, Start: &start}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)

		_, err = Resolve(Spec{Kind: Custom}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("start after end", func(t *testing.T) {
		start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		_, err := Resolve(Spec{Kind: Custom, Start: &start, End: &end}, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
		assert.Contains(t, err.Error(), "is after end date")
	})
}

func TestResolveUnknownKind(t *testing.T) {
	_, err := Resolve(Spec{Kind: "fortnight"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, CurrentMonth, k)

	k, err = ParseKind("past_30_days")
	require.NoError(t, err)
	assert.Equal(t, Past30Days, k)

	_, err = ParseKind("yesterday")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestMonthWindow(t *testing.T) {
	now := time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC)

	w := MonthWindow(now, -1)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 2, 28, 23, 59, 59, int(999*time.Millisecond), time.UTC), w.End)
	assert.Equal(t, "Feb 2025", w.Label)

	w = MonthWindow(now, -3)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, "Dec 2024", w.Label)
}

func TestBoundariesKeepLocation(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	ts := time.Date(2025, 6, 30, 23, 0, 0, 0, loc)

	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, loc), StartOfMonth(ts))
	assert.Equal(t, loc, EndOfMonth(ts).Location())
	assert.Equal(t, 30, EndOfDay(ts).Day())
}
