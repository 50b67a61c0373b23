package trigger

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want domain.Interval
	}{
		{"6:00", domain.Interval{Hour: 6, Minute: 0}},
		{"6:00 daily", domain.Interval{Hour: 6, Minute: 0}},
		{"06:30 Daily", domain.Interval{Hour: 6, Minute: 30}},
		{"6:00 weekdays", domain.Interval{Hour: 6, Minute: 0, Weekday: []int{1, 2, 3, 4, 5}}},
		{"23:59 weekends", domain.Interval{Hour: 23, Minute: 59, Weekday: []int{0, 6}}},
		{"0:05 monday", domain.Interval{Hour: 0, Minute: 5, Weekday: []int{1}}},
		{"9:00 SUN", domain.Interval{Hour: 9, Minute: 0, Weekday: []int{0}}},
		{"18:15 fri", domain.Interval{Hour: 18, Minute: 15, Weekday: []int{5}}},
		{"  7:45   saturday ", domain.Interval{Hour: 7, Minute: 45, Weekday: []int{6}}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr error
	}{
		{"", ErrInvalidTimeFormat},
		{"6", ErrInvalidTimeFormat},
		{"6:0", ErrInvalidTimeFormat},
		{"24:00", ErrInvalidTimeFormat},
		{"12:60", ErrInvalidTimeFormat},
		{"noon daily", ErrInvalidTimeFormat},
		{"123:00", ErrInvalidTimeFormat},
		{"6:00 someday", ErrUnknownDayPattern},
		{"6:00 every monday", ErrUnknownDayPattern},
		{"6:00 weekday", ErrUnknownDayPattern},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Equal(t, "ValidationError", domain.Kind(err))
		})
	}
}

func TestDescribe(t *testing.T) {
	for _, expr := range []string{"6:00 daily", "6:00 weekdays", "23:59 weekends"} {
		iv, err := Parse(expr)
		require.NoError(t, err)
		assert.Equal(t, expr, Describe(iv))
	}

	iv, err := Parse("9:05 tue")
	require.NoError(t, err)
	assert.Equal(t, "9:05 Tuesday", Describe(iv))
}

func TestCalendarEntries(t *testing.T) {
	daily := CalendarEntries(domain.Interval{Hour: 6, Minute: 0})
	require.Len(t, daily, 1)
	assert.Nil(t, daily[0].Weekday)
	assert.Equal(t, 6, daily[0].Hour)

	weekdays := CalendarEntries(domain.Interval{Hour: 6, Minute: 0, Weekday: []int{5, 1, 3, 2, 4}})
	require.Len(t, weekdays, 5)
	for i, e := range weekdays {
		require.NotNil(t, e.Weekday)
		assert.Equal(t, i+1, *e.Weekday)
		assert.Equal(t, 6, e.Hour)
		assert.Equal(t, 0, e.Minute)
	}
}

func TestCronSpec(t *testing.T) {
	assert.Equal(t, "0 6 * * *", CronSpec(domain.Interval{Hour: 6}))
	assert.Equal(t, "30 7 * * 1,2,3,4,5", CronSpec(domain.Interval{Hour: 7, Minute: 30, Weekday: []int{1, 2, 3, 4, 5}}))
	assert.Equal(t, "0 10 * * 0,6", CronSpec(domain.Interval{Hour: 10, Weekday: []int{6, 0}}))
}

func TestNextFire(t *testing.T) {
	// Monday 2026-10-19
	monday := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	weekdays := domain.Interval{Hour: 6, Minute: 0, Weekday: []int{1, 2, 3, 4, 5}}

	next, err := NextFire(weekdays, monday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 6, 0, 0, 0, time.UTC), next)

	friday := time.Date(2026, 10, 23, 6, 30, 0, 0, time.UTC)
	next, err = NextFire(weekdays, friday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 26, 6, 0, 0, 0, time.UTC), next)

	early := time.Date(2026, 10, 19, 5, 0, 0, 0, time.UTC)
	next, err = NextFire(domain.Interval{Hour: 6}, early)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC), next)
}

func TestValidateInterval(t *testing.T) {
	assert.NoError(t, ValidateInterval(domain.Interval{Hour: 6, Weekday: []int{1}}))

	err := ValidateInterval(domain.Interval{Hour: 25})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = ValidateInterval(domain.Interval{Hour: 6, Weekday: []int{7}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
