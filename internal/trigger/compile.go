package trigger

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalendarEntry is one native calendar trigger tuple. Native facilities only
// accept a single weekday per entry, so a weekday set expands to one entry
// per day. A nil Weekday fires every day.
type CalendarEntry struct {
	Month   int
	Day     int
	Hour    int
	Minute  int
	Weekday *int
}

// CalendarEntries expands an interval into native trigger tuples
func CalendarEntries(iv domain.Interval) []CalendarEntry {
	if iv.Daily() {
		return []CalendarEntry{{Hour: iv.Hour, Minute: iv.Minute}}
	}
	days := append([]int(nil), iv.Weekday...)
	sort.Ints(days)

	entries := make([]CalendarEntry, 0, len(days))
	for _, d := range days {
		day := d
		entries = append(entries, CalendarEntry{Hour: iv.Hour, Minute: iv.Minute, Weekday: &day})
	}
	return entries
}

// OneShotEntry is a trigger tuple that matches a single calendar minute
func OneShotEntry(at time.Time) CalendarEntry {
	return CalendarEntry{Month: int(at.Month()), Day: at.Day(), Hour: at.Hour(), Minute: at.Minute()}
}

// CronSpec renders an interval as a five-field cron expression
func CronSpec(iv domain.Interval) string {
	dow := "*"
	if !iv.Daily() {
		days := append([]int(nil), iv.Weekday...)
		sort.Ints(days)
		parts := make([]string, len(days))
		for i, d := range days {
			parts[i] = strconv.Itoa(d)
		}
		dow = strings.Join(parts, ",")
	}
	return strconv.Itoa(iv.Minute) + " " + strconv.Itoa(iv.Hour) + " * * " + dow
}

// NextFire returns the first slot strictly after the given time. Slots
// earlier today are skipped.
func NextFire(iv domain.Interval, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(CronSpec(iv))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "compiling interval %s", Describe(iv))
	}
	return sched.Next(after), nil
}

// ValidateInterval checks the interval's ranges and that it compiles to a
// valid cron schedule.
func ValidateInterval(iv domain.Interval) error {
	if iv.Hour < 0 || iv.Hour > 23 || iv.Minute < 0 || iv.Minute > 59 {
		return errors.Mark(errors.Newf("interval %02d:%02d out of range", iv.Hour, iv.Minute), domain.ErrValidation)
	}
	for _, d := range iv.Weekday {
		if d < 0 || d > 6 {
			return errors.Mark(errors.Newf("weekday %d out of range 0-6", d), domain.ErrValidation)
		}
	}
	if _, err := cronParser.Parse(CronSpec(iv)); err != nil {
		return errors.Mark(errors.Wrap(err, "interval does not compile to a calendar trigger"), domain.ErrValidation)
	}
	return nil
}
