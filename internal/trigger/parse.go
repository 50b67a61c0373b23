// Package trigger compiles schedule expressions into native OS calendar
// triggers and manages the resulting scheduler units.
package trigger

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

var (
	// ErrInvalidTimeFormat is returned for a time-of-day that is not H:MM
	ErrInvalidTimeFormat = errors.New("invalid time format")
	// ErrUnknownDayPattern is returned for an unrecognised day token
	ErrUnknownDayPattern = errors.New("unknown day pattern")
)

var timeOfDay = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

var (
	weekdaySet = []int{1, 2, 3, 4, 5}
	weekendSet = []int{0, 6}
)

var dayNames = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2, "tues": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4, "thurs": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

var weekdayLabels = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Parse compiles "<H:MM> [daily|weekdays|weekends|<day>]" into an interval
func Parse(expr string) (domain.Interval, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return domain.Interval{}, invalidTime(expr)
	}

	m := timeOfDay.FindStringSubmatch(fields[0])
	if m == nil {
		return domain.Interval{}, invalidTime(expr)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return domain.Interval{}, invalidTime(expr)
	}

	iv := domain.Interval{Hour: hour, Minute: minute}
	if len(fields) == 1 {
		return iv, nil
	}
	if len(fields) > 2 {
		return domain.Interval{}, unknownDay(strings.Join(fields[1:], " "))
	}

	token := strings.ToLower(fields[1])
	switch token {
	case "daily":
	case "weekdays":
		iv.Weekday = append([]int(nil), weekdaySet...)
	case "weekends":
		iv.Weekday = append([]int(nil), weekendSet...)
	default:
		day, ok := dayNames[token]
		if !ok {
			return domain.Interval{}, unknownDay(fields[1])
		}
		iv.Weekday = []int{day}
	}
	return iv, nil
}

// Describe renders an interval back into a human readable phrase
func Describe(iv domain.Interval) string {
	at := strconv.Itoa(iv.Hour) + ":" + twoDigits(iv.Minute)
	switch {
	case iv.Daily():
		return at + " daily"
	case equalSet(iv.Weekday, weekdaySet):
		return at + " weekdays"
	case equalSet(iv.Weekday, weekendSet):
		return at + " weekends"
	}
	names := make([]string, 0, len(iv.Weekday))
	for _, d := range iv.Weekday {
		names = append(names, weekdayLabels[d%7])
	}
	return at + " " + strings.Join(names, ", ")
}

func invalidTime(expr string) error {
	return errors.Mark(
		errors.Wrapf(ErrInvalidTimeFormat, "%q (expected H:MM with hour 0-23 and minute 00-59)", expr),
		domain.ErrValidation)
}

func unknownDay(token string) error {
	return errors.Mark(
		errors.Wrapf(ErrUnknownDayPattern, "%q (expected daily, weekdays, weekends or a weekday name)", token),
		domain.ErrValidation)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func equalSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			return false
		}
	}
	return true
}
