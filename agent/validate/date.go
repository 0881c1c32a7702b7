package validate

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const DateLayout = "2006-01-02"

var (
	ErrDateFormat = errors.New("unrecognized date")
	ErrPastDate   = errors.New("date is in the past")
)

var (
	isoDate    = regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`)
	monthDay   = regexp.MustCompile(`(?:^|[^\d/])(\d{1,2})/(\d{1,2})(?:$|[^\d/])`)
	ordinalDay = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	monthName  = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)

	naturalDates = func() *when.Parser {
		w := when.New(nil)
		w.Add(en.All...)
		w.Add(common.All...)
		return w
	}()
)

// MoveDate resolves free-form date text relative to now and returns it as YYYY-MM-DD.
// Dates before today (in now's location) are rejected; the time of day is ignored.
func MoveDate(raw string, now time.Time) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrDateFormat
	}

	t, ok := parseDate(text, now)
	if !ok {
		return "", ErrDateFormat
	}

	loc := now.Location()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	py, pm, pd := t.In(loc).Date()
	if time.Date(py, pm, pd, 0, 0, 0, 0, loc).Before(today) {
		return "", ErrPastDate
	}
	return t.In(loc).Format(DateLayout), nil
}

func parseDate(text string, now time.Time) (time.Time, bool) {
	loc := now.Location()

	if m := isoDate.FindString(text); m != "" {
		if t, err := dateparse.ParseIn(m, loc); err == nil {
			return t, true
		}
	}
	// US month/day without a year
	if m := monthDay.FindStringSubmatch(text); m != nil {
		if t, ok := calendarDate(now.Year(), atoi(m[1]), atoi(m[2]), loc); ok {
			return t, true
		}
	}
	if t, err := dateparse.ParseIn(text, loc); err == nil {
		return fillMissing(t, now), true
	}
	if !monthName.MatchString(text) {
		if t, ok := dayOfMonth(text, now); ok {
			return t, true
		}
	}

	// fuzzy: try the longest run of words that parses on its own
	words := strings.Fields(strings.Trim(text, ".!?"))
	for size := min(len(words), 4); size > 0; size-- {
		for i := 0; i+size <= len(words); i++ {
			chunk := strings.Trim(strings.Join(words[i:i+size], " "), ",.")
			if !strings.ContainsAny(chunk, "0123456789") {
				continue
			}
			if t, err := dateparse.ParseIn(chunk, loc); err == nil {
				return fillMissing(t, now), true
			}
		}
	}

	r, err := naturalDates.Parse(text, now)
	if err == nil && r != nil {
		return r.Time, true
	}
	return dayOfMonth(text, now)
}

// fillMissing takes the year from now when the text named none.
func fillMissing(t, now time.Time) time.Time {
	if t.Year() != 0 {
		return t
	}
	return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
}

// dayOfMonth resolves "the 20th" to that day of now's month.
func dayOfMonth(text string, now time.Time) (time.Time, bool) {
	m := ordinalDay.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return calendarDate(now.Year(), int(now.Month()), atoi(m[1]), now.Location())
}

func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
