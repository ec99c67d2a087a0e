// Package nlp extracts dates, times, titles and intents from short calendar
// phrases such as "add lunch tomorrow at noon". Every function takes the
// reference time explicitly; its location is the user's location.
package nlp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayRe     = regexp.MustCompile(`\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayOfMonthRe   = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+of\s+` + monthPattern + `\b`)
	ordinalRe      = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)\b`)
	weekdayRe      = regexp.MustCompile(`\b(?:(next|this)\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	tomorrowRe     = regexp.MustCompile(`\btomorrow\b`)
	todayRe        = regexp.MustCompile(`\b(?:today|tonight)\b`)
	nextWeekRe     = regexp.MustCompile(`\bnext\s+week\b`)
	thisWeekRe     = regexp.MustCompile(`\bthis\s+week\b`)
	dayAfterNextRe = regexp.MustCompile(`\bday\s+after\s+tomorrow\b`)
)

// ErrInvalidDate reports a written-out date that does not exist, such as
// 2024-02-30 or April 31.
var ErrInvalidDate = errors.New("no such date")

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseRelativeDate resolves a date phrase to midnight of the matching day.
// Unrecognised input resolves to today.
func ParseRelativeDate(text string, now time.Time) time.Time {
	if d, ok := ExtractDate(text, now); ok {
		return d
	}
	return StartOfDay(now)
}

// ExtractDate finds the first date phrase in text. The boolean is false when
// the text names no date at all, or names one that does not exist.
func ExtractDate(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	today := StartOfDay(now)

	if t, phrase, ok := explicitDate(lower, today); phrase != "" {
		if !ok {
			return today, false
		}
		return t, true
	}

	switch {
	case dayAfterNextRe.MatchString(lower):
		return today.AddDate(0, 0, 2), true
	case tomorrowRe.MatchString(lower):
		return today.AddDate(0, 0, 1), true
	}

	if m := weekdayRe.FindStringSubmatch(lower); m != nil {
		return nextWeekday(today, weekdays[m[2]]), true
	}

	if nextWeekRe.MatchString(lower) {
		return today.AddDate(0, 0, 7), true
	}
	if todayRe.MatchString(lower) {
		return today, true
	}

	if m := ordinalRe.FindStringSubmatch(lower); m != nil {
		d, _ := strconv.Atoi(m[1])
		if t, ok := nextOrdinalDay(today, d); ok {
			return t, true
		}
	}

	return today, false
}

// CheckDate returns ErrInvalidDate when text writes out a calendar date,
// ISO or with a month name, that names no real day.
func CheckDate(text string, now time.Time) error {
	if _, phrase, ok := explicitDate(strings.ToLower(text), StartOfDay(now)); phrase != "" && !ok {
		return fmt.Errorf("%w: %s", ErrInvalidDate, phrase)
	}
	return nil
}

// explicitDate resolves an ISO or month-name date. phrase is the matched
// text, empty when there is none; ok is false when it names no real day.
func explicitDate(lower string, today time.Time) (t time.Time, phrase string, ok bool) {
	if m := isoDateRe.FindStringSubmatch(lower); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo < 1 || mo > 12 {
			return time.Time{}, m[0], false
		}
		t, ok = validDate(y, time.Month(mo), d, today.Location())
		return t, m[0], ok
	}
	if m := monthDayRe.FindStringSubmatch(lower); m != nil {
		d, _ := strconv.Atoi(m[2])
		t, ok = nextMonthDay(today, months[m[1]], d)
		return t, m[0], ok
	}
	if m := dayOfMonthRe.FindStringSubmatch(lower); m != nil {
		d, _ := strconv.Atoi(m[1])
		t, ok = nextMonthDay(today, months[m[2]], d)
		return t, m[0], ok
	}
	return time.Time{}, "", false
}

// ExtractRange finds the window a question asks about. "next week" is
// Monday through Sunday of the following week and "this week" runs from
// today through Sunday. Any other date phrase covers that one day.
func ExtractRange(text string, now time.Time) (TimeRange, bool) {
	lower := strings.ToLower(text)
	today := StartOfDay(now)

	_, phrase, _ := explicitDate(lower, today)
	if phrase == "" && !weekdayRe.MatchString(lower) && !tomorrowRe.MatchString(lower) {
		switch {
		case nextWeekRe.MatchString(lower):
			start := startOfWeek(today).AddDate(0, 0, 7)
			return TimeRange{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Millisecond)}, true
		case thisWeekRe.MatchString(lower):
			end := startOfWeek(today).AddDate(0, 0, 7).Add(-time.Millisecond)
			return TimeRange{Start: today, End: end}, true
		}
	}

	day, ok := ExtractDate(text, now)
	if !ok {
		return TimeRange{}, false
	}
	return FullDayRange(day), true
}

// startOfWeek returns the Monday on or before today.
func startOfWeek(today time.Time) time.Time {
	return today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
}

// nextWeekday returns the next occurrence of wd strictly after today.
func nextWeekday(today time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(today.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return today.AddDate(0, 0, days)
}

// nextMonthDay returns month/day in the current year, or next year if that
// date has already passed.
func nextMonthDay(today time.Time, month time.Month, day int) (time.Time, bool) {
	t, ok := validDate(today.Year(), month, day, today.Location())
	if !ok {
		return time.Time{}, false
	}
	if t.Before(today) {
		return validDate(today.Year()+1, month, day, today.Location())
	}
	return t, true
}

// nextOrdinalDay resolves a bare "21st" to this month, or the first following
// month that has that day once it has passed.
func nextOrdinalDay(today time.Time, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	y, m, _ := today.Date()
	for i := 0; i < 12; i++ {
		t, ok := validDate(y, m+time.Month(i), day, today.Location())
		if ok && !t.Before(today) {
			return t, true
		}
	}
	return time.Time{}, false
}

func validDate(y int, m time.Month, d int, loc *time.Location) (time.Time, bool) {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	// time.Date normalises overflow, so compare against what the caller
	// asked for after normalising the month alone.
	want := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	if t.Month() != want.Month() || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// TimeRange is a half-open interval used for event queries.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange starts at hour:minute on day and lasts for duration.
func NewTimeRange(day time.Time, hour, minute int, duration time.Duration) TimeRange {
	y, m, d := day.Date()
	start := time.Date(y, m, d, hour, minute, 0, 0, day.Location())
	return TimeRange{Start: start, End: start.Add(duration)}
}

// FullDayRange covers day from 00:00 through 23:59:59.999.
func FullDayRange(day time.Time) TimeRange {
	start := StartOfDay(day)
	return TimeRange{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Millisecond)}
}
