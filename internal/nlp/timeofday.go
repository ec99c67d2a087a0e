package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHour is used when a phrase carries no time of day.
const DefaultHour = 9

var (
	meridianTimeRe = regexp.MustCompile(`(?:^|[^\d:])(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)(?:[^a-z]|$)`)
	clockTimeRe    = regexp.MustCompile(`(?:^|[^\d:])(\d{1,2}):(\d{2})\b`)
	atHourRe       = regexp.MustCompile(`(?:\bat|@)\s*(\d{1,2})\b`)
	bareHourRe     = regexp.MustCompile(`^\s*(\d{1,2})\s*$`)
	durationRe     = regexp.MustCompile(`\bfor\s+(\d+(?:\.\d+)?)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
	anHourRe       = regexp.MustCompile(`\bfor\s+(?:an?|one)\s+hour\b`)
	halfHourRe     = regexp.MustCompile(`\bfor\s+(?:half\s+an\s+hour|30\s+min)\b`)
	inOffsetRe     = regexp.MustCompile(`(?i)\bin\s+(\d+|an?|one|half\s+an)\s*(hours?|hrs?|minutes?|mins?)\b`)

	timeKeywords = []struct {
		re     *regexp.Regexp
		hour   int
		minute int
	}{
		{regexp.MustCompile(`\bnoon\b`), 12, 0},
		{regexp.MustCompile(`\bmidnight\b`), 0, 0},
		{regexp.MustCompile(`\bmorning\b`), 9, 0},
		{regexp.MustCompile(`\bafternoon\b`), 14, 0},
		{regexp.MustCompile(`\bevening\b`), 19, 0},
		{regexp.MustCompile(`\b(?:night|tonight)\b`), 20, 0},
	}
)

// ParseTimeOfDay finds a time of day in text. Explicit times ("3pm",
// "15:30", "at 4") win over keywords ("noon", "evening"). A bare hour
// below 8 written without a meridian is read as PM.
func ParseTimeOfDay(text string) (hour, minute int, ok bool) {
	lower := strings.ToLower(text)

	if m := meridianTimeRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := atoiDefault(m[2], 0)
		if h >= 1 && h <= 12 && min < 60 {
			pm := strings.HasPrefix(m[3], "p")
			switch {
			case pm && h < 12:
				h += 12
			case !pm && h == 12:
				h = 0
			}
			return h, min, true
		}
	}

	if m := clockTimeRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h < 24 && min < 60 {
			if len(m[1]) == 1 {
				h = assumeAfternoon(h)
			}
			return h, min, true
		}
	}

	if m := atHourRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 24 {
			return assumeAfternoon(h), 0, true
		}
	}

	if m := bareHourRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 24 {
			return h, 0, true
		}
	}

	for _, kw := range timeKeywords {
		if kw.re.MatchString(lower) {
			return kw.hour, kw.minute, true
		}
	}

	return 0, 0, false
}

// ParseDuration finds "for 2 hours", "for 45 min" or "for an hour". The
// boolean is false when no duration is present.
func ParseDuration(text string) (time.Duration, bool) {
	lower := strings.ToLower(text)
	if halfHourRe.MatchString(lower) {
		return 30 * time.Minute, true
	}
	if anHourRe.MatchString(lower) {
		return time.Hour, true
	}
	m := durationRe.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := time.Hour
	if strings.HasPrefix(m[2], "m") {
		unit = time.Minute
	}
	return time.Duration(n * float64(unit)), true
}

// ParseRelativeOffset finds "in 2 hours", "in 45 minutes" or "in an hour"
// and returns how far from now it points.
func ParseRelativeOffset(text string) (time.Duration, bool) {
	m := inOffsetRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	var n float64
	switch amount := strings.ToLower(m[1]); {
	case amount == "a" || amount == "an" || amount == "one":
		n = 1
	case strings.HasPrefix(amount, "half"):
		n = 0.5
	default:
		v, err := strconv.Atoi(amount)
		if err != nil || v <= 0 {
			return 0, false
		}
		n = float64(v)
	}
	unit := time.Hour
	if strings.HasPrefix(strings.ToLower(m[2]), "m") {
		unit = time.Minute
	}
	return time.Duration(n * float64(unit)), true
}

func assumeAfternoon(h int) int {
	if h >= 1 && h < 8 {
		return h + 12
	}
	return h
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
