package nlp

import (
	"regexp"
	"strings"
	"time"
)

// DefaultTitle is used when a create phrase names no event.
const DefaultTitle = "New Event"

var (
	quotedTitleRe = regexp.MustCompile(`["“”]([^"“”]+)["“”]`)
	leadingVerbRe = regexp.MustCompile(`(?i)^\s*(?:(?:please|hey|can\s+you|could\s+you|would\s+you|i\s+want\s+to|i'd\s+like\s+to)\s+)*(?:add|create|schedule|book|put|set\s+up|delete|remove|cancel|clear|erase)(?:\s+|$)`)
	calledRe      = regexp.MustCompile(`(?i)^(?:(?:a|an|the|my)\s+)?(?:new\s+)?(?:event|meeting|appointment|reminder)\s+(?:called|named|titled)\s+`)
	articleRe     = regexp.MustCompile(`(?i)^(?:a|an|the|my|all\s+(?:of\s+)?my)\s+`)
	toCalendarRe  = regexp.MustCompile(`(?i)\s+(?:to|on|from|in)\s+(?:my|the)\s+calendar\s*$`)
	clockTokenRe  = regexp.MustCompile(`(?i)^\d{1,2}(?::\d{2})?(?:a\.?m\.?|p\.?m\.?)?$`)
	dateTokenRe   = regexp.MustCompile(`(?i)^(?:\d{4}-\d{2}-\d{2}|\d{1,2}(?:st|nd|rd|th))$`)
	trimPunct     = ".,!?;:"

	genericTargets = map[string]bool{
		"":            true,
		"all":         true,
		"everything":  true,
		"event":       true,
		"events":      true,
		"my events":   true,
		"all events":  true,
		"meetings":    true,
		"my meetings": true,
		"my calendar": true,
		"calendar":    true,
	}
)

var stopWords = map[string]bool{
	"at": true, "@": true, "on": true, "for": true, "tomorrow": true,
	"today": true, "tonight": true, "next": true, "this": true, "from": true,
	"noon": true, "midnight": true, "morning": true, "afternoon": true,
	"evening": true, "between": true,
}

// ExtractTitle pulls the event title out of a command phrase. A quoted title
// wins; otherwise it is the words after the verb up to the first date or time
// token. Returns "" when nothing remains.
func ExtractTitle(text string) string {
	if m := quotedTitleRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	rest := leadingVerbRe.ReplaceAllString(text, "")
	rest = calledRe.ReplaceAllString(rest, "")
	rest = articleRe.ReplaceAllString(rest, "")

	var words []string
	for _, w := range strings.Fields(rest) {
		lw := strings.Trim(strings.ToLower(w), trimPunct)
		if isStopToken(lw) {
			break
		}
		words = append(words, w)
	}

	title := strings.Join(words, " ")
	title = toCalendarRe.ReplaceAllString(title, "")
	return strings.Trim(title, trimPunct+" ")
}

func isStopToken(w string) bool {
	if stopWords[w] {
		return true
	}
	if _, ok := weekdays[w]; ok {
		return true
	}
	if _, ok := months[w]; ok && w != "may" {
		return true
	}
	return clockTokenRe.MatchString(w) || dateTokenRe.MatchString(w)
}

// EventDetails is what a create phrase describes.
type EventDetails struct {
	Title   string
	Start   time.Time
	End     time.Time
	HasDate bool
	HasTime bool
}

// ExtractEventDetails resolves title, start and end for a create phrase.
// "in 2 hours" counts from now when no date or time is given. Otherwise
// missing pieces default to today, 09:00 and one hour.
func ExtractEventDetails(text string, now time.Time) EventDetails {
	offset, relative := ParseRelativeOffset(text)
	if relative {
		text = inOffsetRe.ReplaceAllString(text, " ")
	}

	title := ExtractTitle(text)
	if title == "" {
		title = DefaultTitle
	}

	day, hasDate := ExtractDate(text, now)
	hour, minute, hasTime := ParseTimeOfDay(text)
	duration, ok := ParseDuration(text)
	if !ok {
		duration = time.Hour
	}
	if relative && !hasDate && !hasTime {
		start := now.Add(offset).Truncate(time.Minute)
		return EventDetails{Title: title, Start: start, End: start.Add(duration), HasDate: true, HasTime: true}
	}
	if !hasTime {
		hour, minute = DefaultHour, 0
	}

	r := NewTimeRange(day, hour, minute, duration)
	return EventDetails{
		Title:   title,
		Start:   r.Start,
		End:     r.End,
		HasDate: hasDate,
		HasTime: hasTime,
	}
}

// DeleteTarget describes which events a delete phrase refers to.
type DeleteTarget struct {
	Title      string
	Start      time.Time
	End        time.Time
	HasDate    bool
	AllInRange bool
}

// ExtractDeleteTarget resolves the title filter and time window of a delete
// phrase. A named day covers that whole day; otherwise the next 24 hours.
// Generic targets such as "everything" match every event in the window.
func ExtractDeleteTarget(text string, now time.Time) DeleteTarget {
	title := ExtractTitle(text)
	day, hasDate := ExtractDate(text, now)

	var r TimeRange
	if hasDate {
		r = FullDayRange(day)
	} else {
		r = TimeRange{Start: now, End: now.Add(24 * time.Hour)}
	}

	lt := strings.ToLower(title)
	generic := genericTargets[lt] || genericTargets[strings.TrimPrefix(lt, "all ")]
	if generic {
		title = ""
	}

	return DeleteTarget{
		Title:      title,
		Start:      r.Start,
		End:        r.End,
		HasDate:    hasDate,
		AllInRange: generic,
	}
}
