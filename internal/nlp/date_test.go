package nlp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testLoc = time.FixedZone("CST", -6*60*60)

// Wednesday, 10 January 2024, 10:00.
var testNow = time.Date(2024, time.January, 10, 10, 0, 0, 0, testLoc)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, testLoc)
}

func TestExtractDate(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   time.Time
		wantOK bool
	}{
		{name: "tomorrow", text: "lunch tomorrow", want: day(2024, 1, 11), wantOK: true},
		{name: "today", text: "anything today?", want: day(2024, 1, 10), wantOK: true},
		{name: "tonight", text: "dinner tonight", want: day(2024, 1, 10), wantOK: true},
		{name: "day after tomorrow", text: "the day after tomorrow", want: day(2024, 1, 12), wantOK: true},
		{name: "next week", text: "sometime next week", want: day(2024, 1, 17), wantOK: true},
		{name: "bare weekday", text: "gym on Friday", want: day(2024, 1, 12), wantOK: true},
		{name: "same weekday rolls a week", text: "this wednesday", want: day(2024, 1, 17), wantOK: true},
		{name: "next weekday", text: "next monday", want: day(2024, 1, 15), wantOK: true},
		{name: "ordinal this month", text: "on the 21st", want: day(2024, 1, 21), wantOK: true},
		{name: "ordinal passed rolls to next month", text: "the 5th", want: day(2024, 2, 5), wantOK: true},
		{name: "month and day", text: "March 3", want: day(2024, 3, 3), wantOK: true},
		{name: "month and day passed rolls a year", text: "jan 2nd", want: day(2025, 1, 2), wantOK: true},
		{name: "day of month", text: "3rd of march", want: day(2024, 3, 3), wantOK: true},
		{name: "iso date", text: "on 2024-02-29", want: day(2024, 2, 29), wantOK: true},
		{name: "invalid iso date", text: "2023-02-30", want: day(2024, 1, 10), wantOK: false},
		{name: "invalid iso date ignores other phrases", text: "2023-02-30 tomorrow", want: day(2024, 1, 10), wantOK: false},
		{name: "invalid month day is not an ordinal", text: "feb 30th", want: day(2024, 1, 10), wantOK: false},
		{name: "no date", text: "lunch with sam", want: day(2024, 1, 10), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractDate(tt.text, testNow)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestExtractDateOrdinalSkipsShortMonths(t *testing.T) {
	now := time.Date(2024, time.February, 10, 8, 0, 0, 0, testLoc)
	got, ok := ExtractDate("the 31st", now)
	assert.True(t, ok)
	assert.True(t, day(2024, 3, 31).Equal(got), "got %s", got)
}

func TestParseRelativeDateDefaultsToToday(t *testing.T) {
	assert.True(t, day(2024, 1, 10).Equal(ParseRelativeDate("whenever", testNow)))
	assert.True(t, day(2024, 1, 11).Equal(ParseRelativeDate("tomorrow", testNow)))
	assert.True(t, day(2024, 1, 13).Equal(ParseRelativeDate("saturday", testNow)))
}

func TestRanges(t *testing.T) {
	r := NewTimeRange(day(2024, 1, 11), 15, 30, 90*time.Minute)
	assert.Equal(t, time.Date(2024, 1, 11, 15, 30, 0, 0, testLoc), r.Start)
	assert.Equal(t, time.Date(2024, 1, 11, 17, 0, 0, 0, testLoc), r.End)

	full := FullDayRange(testNow)
	assert.Equal(t, day(2024, 1, 10), full.Start)
	assert.Equal(t, time.Date(2024, 1, 10, 23, 59, 59, int(999*time.Millisecond), testLoc), full.End)
}

func TestCheckDate(t *testing.T) {
	assert.NoError(t, CheckDate("lunch on 2024-02-29", testNow))
	assert.NoError(t, CheckDate("lunch tomorrow", testNow))
	assert.NoError(t, CheckDate("the 31st", testNow))

	for _, text := range []string{"review on 2024-02-30", "april 31", "31st of june", "2024-13-01"} {
		err := CheckDate(text, testNow)
		assert.ErrorIs(t, err, ErrInvalidDate, text)
	}
	assert.EqualError(t, CheckDate("Review on 2023-02-29", testNow), "no such date: 2023-02-29")
}

func TestExtractRange(t *testing.T) {
	endOf := func(y int, m time.Month, d int) time.Time {
		return day(y, m, d).AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	tests := []struct {
		name      string
		text      string
		start     time.Time
		end       time.Time
		wantFound bool
	}{
		{name: "next week", text: "what do I have next week?", start: day(2024, 1, 15), end: endOf(2024, 1, 21), wantFound: true},
		{name: "this week", text: "anything this week", start: day(2024, 1, 10), end: endOf(2024, 1, 14), wantFound: true},
		{name: "weekday beats week", text: "what about monday next week", start: day(2024, 1, 15), end: endOf(2024, 1, 15), wantFound: true},
		{name: "tomorrow", text: "what's on tomorrow", start: day(2024, 1, 11), end: endOf(2024, 1, 11), wantFound: true},
		{name: "explicit date", text: "what's on March 3", start: day(2024, 3, 3), end: endOf(2024, 3, 3), wantFound: true},
		{name: "no date", text: "show my agenda"},
		{name: "invalid date", text: "what's on 2024-02-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractRange(tt.text, testNow)
			assert.Equal(t, tt.wantFound, ok)
			assert.True(t, tt.start.Equal(got.Start), "start %s", got.Start)
			assert.True(t, tt.end.Equal(got.End), "end %s", got.End)
		})
	}
}

func TestExtractRangeFromSunday(t *testing.T) {
	sunday := time.Date(2024, time.January, 14, 20, 0, 0, 0, testLoc)
	r, ok := ExtractRange("next week", sunday)
	assert.True(t, ok)
	assert.True(t, day(2024, 1, 15).Equal(r.Start), "start %s", r.Start)

	r, ok = ExtractRange("this week", sunday)
	assert.True(t, ok)
	assert.True(t, day(2024, 1, 14).Equal(r.Start), "start %s", r.Start)
	assert.True(t, day(2024, 1, 15).Add(-time.Millisecond).Equal(r.End), "end %s", r.End)
}
