package nlp

import (
	"regexp"
	"strings"
)

// Intent is the kind of calendar action a phrase asks for.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentDelete
	IntentCreate
	IntentUpdate
	IntentQuery
)

func (i Intent) String() string {
	switch i {
	case IntentDelete:
		return "delete"
	case IntentCreate:
		return "create"
	case IntentUpdate:
		return "update"
	case IntentQuery:
		return "query"
	default:
		return "unknown"
	}
}

var (
	deleteVerbRe     = regexp.MustCompile(`\b(?:delete|remove|cancel|clear|erase)\b`)
	createVerbRe     = regexp.MustCompile(`\b(?:add|create|book|put|set\s+up)\b|^\s*(?:please\s+)?(?:(?:can|could|would|will)\s+you\s+(?:please\s+)?)?schedule\b`)
	scheduleObjectRe = regexp.MustCompile(`\bschedule\s+(?:a|an|me|my|the)\b`)
	questionRe       = regexp.MustCompile(`^\s*(?:what|what's|whats|when|which|how|do|does|am|is|are)\b|\?\s*$`)
	updateVerbRe     = regexp.MustCompile(`\b(?:update|change|move|reschedule|rename|edit)\b`)
	queryRe          = regexp.MustCompile(`\b(?:what|what's|whats|when|show|list|agenda|schedule|busy|free|upcoming)\b|\bdo\s+i\s+have\b|\bam\s+i\b|\?\s*$`)
)

// DetectIntent classifies text. Delete is checked first so that phrases like
// "cancel my scheduled meeting" are never read as a create. "schedule" in
// the middle of a question refers to the calendar, not an action.
func DetectIntent(text string) Intent {
	lower := strings.ToLower(text)
	switch {
	case deleteVerbRe.MatchString(lower):
		return IntentDelete
	case createVerbRe.MatchString(lower):
		return IntentCreate
	case scheduleObjectRe.MatchString(lower) && !questionRe.MatchString(lower):
		return IntentCreate
	case updateVerbRe.MatchString(lower):
		return IntentUpdate
	case queryRe.MatchString(lower):
		return IntentQuery
	default:
		return IntentUnknown
	}
}
