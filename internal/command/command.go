// Package command turns chat messages into calendar commands and runs them
// against Google Calendar.
package command

import (
	"errors"
	"fmt"
	"time"
)

// Type is the action a command performs.
type Type string

const (
	TypeCreate Type = "CREATE"
	TypeDelete Type = "DELETE"
	TypeQuery  Type = "QUERY"
)

var ErrInvalidCommand = errors.New("invalid command")

// ErrAmbiguousDelete is returned for a delete that names neither an event
// nor a day. Nothing is removed; the user is asked to narrow it down.
var ErrAmbiguousDelete = fmt.Errorf("%w: delete needs a title or a day", ErrInvalidCommand)

// ClarifyDelete is the reply to an ambiguous delete.
const ClarifyDelete = "Which day would you like me to clear?"

// ClarifyDate is the reply to a message naming a date that does not exist.
const ClarifyDate = "That date doesn't exist. Try something like 'March 3' or '2024-03-03'."

// Params carries the command arguments. Times are absolute.
type Params struct {
	Title       string    `json:"title,omitempty"`
	StartTime   time.Time `json:"startTime,omitzero"`
	EndTime     time.Time `json:"endTime,omitzero"`
	Description string    `json:"description,omitempty"`
	Recurrence  []string  `json:"recurrence,omitempty"`
}

// Command is a parsed chat instruction.
type Command struct {
	Type   Type   `json:"type"`
	Params Params `json:"params"`
}

// Validate reports ErrInvalidCommand when required parameters are missing.
func (c Command) Validate() error {
	switch c.Type {
	case TypeCreate:
		if c.Params.Title == "" {
			return fmt.Errorf("%w: create needs a title", ErrInvalidCommand)
		}
		if c.Params.StartTime.IsZero() {
			return fmt.Errorf("%w: create needs a start time", ErrInvalidCommand)
		}
		if !c.Params.EndTime.IsZero() && !c.Params.EndTime.After(c.Params.StartTime) {
			return fmt.Errorf("%w: end time must be after start time", ErrInvalidCommand)
		}
	case TypeDelete:
		if c.Params.Title == "" && c.Params.StartTime.IsZero() && c.Params.EndTime.IsZero() {
			return fmt.Errorf("%w: delete needs a title or a time range", ErrInvalidCommand)
		}
	case TypeQuery:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Type)
	}
	return nil
}
