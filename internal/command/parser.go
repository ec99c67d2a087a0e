package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pewcal/pewcal/internal/logger"
	"github.com/pewcal/pewcal/internal/metrics"
	"github.com/pewcal/pewcal/internal/nlp"
)

// Parser converts a chat message into a Command. now carries the user's
// location.
type Parser interface {
	Parse(ctx context.Context, text string, now time.Time) (Command, error)
}

// RuleParser is the deterministic parser built on package nlp.
type RuleParser struct{}

func (RuleParser) Parse(_ context.Context, text string, now time.Time) (Command, error) {
	if err := nlp.CheckDate(text, now); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	var cmd Command
	switch intent := nlp.DetectIntent(text); intent {
	case nlp.IntentCreate:
		d := nlp.ExtractEventDetails(text, now)
		cmd = Command{Type: TypeCreate, Params: Params{Title: d.Title, StartTime: d.Start, EndTime: d.End}}
	case nlp.IntentDelete:
		t := nlp.ExtractDeleteTarget(text, now)
		if !t.HasDate && t.Title == "" {
			return Command{}, ErrAmbiguousDelete
		}
		cmd = Command{Type: TypeDelete, Params: Params{Title: t.Title, StartTime: t.Start, EndTime: t.End}}
	case nlp.IntentQuery:
		cmd = Command{Type: TypeQuery}
		if r, ok := nlp.ExtractRange(text, now); ok {
			cmd.Params.StartTime, cmd.Params.EndTime = r.Start, r.End
		}
	default:
		return Command{}, fmt.Errorf("%w: no %s support for %q", ErrInvalidCommand, intent, text)
	}
	return cmd, cmd.Validate()
}

// FallbackParser tries Primary and falls back to Secondary when it fails or
// yields an invalid command.
type FallbackParser struct {
	Primary   Parser
	Secondary Parser
	Logger    logger.Logger
}

func (p FallbackParser) Parse(ctx context.Context, text string, now time.Time) (Command, error) {
	if p.Primary != nil {
		cmd, err := p.Primary.Parse(ctx, text, now)
		metrics.ObserveCommand(intentLabel(cmd), "llm", err)
		if err == nil {
			return cmd, nil
		}
		if p.Logger != nil {
			p.Logger.Warn("llm parse failed, using rules", "error", err.Error())
		}
	}
	cmd, err := p.Secondary.Parse(ctx, text, now)
	metrics.ObserveCommand(intentLabel(cmd), "rules", err)
	return cmd, err
}

func intentLabel(cmd Command) string {
	if cmd.Type == "" {
		return "unknown"
	}
	return string(cmd.Type)
}
