package booking

import (
	"context"
	"log/slog"
)

// compensation is a named inverse of an already-applied forward step.
type compensation struct {
	name    string
	eventID string
	undo    func(ctx context.Context) error
}

// ledger tracks inverses for steps that have been applied but whose
// saga has not yet committed. On failure it knows exactly what to undo;
// on a fully committed saga it is cleared and never runs.
type ledger struct {
	logger *slog.Logger
	items  []compensation
}

func newLedger(logger *slog.Logger) *ledger {
	return &ledger{logger: logger}
}

func (l *ledger) add(name, eventID string, undo func(ctx context.Context) error) {
	l.items = append(l.items, compensation{name: name, eventID: eventID, undo: undo})
}

func (l *ledger) clear() {
	l.items = nil
}

// run applies the recorded inverses in reverse order. A failing inverse
// is the one unrecoverable case: it is logged as COMPENSATION_FAILED
// with everything manual reconciliation needs, and the remaining
// inverses are still attempted.
func (l *ledger) run(ctx context.Context, cause error) {
	for i := len(l.items) - 1; i >= 0; i-- {
		c := l.items[i]
		if err := c.undo(ctx); err != nil {
			l.logger.Error("COMPENSATION_FAILED",
				"compensation", c.name,
				"event_id", c.eventID,
				"error", err,
				"original_error", cause,
			)
		}
	}

	l.items = nil
}
