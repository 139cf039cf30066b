package domain

import (
	"fmt"
	"time"
)

// Window is a closed rental interval [Start, End].
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewWindow(start, end time.Time) (Window, error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, fmt.Errorf("%w: rental window needs both start and end", ErrValidation)
	}
	if !end.After(start) {
		return Window{}, fmt.Errorf("%w: rental window end %s is not after start %s",
			ErrValidation, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps reports whether two closed intervals share at least one instant.
// Boundaries are inclusive: a window ending at T conflicts with one starting at T.
func (w Window) Overlaps(o Window) bool {
	return !w.Start.After(o.End) && !w.End.Before(o.Start)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
