package dashboard

import (
	"context"
	"fmt"
)

const (
	ProgressIntervalID ControlID = "progress-interval"

	ProgressValue OutputID = "progress.value"
	ProgressLabel OutputID = "progress.children"
)

const (
	progressPeriod   = 110
	progressCeiling  = 100
	progressMinLabel = 5
)

// ProgressAt maps a tick count onto the sawtooth progress indicator: the
// percentage climbs to 100, holds there for ten ticks and wraps to 0. The
// label stays empty below 5% so the text is not squashed into a thin bar.
func ProgressAt(n int) (int, string) {
	p := min(n%progressPeriod, progressCeiling)
	if p < progressMinLabel {
		return p, ""
	}
	return p, fmt.Sprintf("%d %%", p)
}

// ProgressBinding drives the progress bar from the interval tick count.
func ProgressBinding() Binding {
	return Binding{
		Name:    "update_progress",
		Inputs:  []ControlID{ProgressIntervalID},
		Outputs: []OutputID{ProgressValue, ProgressLabel},
		Compute: func(_ context.Context, in Values) ([]any, error) {
			p, label := ProgressAt(in.Int(ProgressIntervalID))
			return []any{p, label}, nil
		},
	}
}
