// Package dashboard holds the Avocado Analytics page model and its reactive
// update engine: controls, bindings from controls to rendered outputs, and
// per-page sessions that apply control changes one at a time.
package dashboard

import "time"

// DefaultProgressInterval is the tick period of the progress timer.
const DefaultProgressInterval = 500 * time.Millisecond

// DefaultControls declares the two filters and the progress timer.
func DefaultControls(progressEvery time.Duration) []ControlSpec {
	if progressEvery <= 0 {
		progressEvery = DefaultProgressInterval
	}
	return []ControlSpec{
		{
			ID:         RegionFilterID,
			Kind:       KindDropdown,
			Label:      "Region",
			Options:    optionsOf(Regions),
			Default:    "Madrid",
			Searchable: true,
		},
		{
			ID:      TypeFilterID,
			Kind:    KindDropdown,
			Label:   "Type",
			Options: optionsOf(AvocadoTypes),
			Default: "Big",
		},
		{
			ID:           ProgressIntervalID,
			Kind:         KindInterval,
			Default:      0,
			Every:        progressEvery,
			MaxIntervals: -1,
		},
	}
}

// DefaultBindings is the binding table of the page.
func DefaultBindings(src SeriesSource) []Binding {
	if src == nil {
		src = MockSource{}
	}
	return []Binding{
		ProgressBinding(),
		ChartFilterBinding(src),
	}
}

// New resolves the default controls and bindings into an engine.
func New(src SeriesSource, progressEvery time.Duration, opts ...EngineOption) (*Engine, error) {
	return NewEngine(DefaultControls(progressEvery), DefaultBindings(src), opts...)
}

func optionsOf(values []string) []Option {
	out := make([]Option, len(values))
	for i, v := range values {
		out[i] = Option{Label: v, Value: v}
	}
	return out
}
