package dashboard

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ControlID names an input control on the page.
type ControlID string

type ControlKind string

const (
	KindDropdown ControlKind = "dropdown"
	KindInterval ControlKind = "interval"
)

// Option is one allowed dropdown value.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ControlSpec declares a control: its identifier, kind and domain. Dropdowns
// carry the allowed options, intervals carry the tick period.
type ControlSpec struct {
	ID         ControlID   `json:"id"`
	Kind       ControlKind `json:"kind"`
	Label      string      `json:"label,omitempty"`
	Options    []Option    `json:"options,omitempty"`
	Default    any         `json:"default"`
	Clearable  bool        `json:"clearable"`
	Searchable bool        `json:"searchable"`

	Every        time.Duration `json:"-"`
	MaxIntervals int           `json:"max_intervals,omitempty"`
}

// Property is the control attribute bindings read: "value" for dropdowns and
// "n_intervals" for timers.
func (c ControlSpec) Property() string {
	if c.Kind == KindInterval {
		return "n_intervals"
	}
	return "value"
}

func (c ControlSpec) MarshalJSON() ([]byte, error) {
	type plain ControlSpec
	out := struct {
		plain
		Property string `json:"property"`
		EveryMS  int64  `json:"every_ms,omitempty"`
	}{plain: plain(c), Property: c.Property(), EveryMS: c.Every.Milliseconds()}
	return json.Marshal(out)
}

// Normalize checks v against the control's domain and returns it in canonical
// form (string for dropdowns, int for intervals).
func (c ControlSpec) Normalize(v any) (any, error) {
	switch c.Kind {
	case KindDropdown:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidValue, c.ID, v)
		}
		for _, opt := range c.Options {
			if opt.Value == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidValue, s, c.ID)
	case KindInterval:
		n, err := tickCount(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, c.ID, err)
		}
		if c.MaxIntervals >= 0 && n > c.MaxIntervals {
			return nil, fmt.Errorf("%w: %s exceeds max_intervals %d", ErrInvalidValue, c.ID, c.MaxIntervals)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: unknown control kind %q", ErrInvalidValue, c.Kind)
	}
}

func tickCount(v any) (int, error) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expects a tick count, got %T", v)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("tick count must be a non-negative integer, got %v", v)
	}
	return int(f), nil
}

// Values maps controls to their current values.
type Values map[ControlID]any

// String returns the dropdown value of id, or "" when unset.
func (v Values) String(id ControlID) string {
	s, _ := v[id].(string)
	return s
}

// Int returns the tick count of id, or 0 when unset.
func (v Values) Int(id ControlID) int {
	n, _ := v[id].(int)
	return n
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func (v Values) subset(ids []ControlID) Values {
	out := make(Values, len(ids))
	for _, id := range ids {
		out[id] = v[id]
	}
	return out
}
