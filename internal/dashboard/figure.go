package dashboard

import (
	"encoding/json"
	"fmt"
)

// Figure is a declarative chart in the shape Plotly.js expects:
// a list of traces plus a layout. Figures are treated as immutable values and
// replaced wholesale when a binding recomputes them.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one data series of a figure.
type Trace struct {
	Type          string       `json:"type"`
	Mode          string       `json:"mode,omitempty"`
	Name          string       `json:"name,omitempty"`
	X             []Datum      `json:"x,omitempty"`
	Y             []Datum      `json:"y,omitempty"`
	Z             [][]*float64 `json:"z,omitempty"`
	Text          []string     `json:"text,omitempty"`
	Orientation   string       `json:"orientation,omitempty"`
	HoverTemplate string       `json:"hovertemplate,omitempty"`
	TextTemplate  string       `json:"texttemplate,omitempty"`
	TextPosition  string       `json:"textposition,omitempty"`
	HoverOnGaps   *bool        `json:"hoverongaps,omitempty"`
	ColorScale    []ColorStop  `json:"colorscale,omitempty"`
	ReverseScale  bool         `json:"reversescale,omitempty"`
	ShowScale     *bool        `json:"showscale,omitempty"`
	YGap          float64      `json:"ygap,omitempty"`
	Opacity       float64      `json:"opacity,omitempty"`
	Marker        *Marker      `json:"marker,omitempty"`
}

// Marker holds per-trace style hints.
type Marker struct {
	Color string      `json:"color,omitempty"`
	Line  *MarkerLine `json:"line,omitempty"`
}

type MarkerLine struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
}

// ColorStop is a [position, color] pair of a continuous color scale.
type ColorStop struct {
	Position float64
	Color    string
}

func (c ColorStop) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Position, c.Color})
}

func (c *ColorStop) UnmarshalJSON(b []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("color stop: %w", err)
	}
	if err := json.Unmarshal(raw[0], &c.Position); err != nil {
		return fmt.Errorf("color stop position: %w", err)
	}
	if err := json.Unmarshal(raw[1], &c.Color); err != nil {
		return fmt.Errorf("color stop color: %w", err)
	}
	return nil
}

// Layout describes titles, axes and colors of a figure.
type Layout struct {
	Title       *Title       `json:"title,omitempty"`
	XAxis       *Axis        `json:"xaxis,omitempty"`
	YAxis       *Axis        `json:"yaxis,omitempty"`
	Colorway    []string     `json:"colorway,omitempty"`
	BarMode     string       `json:"barmode,omitempty"`
	Margin      *Margin      `json:"margin,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

type Title struct {
	Text    string  `json:"text"`
	X       float64 `json:"x,omitempty"`
	XAnchor string  `json:"xanchor,omitempty"`
}

type Axis struct {
	FixedRange bool    `json:"fixedrange,omitempty"`
	TickPrefix string  `json:"tickprefix,omitempty"`
	TickSuffix string  `json:"ticksuffix,omitempty"`
	TickAngle  float64 `json:"tickangle,omitempty"`
	Side       string  `json:"side,omitempty"`
	DTick      float64 `json:"dtick,omitempty"`
	GridColor  string  `json:"gridcolor,omitempty"`
}

type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	B int `json:"b"`
	T int `json:"t"`
}

// Annotation is a text label placed at data coordinates.
type Annotation struct {
	Text      string `json:"text"`
	X         Datum  `json:"x"`
	Y         Datum  `json:"y"`
	XRef      string `json:"xref,omitempty"`
	YRef      string `json:"yref,omitempty"`
	ShowArrow bool   `json:"showarrow"`
	Font      *Font  `json:"font,omitempty"`
}

type Font struct {
	Color string `json:"color,omitempty"`
}

// Clone returns a deep copy so callers can hand out figures without sharing
// backing arrays.
func (f Figure) Clone() Figure {
	out := Figure{Layout: f.Layout.clone()}
	if f.Data != nil {
		out.Data = make([]Trace, len(f.Data))
		for i, t := range f.Data {
			out.Data[i] = t.clone()
		}
	}
	return out
}

func (t Trace) clone() Trace {
	out := t
	out.X = cloneSlice(t.X)
	out.Y = cloneSlice(t.Y)
	out.Text = cloneSlice(t.Text)
	out.ColorScale = cloneSlice(t.ColorScale)
	if t.Z != nil {
		out.Z = make([][]*float64, len(t.Z))
		for i, row := range t.Z {
			out.Z[i] = make([]*float64, len(row))
			for j, v := range row {
				if v != nil {
					c := *v
					out.Z[i][j] = &c
				}
			}
		}
	}
	if t.HoverOnGaps != nil {
		v := *t.HoverOnGaps
		out.HoverOnGaps = &v
	}
	if t.ShowScale != nil {
		v := *t.ShowScale
		out.ShowScale = &v
	}
	if t.Marker != nil {
		m := *t.Marker
		if t.Marker.Line != nil {
			l := *t.Marker.Line
			m.Line = &l
		}
		out.Marker = &m
	}
	return out
}

func (l Layout) clone() Layout {
	out := l
	if l.Title != nil {
		v := *l.Title
		out.Title = &v
	}
	if l.XAxis != nil {
		v := *l.XAxis
		out.XAxis = &v
	}
	if l.YAxis != nil {
		v := *l.YAxis
		out.YAxis = &v
	}
	if l.Margin != nil {
		v := *l.Margin
		out.Margin = &v
	}
	out.Colorway = cloneSlice(l.Colorway)
	if l.Annotations != nil {
		out.Annotations = make([]Annotation, len(l.Annotations))
		for i, a := range l.Annotations {
			out.Annotations[i] = a
			if a.Font != nil {
				f := *a.Font
				out.Annotations[i].Font = &f
			}
		}
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }
