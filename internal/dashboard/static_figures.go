package dashboard

import (
	"math"
	"strconv"
)

const (
	HeatmapID         = "heatmap"
	HitmapID          = "hitmap"
	ConfusionMatrixID = "confusion-matrix"
	BarsID            = "bars"
	MinibarsID        = "minibars"
)

// StaticFigures returns the charts that never change after page load, keyed by
// component id.
func StaticFigures() map[string]Figure {
	return map[string]Figure{
		HeatmapID:         HeatmapFigure(),
		HitmapID:          HitmapFigure(),
		ConfusionMatrixID: ConfusionMatrixFigure(),
		BarsID:            BarsFigure(),
		MinibarsID:        MinibarsFigure(),
	}
}

// HeatmapFigure is the weekday/time-of-day heatmap. Missing cells stay null
// and are not hoverable.
func HeatmapFigure() Figure {
	return Figure{
		Data: []Trace{{
			Type: "heatmap",
			Z: [][]*float64{
				{floatPtr(1), nil, floatPtr(30), floatPtr(50), floatPtr(1)},
				{floatPtr(20), floatPtr(1), floatPtr(60), floatPtr(80), floatPtr(30)},
				{floatPtr(30), floatPtr(60), floatPtr(1), floatPtr(-10), floatPtr(20)},
			},
			X:           Strs("Monday", "Tuesday", "Wednesday", "Thursday", "Friday"),
			Y:           Strs("Morning", "Afternoon", "Evening"),
			HoverOnGaps: boolPtr(false),
		}},
	}
}

func HitmapFigure() Figure {
	return Figure{
		Data: []Trace{{
			Type:         "heatmap",
			Z:            denseMatrix([][]float64{{1.0, 0.3}, {0.2, 0.9}}),
			Y:            Strs("True", "False"),
			X:            Strs("True", "False"),
			YGap:         2,
			ReverseScale: true,
			ColorScale:   []ColorStop{{0, "white"}, {1, "blue"}},
		}},
		Layout: Layout{
			XAxis:  &Axis{Side: "top"},
			Margin: &Margin{L: 100, R: 100, B: 150, T: 100},
		},
	}
}

func ConfusionMatrixFigure() Figure {
	z := [][]float64{
		{.1, .3, .5, .7},
		{1.0, .8, .6, .4},
		{.6, .4, .2, 0.0},
		{.9, .7, .5, .3},
	}
	labels := []string{"a", "b", "c", "d"}
	return AnnotatedHeatmap(z, labels, labels,
		[]ColorStop{{0, "navy"}, {1, "plum"}},
		[]string{"white", "black"})
}

// AnnotatedHeatmap renders z as a heatmap with each cell's value written on
// it. Cells below the midpoint of z use the first font color, the rest use
// the last one.
func AnnotatedHeatmap(z [][]float64, x, y []string, scale []ColorStop, fontColors []string) Figure {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range z {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	mid := (lo + hi) / 2

	lowColor, highColor := "white", "black"
	if len(fontColors) > 0 {
		lowColor = fontColors[0]
		highColor = fontColors[len(fontColors)-1]
	}

	var annotations []Annotation
	for i, row := range z {
		for j, v := range row {
			color := highColor
			if v < mid {
				color = lowColor
			}
			annotations = append(annotations, Annotation{
				Text:      cellLabel(v),
				X:         Str(x[j]),
				Y:         Str(y[i]),
				XRef:      "x",
				YRef:      "y",
				ShowArrow: false,
				Font:      &Font{Color: color},
			})
		}
	}

	return Figure{
		Data: []Trace{{
			Type:       "heatmap",
			Z:          denseMatrix(z),
			X:          Strs(x...),
			Y:          Strs(y...),
			ColorScale: cloneSlice(scale),
			ShowScale:  boolPtr(false),
		}},
		Layout: Layout{
			XAxis:       &Axis{Side: "top", DTick: 1, GridColor: "rgb(0, 0, 0)"},
			YAxis:       &Axis{DTick: 1, TickSuffix: "  "},
			Annotations: annotations,
		},
	}
}

// cellLabel keeps one decimal on whole numbers so 1 reads as "1.0" like the
// surrounding fractional cells.
func cellLabel(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var months = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// BarsFigure compares the two product lines month by month.
func BarsFigure() Figure {
	bar := func(name, color string, y ...float64) Trace {
		return Trace{
			Type:         "bar",
			Name:         name,
			X:            Strs(months...),
			Y:            Nums(y...),
			Marker:       &Marker{Color: color},
			TextTemplate: "%{text:.2s}",
			TextPosition: "outside",
		}
	}
	return Figure{
		Data: []Trace{
			bar("Primary Product", "indianred", 20, 14, 25, 16, 18, 22, 19, 15, 12, 16, 14, 17),
			bar("Secondary Product", "lightsalmon", 19, 14, 22, 14, 16, 19, 15, 14, 10, 12, 12, 16),
		},
		Layout: Layout{
			BarMode: "group",
			XAxis:   &Axis{TickAngle: -45},
		},
	}
}

func MinibarsFigure() Figure {
	return Figure{
		Data: []Trace{{
			Type:         "bar",
			X:            Nums(20, 14, 23),
			Y:            Strs("giraffes", "orangutans", "monkeys"),
			Orientation:  "h",
			Text:         []string{"a", "b", "c"},
			TextPosition: "auto",
			Marker: &Marker{
				Color: "rgb(158,202,225)",
				Line:  &MarkerLine{Color: "rgb(8,48,107)", Width: 1.5},
			},
			Opacity: 0.6,
		}},
	}
}

func denseMatrix(z [][]float64) [][]*float64 {
	out := make([][]*float64, len(z))
	for i, row := range z {
		out[i] = make([]*float64, len(row))
		for j, v := range row {
			out[i][j] = floatPtr(v)
		}
	}
	return out
}
