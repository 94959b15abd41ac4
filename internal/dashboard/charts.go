package dashboard

import (
	"context"
	"fmt"
)

const (
	RegionFilterID ControlID = "region-filter"
	TypeFilterID   ControlID = "type-filter"

	PriceChart  OutputID = "price-chart.figure"
	VolumeChart OutputID = "volume-chart.figure"
)

var (
	Regions      = []string{"Madrid", "Barcelona", "Valencia"}
	AvocadoTypes = []string{"Big", "Medium", "Small"}
)

// Series is an ordered sequence of coordinate pairs.
type Series struct {
	X []Datum `json:"x"`
	Y []Datum `json:"y"`
}

func (s Series) Len() int { return min(len(s.X), len(s.Y)) }

// SeriesQuery selects the series to chart.
type SeriesQuery struct {
	Region string
	Type   string
}

// SeriesSource supplies the price and volume series behind the two filtered
// line charts. Implementations must be safe for concurrent use and free of
// side effects, so a superseded result can simply be discarded.
type SeriesSource interface {
	Name() string
	Price(ctx context.Context, q SeriesQuery) (Series, error)
	Volume(ctx context.Context, q SeriesQuery) (Series, error)
}

// MockSource returns the same fixed series for every query. It stands in for
// real filtering, which the dashboard does not implement.
type MockSource struct{}

func (MockSource) Name() string { return "mock" }

func (MockSource) Price(context.Context, SeriesQuery) (Series, error) { return mockSeries(), nil }

func (MockSource) Volume(context.Context, SeriesQuery) (Series, error) { return mockSeries(), nil }

func mockSeries() Series {
	return Series{
		X: Nums(1, 2, 3, 4, 5, 6, 7, 8, 9, 10),
		Y: Nums(1, 2, 3, 2, 1, 2, 3, 2, 1, 2),
	}
}

// ChartFilterBinding recomputes the price and volume charts whenever the
// region or type filter changes.
func ChartFilterBinding(src SeriesSource) Binding {
	return Binding{
		Name:    "update_charts",
		Inputs:  []ControlID{RegionFilterID, TypeFilterID},
		Outputs: []OutputID{PriceChart, VolumeChart},
		Compute: func(ctx context.Context, in Values) ([]any, error) {
			q := SeriesQuery{Region: in.String(RegionFilterID), Type: in.String(TypeFilterID)}
			price, err := src.Price(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("price series: %w", err)
			}
			volume, err := src.Volume(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("volume series: %w", err)
			}
			return []any{PriceFigure(price), VolumeFigure(volume)}, nil
		},
	}
}

// PriceFigure lays out the average price line chart.
func PriceFigure(s Series) Figure {
	return Figure{
		Data: []Trace{{
			Type:          "scatter",
			Mode:          "lines",
			X:             cloneSlice(s.X),
			Y:             cloneSlice(s.Y),
			HoverTemplate: "$%{y:.2f}<extra></extra>",
		}},
		Layout: Layout{
			Title:    &Title{Text: "Average Price of Avocados", X: 0.05, XAnchor: "left"},
			XAxis:    &Axis{FixedRange: true},
			YAxis:    &Axis{TickPrefix: "$", FixedRange: true},
			Colorway: []string{"#17B897"},
		},
	}
}

// VolumeFigure lays out the sold volume line chart.
func VolumeFigure(s Series) Figure {
	return Figure{
		Data: []Trace{{
			Type: "scatter",
			Mode: "lines",
			X:    cloneSlice(s.X),
			Y:    cloneSlice(s.Y),
		}},
		Layout: Layout{
			Title:    &Title{Text: "Avocados Sold", X: 0.05, XAnchor: "left"},
			XAxis:    &Axis{FixedRange: true},
			YAxis:    &Axis{FixedRange: true},
			Colorway: []string{"#E12D39"},
		},
	}
}
