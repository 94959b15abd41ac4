package dashboard

import (
	"encoding/json"
	"fmt"
	"time"
)

// Page is the view model of the dashboard: everything the HTML template
// needs to lay out the header, filters, chart cards and progress bar.
type Page struct {
	Title       string
	Stylesheets []Stylesheet
	Header      Header
	Filters     []Filter
	Rows        []Row
	Progress    ProgressBar
}

type Stylesheet struct {
	Href string
	Rel  string
}

type Header struct {
	Emoji       string
	Title       string
	Description string
}

// Filter is a titled dropdown in the menu bar.
type Filter struct {
	Title   string
	Control ControlSpec
	Default string
}

type Row struct {
	Cards []Card
}

type CardKind string

const (
	CardGraph    CardKind = "graph"
	CardTextarea CardKind = "textarea"
)

// Card is one cell of a row. Graph cards without a figure are filled in by
// the first engine update.
type Card struct {
	Kind           CardKind
	ID             string
	Figure         *Figure
	DisplayModeBar bool
	Text           string
	Width          string
	Height         string
}

// FigureJSON encodes the card's figure for embedding in the page.
func (c Card) FigureJSON() (string, error) {
	if c.Figure == nil {
		return "", nil
	}
	b, err := json.Marshal(c.Figure)
	if err != nil {
		return "", fmt.Errorf("encode figure %s: %w", c.ID, err)
	}
	return string(b), nil
}

// ProgressBar binds the bar element to its timer control.
type ProgressBar struct {
	ID         string
	IntervalID ControlID
	Every      time.Duration
}

const (
	PageTitle  = "Avocado Analytics: Understand Your Avocados!"
	TextareaID = "textarea-example"
	ProgressID = "progress"
)

// BuildPage assembles the page from the engine's controls and the static
// figures.
func BuildPage(controls []ControlSpec) Page {
	static := StaticFigures()
	graph := func(id string, modeBar bool) Card {
		c := Card{Kind: CardGraph, ID: id, DisplayModeBar: modeBar}
		if fig, ok := static[id]; ok {
			c.Figure = &fig
		}
		return c
	}

	page := Page{
		Title: PageTitle,
		Stylesheets: []Stylesheet{
			{Href: "https://fonts.googleapis.com/css2?family=Lato:wght@400;700&display=swap", Rel: "stylesheet"},
			{Href: "https://cdn.jsdelivr.net/npm/bootstrap@4.6.2/dist/css/bootstrap.min.css", Rel: "stylesheet"},
		},
		Header: Header{
			Emoji: "🥑",
			Title: "Avocado Analytics",
			Description: "Analyze the behavior of avocado prices" +
				" and the number of avocados sold in the US" +
				" between 2015 and 2018",
		},
		Rows: []Row{
			{Cards: []Card{graph(PriceChart.Component(), false), graph(VolumeChart.Component(), false)}},
			{Cards: []Card{graph(HeatmapID, false), graph(HitmapID, false)}},
			{Cards: []Card{graph(ConfusionMatrixID, true), graph(BarsID, true)}},
			{Cards: []Card{
				{Kind: CardTextarea, ID: TextareaID, Text: "Here some text", Width: "100%", Height: "300px"},
				graph(MinibarsID, true),
			}},
		},
		Progress: ProgressBar{ID: ProgressID, IntervalID: ProgressIntervalID, Every: DefaultProgressInterval},
	}

	for _, c := range controls {
		switch c.Kind {
		case KindDropdown:
			def, _ := c.Default.(string)
			page.Filters = append(page.Filters, Filter{Title: c.Label, Control: c, Default: def})
		case KindInterval:
			if c.ID == ProgressIntervalID {
				page.Progress.Every = c.Every
			}
		}
	}
	return page
}
