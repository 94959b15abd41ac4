package dashboard

import (
	"strings"
	"testing"
	"time"
)

func TestBuildPage(t *testing.T) {
	page := BuildPage(DefaultControls(250 * time.Millisecond))

	if page.Title != PageTitle {
		t.Fatalf("unexpected title %q", page.Title)
	}
	if len(page.Filters) != 2 {
		t.Fatalf("expected two filters, got %d", len(page.Filters))
	}
	if page.Filters[0].Title != "Region" || page.Filters[0].Default != "Madrid" || !page.Filters[0].Control.Searchable {
		t.Fatalf("unexpected region filter %+v", page.Filters[0])
	}
	if page.Filters[1].Title != "Type" || page.Filters[1].Default != "Big" || page.Filters[1].Control.Searchable {
		t.Fatalf("unexpected type filter %+v", page.Filters[1])
	}
	if page.Progress.Every != 250*time.Millisecond || page.Progress.IntervalID != ProgressIntervalID {
		t.Fatalf("unexpected progress bar %+v", page.Progress)
	}

	var ids []string
	for _, row := range page.Rows {
		if len(row.Cards) != 2 {
			t.Fatalf("expected two cards per row, got %d", len(row.Cards))
		}
		for _, c := range row.Cards {
			ids = append(ids, c.ID)
		}
	}
	want := []string{"price-chart", "volume-chart", HeatmapID, HitmapID, ConfusionMatrixID, BarsID, TextareaID, MinibarsID}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("card order = %v, want %v", ids, want)
	}
}

func TestBuildPage_FigureCards(t *testing.T) {
	page := BuildPage(DefaultControls(0))
	for _, row := range page.Rows {
		for _, c := range row.Cards {
			switch c.ID {
			case "price-chart", "volume-chart":
				if c.Figure != nil {
					t.Fatalf("%s is filled by the engine, not the page", c.ID)
				}
				if c.DisplayModeBar {
					t.Fatalf("%s must hide the mode bar", c.ID)
				}
			case TextareaID:
				if c.Kind != CardTextarea || c.Text != "Here some text" {
					t.Fatalf("unexpected textarea card %+v", c)
				}
			default:
				if c.Figure == nil {
					t.Fatalf("%s has no figure", c.ID)
				}
				s, err := c.FigureJSON()
				if err != nil || !strings.HasPrefix(s, `{"data":[`) {
					t.Fatalf("%s: unexpected figure json %q (%v)", c.ID, s, err)
				}
			}
		}
	}
}
