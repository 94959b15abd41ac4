package dashboard

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestFigureJSONRoundTrip(t *testing.T) {
	figures := StaticFigures()
	figures["price"] = PriceFigure(mockSeries())
	figures["volume"] = VolumeFigure(mockSeries())

	for name, fig := range figures {
		t.Run(name, func(t *testing.T) {
			b, err := json.Marshal(fig)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var got Figure
			if err := json.Unmarshal(b, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !reflect.DeepEqual(got, fig) {
				t.Fatalf("round trip changed the figure:\n got %+v\nwant %+v", got, fig)
			}
		})
	}
}

func TestDatumKeepsItsKind(t *testing.T) {
	in := []Datum{Num(1), Num(2.5), Str("1"), Str("Monday")}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `[1,2.5,"1","Monday"]` {
		t.Fatalf("unexpected encoding: %s", b)
	}
	var out []Datum
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("got %v, want %v", out, in)
	}
	if out[2].IsString() != true || out[0].IsString() {
		t.Fatalf("datum kinds lost: %+v", out)
	}
}

func TestDatumRejectsObjects(t *testing.T) {
	var d Datum
	if err := json.Unmarshal([]byte(`{"x":1}`), &d); err == nil {
		t.Fatalf("expected an error for an object datum")
	}
}

func TestDatumRejectsNull(t *testing.T) {
	var d Datum
	if err := json.Unmarshal([]byte(`null`), &d); err == nil {
		t.Fatalf("expected an error for a null datum, got %v", d)
	}

	var tr Trace
	if err := json.Unmarshal([]byte(`{"type":"scatter","x":[1,null,3],"y":[1,2,3]}`), &tr); err == nil {
		t.Fatalf("expected an error for a gapped x array, got %v", tr.X)
	}
}

func TestHeatmapKeepsGapAsNull(t *testing.T) {
	b, err := json.Marshal(HeatmapFigure())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"z":[[1,null,30,50,1]`) {
		t.Fatalf("expected a null gap in the first row, got %s", s)
	}
	if !strings.Contains(s, `"hoverongaps":false`) {
		t.Fatalf("expected hoverongaps false, got %s", s)
	}
}

func TestColorStopEncoding(t *testing.T) {
	b, err := json.Marshal([]ColorStop{{0, "white"}, {1, "blue"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `[[0,"white"],[1,"blue"]]` {
		t.Fatalf("unexpected encoding: %s", b)
	}
}

func TestFigureCloneIsIndependent(t *testing.T) {
	orig := ConfusionMatrixFigure()
	c := orig.Clone()

	*c.Data[0].Z[0][0] = 42
	c.Data[0].X[0] = Str("changed")
	c.Layout.Annotations[0].Font.Color = "red"
	c.Layout.XAxis.Side = "bottom"

	if *orig.Data[0].Z[0][0] != .1 {
		t.Fatalf("clone shares z cells")
	}
	if orig.Data[0].X[0] != Str("a") {
		t.Fatalf("clone shares x")
	}
	if orig.Layout.Annotations[0].Font.Color == "red" {
		t.Fatalf("clone shares annotation fonts")
	}
	if orig.Layout.XAxis.Side != "top" {
		t.Fatalf("clone shares axes")
	}
}

func TestConfusionMatrixAnnotations(t *testing.T) {
	fig := ConfusionMatrixFigure()
	ann := fig.Layout.Annotations
	if len(ann) != 16 {
		t.Fatalf("expected one annotation per cell, got %d", len(ann))
	}
	// Row "b", column "a" holds the maximum.
	top := ann[4]
	if top.Text != "1.0" || top.X != Str("a") || top.Y != Str("b") || top.Font.Color != "black" {
		t.Fatalf("unexpected annotation for the maximum: %+v", top)
	}
	first := ann[0]
	if first.Text != "0.1" || first.Font.Color != "white" {
		t.Fatalf("unexpected annotation for 0.1: %+v", first)
	}
	if fig.Data[0].ShowScale == nil || *fig.Data[0].ShowScale {
		t.Fatalf("expected the color scale to be hidden")
	}
}

func TestOutputIDParts(t *testing.T) {
	id := Output("price-chart", "figure")
	if id != PriceChart || id.Component() != "price-chart" || id.Property() != "figure" {
		t.Fatalf("unexpected output id parts: %q %q %q", id, id.Component(), id.Property())
	}
}
