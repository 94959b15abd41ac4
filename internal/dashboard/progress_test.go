package dashboard

import (
	"context"
	"fmt"
	"testing"
)

func TestProgressAt(t *testing.T) {
	cases := []struct {
		n         int
		wantValue int
		wantLabel string
	}{
		{n: 0, wantValue: 0, wantLabel: ""},
		{n: 4, wantValue: 4, wantLabel: ""},
		{n: 5, wantValue: 5, wantLabel: "5 %"},
		{n: 57, wantValue: 57, wantLabel: "57 %"},
		{n: 100, wantValue: 100, wantLabel: "100 %"},
		{n: 105, wantValue: 100, wantLabel: "100 %"},
		{n: 109, wantValue: 100, wantLabel: "100 %"},
		{n: 110, wantValue: 0, wantLabel: ""},
		{n: 115, wantValue: 5, wantLabel: "5 %"},
	}
	for _, tc := range cases {
		value, label := ProgressAt(tc.n)
		if value != tc.wantValue || label != tc.wantLabel {
			t.Fatalf("ProgressAt(%d) = (%d, %q), want (%d, %q)", tc.n, value, label, tc.wantValue, tc.wantLabel)
		}
	}
}

func TestProgressAtMatchesFormulaForAllTicks(t *testing.T) {
	for n := 0; n <= 1000; n++ {
		want := min(n%110, 100)
		wantLabel := ""
		if want >= 5 {
			wantLabel = fmt.Sprintf("%d %%", want)
		}
		value, label := ProgressAt(n)
		if value != want || label != wantLabel {
			t.Fatalf("ProgressAt(%d) = (%d, %q), want (%d, %q)", n, value, label, want, wantLabel)
		}
	}
}

func TestProgressBindingOutputs(t *testing.T) {
	b := ProgressBinding()
	out, err := b.Compute(context.Background(), Values{ProgressIntervalID: 42})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
	if out[0] != 42 || out[1] != "42 %" {
		t.Fatalf("expected (42, \"42 %%\"), got (%v, %v)", out[0], out[1])
	}
}
