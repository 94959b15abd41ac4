package dashboard

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := New(MockSource{}, 10*time.Millisecond, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestNewEngine_RejectsConflictingWriters(t *testing.T) {
	noop := func(context.Context, Values) ([]any, error) { return []any{1}, nil }
	_, err := NewEngine(DefaultControls(0), []Binding{
		{Name: "a", Inputs: []ControlID{RegionFilterID}, Outputs: []OutputID{"chart.figure"}, Compute: noop},
		{Name: "b", Inputs: []ControlID{TypeFilterID}, Outputs: []OutputID{"chart.figure"}, Compute: noop},
	})
	if !errors.Is(err, ErrConflictingOutput) {
		t.Fatalf("expected ErrConflictingOutput, got %v", err)
	}
}

func TestNewEngine_RejectsUnknownInput(t *testing.T) {
	noop := func(context.Context, Values) ([]any, error) { return []any{1}, nil }
	_, err := NewEngine(DefaultControls(0), []Binding{
		{Name: "a", Inputs: []ControlID{"missing"}, Outputs: []OutputID{"x.y"}, Compute: noop},
	})
	if !errors.Is(err, ErrUnknownControl) {
		t.Fatalf("expected ErrUnknownControl, got %v", err)
	}
}

func TestNewEngine_RejectsIncompleteBinding(t *testing.T) {
	_, err := NewEngine(DefaultControls(0), []Binding{
		{Name: "a", Inputs: []ControlID{RegionFilterID}, Outputs: []OutputID{"x.y"}},
	})
	if !errors.Is(err, ErrInvalidBinding) {
		t.Fatalf("expected ErrInvalidBinding, got %v", err)
	}
}

func TestEngineDispatchTable(t *testing.T) {
	e := newTestEngine(t)
	got := e.Dispatch()
	want := map[ControlID][]string{
		ProgressIntervalID: {"update_progress"},
		RegionFilterID:     {"update_charts"},
		TypeFilterID:       {"update_charts"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dispatch = %v, want %v", got, want)
	}
}

func TestEngineFire_RegionChangeDoesNotTouchProgress(t *testing.T) {
	e := newTestEngine(t)
	values := e.Defaults()
	values[RegionFilterID] = "Valencia"

	res := e.Fire(context.Background(), RegionFilterID, values)
	if !reflect.DeepEqual(res.Ran, []string{"update_charts"}) {
		t.Fatalf("expected only update_charts to run, got %v", res.Ran)
	}
	if _, ok := res.Outputs[ProgressValue]; ok {
		t.Fatalf("progress value must not be emitted on a region change")
	}
	if _, ok := res.Outputs[ProgressLabel]; ok {
		t.Fatalf("progress label must not be emitted on a region change")
	}
	if _, ok := res.Outputs[PriceChart]; !ok {
		t.Fatalf("expected price chart output")
	}
	if _, ok := res.Outputs[VolumeChart]; !ok {
		t.Fatalf("expected volume chart output")
	}
}

func TestEngineFire_TickDoesNotTouchCharts(t *testing.T) {
	e := newTestEngine(t)
	values := e.Defaults()
	values[ProgressIntervalID] = 7

	res := e.Fire(context.Background(), ProgressIntervalID, values)
	if !reflect.DeepEqual(res.Ran, []string{"update_progress"}) {
		t.Fatalf("expected only update_progress to run, got %v", res.Ran)
	}
	if len(res.Outputs) != 2 {
		t.Fatalf("expected exactly the two progress outputs, got %v", res.Outputs)
	}
	if res.Outputs[ProgressValue] != 7 || res.Outputs[ProgressLabel] != "7 %" {
		t.Fatalf("unexpected progress outputs: %v", res.Outputs)
	}
}

func TestEngineFire_BindingSeesOnlyDeclaredInputs(t *testing.T) {
	var seen Values
	controls := DefaultControls(0)
	e, err := NewEngine(controls, []Binding{{
		Name:    "spy",
		Inputs:  []ControlID{TypeFilterID},
		Outputs: []OutputID{"spy.children"},
		Compute: func(_ context.Context, in Values) ([]any, error) {
			seen = in
			return []any{in.String(TypeFilterID)}, nil
		},
	}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.Fire(context.Background(), TypeFilterID, e.Defaults())
	if !reflect.DeepEqual(seen, Values{TypeFilterID: "Big"}) {
		t.Fatalf("binding saw %v", seen)
	}
}

func TestEngineFire_FailureIsIsolatedToItsOutputs(t *testing.T) {
	var mu sync.Mutex
	statuses := map[string]string{}
	observer := func(binding, status string, _ time.Duration) {
		mu.Lock()
		statuses[binding] = status
		mu.Unlock()
	}
	controls := DefaultControls(0)
	e, err := NewEngine(controls, []Binding{
		{
			Name:    "boom",
			Inputs:  []ControlID{RegionFilterID},
			Outputs: []OutputID{"broken.figure"},
			Compute: func(context.Context, Values) ([]any, error) { panic("bad data") },
		},
		{
			Name:    "fine",
			Inputs:  []ControlID{RegionFilterID},
			Outputs: []OutputID{"fine.children"},
			Compute: func(_ context.Context, in Values) ([]any, error) { return []any{in.String(RegionFilterID)}, nil },
		},
	}, WithObserver(observer))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res := e.Fire(context.Background(), RegionFilterID, e.Defaults())

	if got := res.Outputs["fine.children"]; got != "Madrid" {
		t.Fatalf("expected healthy binding output, got %v", got)
	}
	if _, ok := res.Outputs["broken.figure"]; ok {
		t.Fatalf("failed binding must not emit an output")
	}
	var bindErr *BindingError
	if !errors.As(res.Errors["broken.figure"], &bindErr) {
		t.Fatalf("expected BindingError, got %v", res.Errors["broken.figure"])
	}
	if !errors.Is(bindErr, ErrBindingPanic) || bindErr.Binding != "boom" {
		t.Fatalf("unexpected binding error: %v", bindErr)
	}
	if statuses["boom"] != "error" || statuses["fine"] != "ok" {
		t.Fatalf("unexpected observed statuses: %v", statuses)
	}
}

func TestEngineFire_WrongArityIsABindingError(t *testing.T) {
	e, err := NewEngine(DefaultControls(0), []Binding{{
		Name:    "short",
		Inputs:  []ControlID{TypeFilterID},
		Outputs: []OutputID{"a.children", "b.children"},
		Compute: func(context.Context, Values) ([]any, error) { return []any{"only one"}, nil },
	}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	res := e.Fire(context.Background(), TypeFilterID, e.Defaults())
	if !errors.Is(res.Errors["a.children"], ErrOutputArity) || !errors.Is(res.Errors["b.children"], ErrOutputArity) {
		t.Fatalf("expected arity errors on both outputs, got %v", res.Errors)
	}
}

func TestEngineFireAll_RunsEveryBinding(t *testing.T) {
	e := newTestEngine(t)
	res := e.FireAll(context.Background(), e.Defaults())
	if !reflect.DeepEqual(res.Ran, []string{"update_progress", "update_charts"}) {
		t.Fatalf("unexpected bindings run: %v", res.Ran)
	}
	if len(res.Outputs) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(res.Outputs))
	}
}

func TestEngineValidate(t *testing.T) {
	e := newTestEngine(t)
	cases := []struct {
		name    string
		control ControlID
		value   any
		wantErr error
	}{
		{name: "known region", control: RegionFilterID, value: "Barcelona"},
		{name: "unknown region", control: RegionFilterID, value: "Lisbon", wantErr: ErrInvalidValue},
		{name: "region not a string", control: RegionFilterID, value: 3.0, wantErr: ErrInvalidValue},
		{name: "type option", control: TypeFilterID, value: "Small"},
		{name: "type lowercase", control: TypeFilterID, value: "small", wantErr: ErrInvalidValue},
		{name: "tick from json", control: ProgressIntervalID, value: 12.0},
		{name: "negative tick", control: ProgressIntervalID, value: -1.0, wantErr: ErrInvalidValue},
		{name: "fractional tick", control: ProgressIntervalID, value: 1.5, wantErr: ErrInvalidValue},
		{name: "unknown control", control: "textarea-example", value: "x", wantErr: ErrUnknownControl},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Validate(tc.control, tc.value)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if err != nil && !IsValidationError(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestBindingErrorMessage(t *testing.T) {
	err := &BindingError{Binding: "update_charts", Trigger: RegionFilterID, Err: errors.New("db down")}
	if !strings.Contains(err.Error(), "update_charts") || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
