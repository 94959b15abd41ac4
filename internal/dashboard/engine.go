package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "go-avocado-analytics-ui/internal/dashboard"

// RunObserver is notified after every binding run with status "ok" or "error".
type RunObserver func(binding, status string, elapsed time.Duration)

// Engine dispatches control changes to the bindings that read them. The
// binding table is resolved once into a dispatch table keyed by control id;
// the engine holds no per-session state.
type Engine struct {
	controls []ControlSpec
	byID     map[ControlID]int
	bindings []Binding
	dispatch map[ControlID][]int

	logger   *zap.Logger
	tracer   trace.Tracer
	observer RunObserver
}

type EngineOption func(*Engine)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(fn RunObserver) EngineOption {
	return func(e *Engine) { e.observer = fn }
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine validates the controls and bindings and resolves the dispatch
// table. Every output may be written by at most one binding.
func NewEngine(controls []ControlSpec, bindings []Binding, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		byID:     make(map[ControlID]int, len(controls)),
		dispatch: make(map[ControlID][]int),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}

	for i, c := range controls {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: control %d has no id", ErrInvalidBinding, i)
		}
		if _, dup := e.byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate control %s", ErrInvalidBinding, c.ID)
		}
		if _, err := c.Normalize(c.Default); err != nil {
			return nil, fmt.Errorf("control %s default: %w", c.ID, err)
		}
		e.byID[c.ID] = len(e.controls)
		e.controls = append(e.controls, c)
	}

	owners := make(map[OutputID]string)
	for i, b := range bindings {
		if b.Name == "" || b.Compute == nil || len(b.Inputs) == 0 || len(b.Outputs) == 0 {
			return nil, fmt.Errorf("%w: binding %d (%q) needs a name, inputs, outputs and a compute func", ErrInvalidBinding, i, b.Name)
		}
		for _, out := range b.Outputs {
			if owner, taken := owners[out]; taken {
				return nil, fmt.Errorf("%w: %s is written by %s and %s", ErrConflictingOutput, out, owner, b.Name)
			}
			owners[out] = b.Name
		}
		seen := make(map[ControlID]bool, len(b.Inputs))
		for _, in := range b.Inputs {
			if _, ok := e.byID[in]; !ok {
				return nil, fmt.Errorf("%w: binding %s reads %s", ErrUnknownControl, b.Name, in)
			}
			if seen[in] {
				continue
			}
			seen[in] = true
			e.dispatch[in] = append(e.dispatch[in], len(e.bindings))
		}
		e.bindings = append(e.bindings, b)
	}
	return e, nil
}

// Controls returns the declared controls in declaration order.
func (e *Engine) Controls() []ControlSpec {
	out := make([]ControlSpec, len(e.controls))
	copy(out, e.controls)
	return out
}

func (e *Engine) Control(id ControlID) (ControlSpec, bool) {
	i, ok := e.byID[id]
	if !ok {
		return ControlSpec{}, false
	}
	return e.controls[i], true
}

// Validate checks a value for control id before any binding sees it.
func (e *Engine) Validate(id ControlID, v any) (any, error) {
	c, ok := e.Control(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownControl, id)
	}
	return c.Normalize(v)
}

// Defaults returns the initial value of every control.
func (e *Engine) Defaults() Values {
	out := make(Values, len(e.controls))
	for _, c := range e.controls {
		v, _ := c.Normalize(c.Default)
		out[c.ID] = v
	}
	return out
}

// Bindings describes the binding table.
func (e *Engine) Bindings() []BindingInfo {
	out := make([]BindingInfo, 0, len(e.bindings))
	for _, b := range e.bindings {
		out = append(out, BindingInfo{
			Name:    b.Name,
			Inputs:  cloneSlice(b.Inputs),
			Outputs: cloneSlice(b.Outputs),
		})
	}
	return out
}

// Dispatch returns, per control, the names of the bindings it triggers.
func (e *Engine) Dispatch() map[ControlID][]string {
	out := make(map[ControlID][]string, len(e.dispatch))
	for id, idx := range e.dispatch {
		names := make([]string, 0, len(idx))
		for _, i := range idx {
			names = append(names, e.bindings[i].Name)
		}
		out[id] = names
	}
	return out
}

// Result is the outcome of one engine pass.
type Result struct {
	Trigger ControlID
	Outputs map[OutputID]any
	Errors  map[OutputID]error
	Ran     []string
}

// Fire runs the bindings that read changed, in declaration order.
func (e *Engine) Fire(ctx context.Context, changed ControlID, values Values) Result {
	return e.runAll(ctx, changed, e.dispatch[changed], values)
}

// FireAll runs every binding once, as on page load.
func (e *Engine) FireAll(ctx context.Context, values Values) Result {
	idx := make([]int, len(e.bindings))
	for i := range idx {
		idx[i] = i
	}
	return e.runAll(ctx, "", idx, values)
}

func (e *Engine) runAll(ctx context.Context, trigger ControlID, idx []int, values Values) Result {
	res := Result{
		Trigger: trigger,
		Outputs: make(map[OutputID]any),
		Errors:  make(map[OutputID]error),
	}
	for _, i := range idx {
		b := &e.bindings[i]
		res.Ran = append(res.Ran, b.Name)

		out, err := e.run(ctx, b, trigger, values.subset(b.Inputs))
		if err != nil {
			bindErr := &BindingError{Binding: b.Name, Trigger: trigger, Err: err}
			e.logger.Error("binding failed",
				zap.String("binding", b.Name),
				zap.String("trigger", string(trigger)),
				zap.Error(err))
			for _, id := range b.Outputs {
				res.Errors[id] = bindErr
			}
			continue
		}
		for j, id := range b.Outputs {
			res.Outputs[id] = out[j]
		}
	}
	return res
}

func (e *Engine) run(ctx context.Context, b *Binding, trigger ControlID, in Values) (out []any, err error) {
	ctx, span := e.tracer.Start(ctx, "binding "+b.Name, trace.WithAttributes(
		attribute.String("dashboard.binding", b.Name),
		attribute.String("dashboard.trigger", string(trigger)),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBindingPanic, r)
			out = nil
		}
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if e.observer != nil {
			e.observer(b.Name, status, time.Since(start))
		}
	}()

	out, err = b.Compute(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(out) != len(b.Outputs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrOutputArity, len(out), len(b.Outputs))
	}
	return out, nil
}

// IsValidationError reports whether err is a rejected control change rather
// than a failure inside a binding.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnknownControl) || errors.Is(err, ErrInvalidValue) || errors.Is(err, ErrIntervalExhausted)
}
