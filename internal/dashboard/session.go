package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a control change coming from the page or from a timer.
type Event struct {
	Control ControlID `json:"control"`
	Value   any       `json:"value"`
}

// Update is what the page receives after an engine pass. Revisions increase
// strictly within a session, so a client can drop updates older than the
// last one it applied.
type Update struct {
	SessionID string              `json:"session_id"`
	Revision  uint64              `json:"revision"`
	Trigger   ControlID           `json:"trigger,omitempty"`
	Value     any                 `json:"value,omitempty"`
	Outputs   map[OutputID]any    `json:"outputs"`
	Errors    map[OutputID]string `json:"errors,omitempty"`
}

// Session owns the control values of one page load. Events on a session are
// applied one at a time in arrival order.
type Session struct {
	id        string
	engine    *Engine
	createdAt time.Time
	lastSeen  atomic.Int64

	mu       sync.Mutex
	values   Values
	revision uint64
	outputs  map[OutputID]any

	done    chan struct{}
	endOnce sync.Once
	ticking atomic.Bool
}

func newSession(id string, engine *Engine, now time.Time) *Session {
	s := &Session{
		id:        id,
		engine:    engine,
		createdAt: now,
		values:    engine.Defaults(),
		outputs:   make(map[OutputID]any),
		done:      make(chan struct{}),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// Done is closed when the session is deleted or evicted.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) end() { s.endOnce.Do(func() { close(s.done) }) }

func (s *Session) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ClaimTicker reserves the right to drive the session's interval controls.
// Only one caller holds it at a time; it returns false if already taken.
func (s *Session) ClaimTicker() bool { return s.ticking.CompareAndSwap(false, true) }

func (s *Session) ReleaseTicker() { s.ticking.Store(false) }

// Values returns a copy of the current control values.
func (s *Session) Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.clone()
}

func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Outputs returns the latest successfully rendered value of every output.
func (s *Session) Outputs() map[OutputID]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[OutputID]any, len(s.outputs))
	for k, v := range s.outputs {
		if fig, ok := v.(Figure); ok {
			v = fig.Clone()
		}
		out[k] = v
	}
	return out
}

// Apply validates ev, stores the new value and runs the bindings reading it.
// Invalid events are rejected before any binding runs.
func (s *Session) Apply(ctx context.Context, ev Event) (Update, error) {
	v, err := s.engine.Validate(ev.Control, ev.Value)
	if err != nil {
		return Update{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended() {
		return Update{}, fmt.Errorf("%w: %s", ErrSessionNotFound, s.id)
	}
	s.values[ev.Control] = v
	return s.fireLocked(ctx, ev.Control, v), nil
}

// Tick advances interval control id by one.
func (s *Session) Tick(ctx context.Context, id ControlID) (Update, error) {
	c, ok := s.engine.Control(id)
	if !ok || c.Kind != KindInterval {
		return Update{}, fmt.Errorf("%w: %s is not an interval", ErrUnknownControl, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended() {
		return Update{}, fmt.Errorf("%w: %s", ErrSessionNotFound, s.id)
	}
	next := s.values.Int(id) + 1
	v, err := c.Normalize(next)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %s", ErrIntervalExhausted, id)
	}
	s.values[id] = v
	return s.fireLocked(ctx, id, v), nil
}

func (s *Session) initialize(ctx context.Context) Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.engine.FireAll(ctx, s.values)
	return s.commitLocked(res, nil)
}

func (s *Session) fireLocked(ctx context.Context, id ControlID, v any) Update {
	s.touch(time.Now())
	res := s.engine.Fire(ctx, id, s.values)
	return s.commitLocked(res, v)
}

func (s *Session) commitLocked(res Result, v any) Update {
	s.revision++
	upd := Update{
		SessionID: s.id,
		Revision:  s.revision,
		Trigger:   res.Trigger,
		Value:     v,
		Outputs:   res.Outputs,
	}
	for id, out := range res.Outputs {
		s.outputs[id] = out
	}
	if len(res.Errors) > 0 {
		upd.Errors = make(map[OutputID]string, len(res.Errors))
		for id, err := range res.Errors {
			upd.Errors[id] = err.Error()
		}
	}
	return upd
}

// Registry holds the live sessions of the server. Sessions share nothing but
// the engine, which is stateless.
type Registry struct {
	engine *Engine
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(engine *Engine, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		engine:   engine,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Engine() *Engine { return r.engine }

// Create starts a session with default control values and runs every
// binding once.
func (r *Registry) Create(ctx context.Context) (*Session, Update) {
	s := newSession(uuid.NewString(), r.engine, r.now())
	upd := s.initialize(ctx)

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.logger.Debug("session created", zap.String("session_id", s.id))
	return s, upd
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch(r.now())
	return s, nil
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.end()
		r.logger.Debug("session ended", zap.String("session_id", id))
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs lists the live session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Sweep removes sessions idle for longer than the ttl and returns how many
// were removed. A non-positive ttl disables eviction.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			s.end()
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("evicted idle sessions", zap.Int("count", removed), zap.Duration("ttl", r.ttl))
	}
	return removed
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrSessionNotFound) }
