package http

import (
	"bytes"
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-avocado-analytics-ui/internal/dashboard"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsFrameError is sent in place of an update when an event is rejected.
type wsFrameError struct {
	Error   string              `json:"error"`
	Control dashboard.ControlID `json:"control,omitempty"`
}

// wsHandler upgrades /api/v1/sessions/{id}/ws and streams the session's
// updates: one per accepted event and one per timer tick.
func (s *Server) wsHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/"), "/", 2)[0]
	sess, err := s.registry.Get(id)
	if err != nil {
		writeError(w, nethttp.StatusNotFound, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}

	wsConnOpened()
	defer wsConnClosed()
	s.logger.Debug("websocket connected", zap.String("session_id", id), zap.String("remote_addr", r.RemoteAddr))

	st := &sessionStream{
		conn:   conn,
		sess:   sess,
		engine: s.registry.Engine(),
		logger: s.logger.With(zap.String("session_id", id)),
		out:    make(chan any, wsSendBuffer),
	}
	st.run(s.baseCtx)
	s.logger.Debug("websocket closed", zap.String("session_id", id))
}

type sessionStream struct {
	conn   *websocket.Conn
	sess   *dashboard.Session
	engine *dashboard.Engine
	logger *zap.Logger
	out    chan any

	// emitMu keeps frames in revision order across the reader and the
	// timers.
	emitMu sync.Mutex
}

func (st *sessionStream) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer st.conn.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		st.readLoop(ctx)
	}()

	// A session has one clock: later streams of the same session only relay
	// events.
	ticking := st.sess.ClaimTicker()
	if ticking {
		for _, c := range st.engine.Controls() {
			if c.Kind != dashboard.KindInterval || c.Every <= 0 {
				continue
			}
			wg.Add(1)
			go func(c dashboard.ControlSpec) {
				defer wg.Done()
				st.tickLoop(ctx, c)
			}(c)
		}
	} else {
		st.logger.Debug("session timer already driven by another stream")
	}

	st.writeLoop(ctx)
	cancel()
	_ = st.conn.Close()
	wg.Wait()
	if ticking {
		st.sess.ReleaseTicker()
	}
}

func (st *sessionStream) readLoop(ctx context.Context) {
	st.conn.SetReadLimit(maxEventBytes)
	_ = st.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				st.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = st.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		ev, err := decodeEvent(bytes.NewReader(data))
		if err != nil {
			st.send(ctx, wsFrameError{Error: err.Error()})
			continue
		}

		st.emitMu.Lock()
		upd, err := st.sess.Apply(ctx, ev)
		if err != nil {
			st.sendLocked(ctx, wsFrameError{Error: err.Error(), Control: ev.Control})
		} else {
			st.sendLocked(ctx, upd)
		}
		st.emitMu.Unlock()
	}
}

// tickLoop advances the interval control c every c.Every until the session
// stream ends or the control runs out of ticks.
func (st *sessionStream) tickLoop(ctx context.Context, c dashboard.ControlSpec) {
	ticker := time.NewTicker(c.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-st.sess.Done():
			return
		case <-ticker.C:
			st.emitMu.Lock()
			upd, err := st.sess.Tick(ctx, c.ID)
			if err == nil {
				st.sendLocked(ctx, upd)
			}
			st.emitMu.Unlock()
			if dashboard.IsNotFound(err) {
				return
			}
			if errors.Is(err, dashboard.ErrIntervalExhausted) {
				st.logger.Debug("interval exhausted", zap.String("control", string(c.ID)))
				return
			}
			if err != nil {
				st.logger.Warn("tick failed", zap.String("control", string(c.ID)), zap.Error(err))
				return
			}
		}
	}
}

func (st *sessionStream) writeLoop(ctx context.Context) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-st.sess.Done():
			st.close("session ended")
			return
		default:
		}

		select {
		case <-ctx.Done():
			st.close("server closing")
			return
		case <-st.sess.Done():
			st.close("session ended")
			return
		case msg := <-st.out:
			_ = st.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := st.conn.WriteJSON(msg); err != nil {
				st.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = st.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				st.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (st *sessionStream) close(reason string) {
	_ = st.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
		time.Now().Add(wsWriteWait))
}

func (st *sessionStream) send(ctx context.Context, msg any) {
	st.emitMu.Lock()
	defer st.emitMu.Unlock()
	st.sendLocked(ctx, msg)
}

func (st *sessionStream) sendLocked(ctx context.Context, msg any) {
	select {
	case st.out <- msg:
	case <-ctx.Done():
	}
}
