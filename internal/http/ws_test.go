package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-avocado-analytics-ui/internal/dashboard"
)

type wsFrame struct {
	Revision uint64                     `json:"revision"`
	Trigger  string                     `json:"trigger"`
	Value    any                        `json:"value"`
	Outputs  map[string]json.RawMessage `json:"outputs"`
	Error    string                     `json:"error"`
	Control  string                     `json:"control"`
}

func dialSession(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected status %d, got %d", http.StatusSwitchingProtocols, resp.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until match accepts one, skipping timer updates.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsFrame) bool) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func TestWebSocket_StreamsEventsAndTicks(t *testing.T) {
	s := newTestServer(t, testConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id, _ := createSession(t, s.Handler())
	conn := dialSession(t, ts, id)

	tick := readUntil(t, conn, func(f wsFrame) bool { return f.Trigger == string(dashboard.ProgressIntervalID) })
	if _, ok := tick.Outputs[string(dashboard.ProgressValue)]; !ok {
		t.Fatalf("expected progress output in tick frame, got %v", tick.Outputs)
	}
	if _, ok := tick.Outputs[string(dashboard.PriceChart)]; ok {
		t.Fatalf("tick frame must not carry chart outputs")
	}

	if err := conn.WriteJSON(map[string]any{"control": "type-filter", "value": "Small"}); err != nil {
		t.Fatalf("write event: %v", err)
	}
	upd := readUntil(t, conn, func(f wsFrame) bool { return f.Trigger == string(dashboard.TypeFilterID) })
	if upd.Revision <= tick.Revision {
		t.Fatalf("expected revision above %d, got %d", tick.Revision, upd.Revision)
	}
	if len(upd.Outputs) != 2 {
		t.Fatalf("expected the two chart outputs, got %v", upd.Outputs)
	}

	sess, err := s.Registry().Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got := sess.Values()[dashboard.TypeFilterID]; got != "Small" {
		t.Fatalf("expected type Small, got %v", got)
	}
}

func TestWebSocket_RevisionsIncrease(t *testing.T) {
	s := newTestServer(t, testConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id, _ := createSession(t, s.Handler())
	conn := dialSession(t, ts, id)

	for _, region := range []string{"Barcelona", "Valencia", "Madrid"} {
		if err := conn.WriteJSON(map[string]any{"control": "region-filter", "value": region}); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}

	var last uint64
	seen := 0
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for seen < 3 {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Revision <= last {
			t.Fatalf("frames out of order: revision %d after %d", f.Revision, last)
		}
		last = f.Revision
		if f.Trigger == string(dashboard.RegionFilterID) {
			seen++
		}
	}
}

func TestWebSocket_RejectedEventSendsErrorFrame(t *testing.T) {
	s := newTestServer(t, testConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id, _ := createSession(t, s.Handler())
	conn := dialSession(t, ts, id)

	if err := conn.WriteJSON(map[string]any{"control": "region-filter", "value": "Lisbon"}); err != nil {
		t.Fatalf("write event: %v", err)
	}
	f := readUntil(t, conn, func(f wsFrame) bool { return f.Error != "" })
	if f.Control != string(dashboard.RegionFilterID) {
		t.Fatalf("expected control region-filter in error frame, got %q", f.Control)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	f = readUntil(t, conn, func(f wsFrame) bool { return f.Error != "" })
	if !strings.Contains(f.Error, "invalid event body") {
		t.Fatalf("expected decode error, got %q", f.Error)
	}

	sess, err := s.Registry().Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got := sess.Values()[dashboard.RegionFilterID]; got != "Madrid" {
		t.Fatalf("rejected events must not change values, got %v", got)
	}
}

func TestWebSocket_UnknownSessionIsNotUpgraded(t *testing.T) {
	s := newTestServer(t, testConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %v", http.StatusNotFound, resp)
	}
}

func TestWebSocket_DeleteEndsStream(t *testing.T) {
	s := newTestServer(t, testConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id, _ := createSession(t, s.Handler())
	conn := dialSession(t, ts, id)
	readUntil(t, conn, func(f wsFrame) bool { return f.Trigger == string(dashboard.ProgressIntervalID) })

	sess, err := s.Registry().Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if rr := do(t, s.Handler(), http.MethodDelete, "/api/v1/sessions/"+id, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	final := sess.Revision()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f wsFrame
		err := conn.ReadJSON(&f)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("expected going-away close, got %v", err)
			}
			break
		}
		if f.Revision > final {
			t.Fatalf("frame with revision %d sent after the session ended at %d", f.Revision, final)
		}
	}
	if got := sess.Revision(); got != final {
		t.Fatalf("deleted session kept advancing: revision %d, ended at %d", got, final)
	}
}

func TestWebSocket_OneTimerPerSession(t *testing.T) {
	s := newTestServer(t, testConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id, _ := createSession(t, s.Handler())
	first := dialSession(t, ts, id)
	readUntil(t, first, func(f wsFrame) bool { return f.Trigger == string(dashboard.ProgressIntervalID) })

	second := dialSession(t, ts, id)

	var last float64
	for i := 0; i < 5; i++ {
		f := readUntil(t, first, func(f wsFrame) bool { return f.Trigger == string(dashboard.ProgressIntervalID) })
		n, ok := f.Value.(float64)
		if !ok {
			t.Fatalf("expected numeric tick value, got %v", f.Value)
		}
		if last != 0 && n != last+1 {
			t.Fatalf("ticks skipped from %v to %v: session timer runs more than once", last, n)
		}
		last = n
	}

	_ = second.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var f wsFrame
	if err := second.ReadJSON(&f); err == nil {
		t.Fatalf("second stream received an unsolicited frame: %+v", f)
	}
}
