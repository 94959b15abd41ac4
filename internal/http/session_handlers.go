package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"go-avocado-analytics-ui/internal/dashboard"
)

const maxEventBytes = 4 << 10

func createSessionHandler(reg *dashboard.Registry) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			w.Header().Set("Allow", nethttp.MethodPost)
			writeJSON(w, nethttp.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}

		sess, upd := reg.Create(r.Context())
		writeJSON(w, nethttp.StatusCreated, map[string]any{
			"meta": map[string]any{
				"session_id": sess.ID(),
				"created_at": sess.CreatedAt().UTC(),
			},
			"data": map[string]any{
				"controls": reg.Engine().Controls(),
				"values":   sess.Values(),
				"update":   upd,
			},
		})
	}
}

// sessionRouter serves /api/v1/sessions/{id} and its sub-resources.
func sessionRouter(reg *dashboard.Registry, ws nethttp.HandlerFunc) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/"), "/")
		parts := strings.Split(rest, "/")
		if rest == "" || len(parts) > 2 {
			writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "not found"})
			return
		}
		id := parts[0]
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch {
		case action == "" && r.Method == nethttp.MethodGet:
			sessionStateHandler(reg, id)(w, r)
		case action == "" && r.Method == nethttp.MethodDelete:
			deleteSessionHandler(reg, id)(w, r)
		case action == "events" && r.Method == nethttp.MethodPost:
			eventHandler(reg, id)(w, r)
		case action == "ws" && r.Method == nethttp.MethodGet:
			ws(w, r)
		case action == "export.xlsx" && r.Method == nethttp.MethodGet:
			exportHandler(reg, id)(w, r)
		case action == "" || action == "events" || action == "ws" || action == "export.xlsx":
			writeJSON(w, nethttp.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		default:
			writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "unknown session resource"})
		}
	}
}

func sessionStateHandler(reg *dashboard.Registry, id string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		sess, err := reg.Get(id)
		if err != nil {
			writeError(w, nethttp.StatusNotFound, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"session_id": sess.ID(),
				"created_at": sess.CreatedAt().UTC(),
				"last_seen":  sess.LastSeen().UTC(),
				"revision":   sess.Revision(),
			},
			"data": map[string]any{
				"values":  sess.Values(),
				"outputs": sess.Outputs(),
			},
		})
	}
}

func deleteSessionHandler(reg *dashboard.Registry, id string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if !reg.Delete(id) {
			writeError(w, nethttp.StatusNotFound, fmt.Errorf("%w: %s", dashboard.ErrSessionNotFound, id))
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

// eventHandler applies one control change and answers with the resulting
// update. Rejected events leave the session untouched.
func eventHandler(reg *dashboard.Registry, id string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sess, err := reg.Get(id)
		if err != nil {
			writeError(w, nethttp.StatusNotFound, err)
			return
		}

		ev, err := decodeEvent(io.LimitReader(r.Body, maxEventBytes))
		if err != nil {
			writeError(w, nethttp.StatusBadRequest, err)
			return
		}

		upd, err := sess.Apply(r.Context(), ev)
		if err != nil {
			code := nethttp.StatusInternalServerError
			if dashboard.IsValidationError(err) {
				code = nethttp.StatusBadRequest
			}
			writeJSON(w, code, map[string]any{"error": err.Error(), "control": ev.Control})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"data": upd})
	}
}

func decodeEvent(r io.Reader) (dashboard.Event, error) {
	var ev dashboard.Event
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		return dashboard.Event{}, fmt.Errorf("invalid event body: %w", err)
	}
	if ev.Control == "" {
		return dashboard.Event{}, errors.New("invalid event body: control is required")
	}
	return ev, nil
}

func controlsHandler(engine *dashboard.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		controls := engine.Controls()
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"count": len(controls)},
			"data": controls,
		})
	}
}

func bindingsHandler(engine *dashboard.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		bindings := engine.Bindings()
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"count": len(bindings)},
			"data": map[string]any{
				"bindings": bindings,
				"dispatch": engine.Dispatch(),
			},
		})
	}
}

// staticFigureHandler serves /api/v1/figures/{id} for the charts that do not
// depend on any control.
func staticFigureHandler() nethttp.HandlerFunc {
	figures := dashboard.StaticFigures()
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			writeJSON(w, nethttp.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/figures/"), "/")
		fig, ok := figures[id]
		if !ok {
			writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "unknown figure " + id})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"id": id},
			"data": fig,
		})
	}
}
