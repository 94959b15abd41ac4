package http

import (
	"bytes"
	"fmt"
	"html/template"
	nethttp "net/http"

	"go-avocado-analytics-ui/internal/dashboard"
)

const plotlyURL = "https://cdn.plot.ly/plotly-2.35.2.min.js"

type pageData struct {
	dashboard.Page
	PlotlyURL string
	Client    clientConfig
}

// clientConfig is handed to the page script as JSON.
type clientConfig struct {
	SessionsURL string              `json:"sessions_url"`
	ProgressID  string              `json:"progress_id"`
	IntervalID  dashboard.ControlID `json:"interval_id"`
	EveryMS     int64               `json:"every_ms"`
}

// pageRenderer serves the dashboard shell. Outside debug mode the page is
// rendered once and served from memory.
type pageRenderer struct {
	tmpl  *template.Template
	data  pageData
	debug bool
	body  []byte
}

func newPageRenderer(page dashboard.Page, debug bool) (*pageRenderer, error) {
	tmpl, err := template.New("dashboard").Parse(dashboardTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}
	p := &pageRenderer{
		tmpl:  tmpl,
		debug: debug,
		data: pageData{
			Page:      page,
			PlotlyURL: plotlyURL,
			Client: clientConfig{
				SessionsURL: "/api/v1/sessions",
				ProgressID:  page.Progress.ID,
				IntervalID:  page.Progress.IntervalID,
				EveryMS:     page.Progress.Every.Milliseconds(),
			},
		},
	}
	body, err := p.render()
	if err != nil {
		return nil, err
	}
	p.body = body
	return p, nil
}

func (p *pageRenderer) render() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, p.data); err != nil {
		return nil, fmt.Errorf("render dashboard: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *pageRenderer) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.URL.Path != "/" {
		nethttp.NotFound(w, r)
		return
	}

	body := p.body
	if p.debug {
		rendered, err := p.render()
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, err)
			return
		}
		body = rendered
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=60")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write(body)
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

const dashboardTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  {{- range .Stylesheets}}
  <link rel="{{.Rel}}" href="{{.Href}}" />
  {{- end}}
  <style>
    body {
      margin: 0;
      background-color: #F7F7F7;
      font-family: "Lato", sans-serif;
    }

    .header {
      background-color: #222222;
      height: 256px;
      display: flex;
      flex-direction: column;
      justify-content: center;
    }

    .header-emoji {
      font-size: 48px;
      margin: 0 auto;
      text-align: center;
    }

    .header-title {
      color: #FFFFFF;
      font-size: 48px;
      font-weight: bold;
      text-align: center;
      margin: 0 auto;
    }

    .header-description {
      color: #CFCFCF;
      margin: 4px auto;
      text-align: center;
      max-width: 384px;
    }

    .menu {
      height: 112px;
      width: 912px;
      display: flex;
      justify-content: space-evenly;
      padding-top: 24px;
      margin: -80px auto 0 auto;
      background-color: #FFFFFF;
      box-shadow: 0 4px 6px 0 rgba(0, 0, 0, 0.18);
    }

    .menu-title {
      margin-bottom: 6px;
      font-weight: bold;
      color: #079A82;
    }

    .dropdown { width: 12em; }

    .wrapper {
      margin-right: auto;
      margin-left: auto;
      max-width: 1024px;
      padding-right: 10px;
      padding-left: 10px;
      margin-top: 32px;
    }

    .card {
      margin-bottom: 24px;
      box-shadow: 0 4px 6px 0 rgba(0, 0, 0, 0.18);
    }

    .card.card-error { outline: 2px solid #E12D39; }

    .graph { min-height: 420px; }

    .progress-wrapper {
      max-width: 1024px;
      margin: 0 auto 32px auto;
      padding: 0 10px;
    }
  </style>
</head>
<body>
  <div class="header">
    <p class="header-emoji">{{.Header.Emoji}}</p>
    <h1 class="header-title">{{.Header.Title}}</h1>
    <p class="header-description">{{.Header.Description}}</p>
  </div>

  <div class="menu">
    {{- range .Filters}}
    {{- $default := .Default}}
    <div>
      <div class="menu-title">{{.Title}}</div>
      <select id="{{.Control.ID}}" class="dropdown custom-select" data-control="{{.Control.ID}}"{{if .Control.Searchable}} data-searchable="true"{{end}}>
        {{- range .Control.Options}}
        <option value="{{.Value}}"{{if eq .Value $default}} selected{{end}}>{{.Label}}</option>
        {{- end}}
      </select>
    </div>
    {{- end}}
  </div>

  {{- range .Rows}}
  <div class="wrapper">
    <div class="row">
      {{- range .Cards}}
      <div class="col">
        <div class="card" data-card="{{.ID}}">
          {{- if eq .Kind "textarea"}}
          <textarea id="{{.ID}}" style="width: {{.Width}}; height: {{.Height}};">{{.Text}}</textarea>
          {{- else}}
          <div id="{{.ID}}" class="graph" data-modebar="{{.DisplayModeBar}}"{{with .FigureJSON}} data-figure="{{.}}"{{end}}></div>
          {{- end}}
        </div>
      </div>
      {{- end}}
    </div>
  </div>
  {{- end}}

  <div class="progress-wrapper">
    <div class="progress" data-interval="{{.Progress.IntervalID}}">
      <div id="{{.Progress.ID}}" class="progress-bar" role="progressbar" style="width: 0%" aria-valuenow="0" aria-valuemin="0" aria-valuemax="100"></div>
    </div>
  </div>

  <script src="{{.PlotlyURL}}"></script>
  <script>
    const cfg = {{.Client}};
    const q = (s) => document.querySelector(s);
    const qq = (s) => Array.from(document.querySelectorAll(s));
    const state = { session: null, ws: null, ticks: 0, revs: {}, timer: null };

    async function getJSON(url, opts) {
      const r = await fetch(url, opts);
      const body = await r.json().catch(() => ({}));
      if (!r.ok) throw new Error(body.error || (url + " -> " + r.status));
      return body;
    }

    function drawFigure(el, fig) {
      if (!el || !fig || typeof Plotly === "undefined") return;
      const layout = Object.assign({ autosize: true }, fig.layout || {});
      Plotly.react(el, fig.data || [], layout, { displayModeBar: el.dataset.modebar === "true", responsive: true });
    }

    function cardOf(id) {
      return q('[data-card="' + id + '"]');
    }

    function renderOutput(outputId, value) {
      const i = outputId.lastIndexOf(".");
      const comp = outputId.slice(0, i);
      const prop = outputId.slice(i + 1);
      const el = document.getElementById(comp);
      if (!el) return;
      const card = cardOf(comp);
      if (card) card.classList.remove("card-error");

      if (prop === "figure") {
        drawFigure(el, value);
      } else if (prop === "value") {
        el.style.width = value + "%";
        el.setAttribute("aria-valuenow", String(value));
      } else if (prop === "children") {
        el.textContent = value;
      }
    }

    function markError(outputId, msg) {
      const comp = outputId.slice(0, outputId.lastIndexOf("."));
      const card = cardOf(comp);
      if (card) {
        card.classList.add("card-error");
        card.title = msg;
      }
      console.warn(outputId + ": " + msg);
    }

    // Outputs only move forward: a late update never overwrites a newer one.
    function applyUpdate(u) {
      if (!u) return;
      for (const [id, v] of Object.entries(u.outputs || {})) {
        if ((state.revs[id] || 0) >= u.revision) continue;
        state.revs[id] = u.revision;
        renderOutput(id, v);
      }
      for (const [id, msg] of Object.entries(u.errors || {})) {
        markError(id, msg);
      }
      if (u.trigger === cfg.interval_id && Number.isFinite(u.value)) {
        state.ticks = Math.max(state.ticks, u.value);
      }
    }

    function sessionURL(suffix) {
      return cfg.sessions_url + "/" + encodeURIComponent(state.session) + (suffix || "");
    }

    async function sendEvent(control, value) {
      if (!state.session) return;
      if (state.ws && state.ws.readyState === WebSocket.OPEN) {
        state.ws.send(JSON.stringify({ control: control, value: value }));
        return;
      }
      try {
        const res = await getJSON(sessionURL("/events"), {
          method: "POST",
          headers: { "Content-Type": "application/json" },
          body: JSON.stringify({ control: control, value: value }),
        });
        applyUpdate(res.data);
      } catch (err) {
        console.warn("event " + control + " rejected: " + err.message);
      }
    }

    function startFallbackTimer() {
      if (state.timer || cfg.every_ms <= 0) return;
      state.timer = setInterval(() => sendEvent(cfg.interval_id, state.ticks + 1), cfg.every_ms);
    }

    function stopFallbackTimer() {
      if (!state.timer) return;
      clearInterval(state.timer);
      state.timer = null;
    }

    function connect() {
      if (!("WebSocket" in window)) {
        startFallbackTimer();
        return;
      }
      const proto = location.protocol === "https:" ? "wss://" : "ws://";
      const ws = new WebSocket(proto + location.host + sessionURL("/ws"));
      ws.onopen = () => {
        state.ws = ws;
        stopFallbackTimer();
      };
      ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        if (msg.error) {
          console.warn("event " + (msg.control || "") + " rejected: " + msg.error);
          return;
        }
        applyUpdate(msg);
      };
      ws.onclose = () => {
        state.ws = null;
        startFallbackTimer();
      };
    }

    async function init() {
      qq("[data-figure]").forEach((el) => drawFigure(el, JSON.parse(el.dataset.figure)));

      const res = await getJSON(cfg.sessions_url, { method: "POST" });
      state.session = res.meta.session_id;
      applyUpdate(res.data.update);

      qq("select[data-control]").forEach((el) => {
        el.addEventListener("change", () => sendEvent(el.dataset.control, el.value));
      });
      connect();
    }

    window.addEventListener("pagehide", () => {
      if (!state.session) return;
      fetch(sessionURL(""), { method: "DELETE", keepalive: true });
    });

    init().catch((err) => console.error("dashboard init failed: " + err.message));
  </script>
</body>
</html>
`
