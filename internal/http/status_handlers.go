package http

import (
	"context"
	nethttp "net/http"
	"time"

	"go-avocado-analytics-ui/internal/connectors/seriesdb"
	"go-avocado-analytics-ui/internal/dashboard"
)

func servicesStatusHandler(source dashboard.SeriesSource, store *seriesdb.Store, reg *dashboard.Registry) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
		defer cancel()

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"generated_at": time.Now().UTC(),
			"services": map[string]any{
				"series_source": seriesSourceStatus(ctx, source, store),
				"sessions": map[string]any{
					"enabled": true,
					"ok":      true,
					"stats": map[string]any{
						"active":                reg.Len(),
						"websocket_connections": currentWSConnections(),
					},
				},
			},
		})
	}
}

func seriesSourceStatus(ctx context.Context, source dashboard.SeriesSource, store *seriesdb.Store) map[string]any {
	if store == nil {
		return map[string]any{"enabled": true, "ok": true, "source": source.Name(), "database": false}
	}

	start := time.Now()
	stats, err := store.ServiceStats(ctx)
	recordSeriesQuery(store.Name(), "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "source": source.Name(), "database": true, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "source": source.Name(), "database": true, "stats": stats}
}
