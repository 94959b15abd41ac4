package seriesdb

import (
	"context"
	"time"
)

// ServiceStats contains lightweight DB health and volume counters.
type ServiceStats struct {
	Driver      string `json:"driver"`
	PingMS      int64  `json:"ping_ms"`
	PointsTotal int64  `json:"points_total"`
	SeriesTotal int64  `json:"series_total"`
}

// ServiceStats returns database health and the size of the series table.
func (s *Store) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}

	out := &ServiceStats{
		Driver: s.driver,
		PingMS: time.Since(start).Milliseconds(),
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM avocado_series;`).Scan(&out.PointsTotal); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM (
  SELECT DISTINCT region, avocado_type, metric FROM avocado_series
) s;
`).Scan(&out.SeriesTotal); err != nil {
		return nil, err
	}
	return out, nil
}
