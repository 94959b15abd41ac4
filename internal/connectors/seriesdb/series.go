package seriesdb

import (
	"context"
	"errors"
	"fmt"

	"go-avocado-analytics-ui/internal/dashboard"
)

const (
	MetricPrice  = "price"
	MetricVolume = "volume"
)

// ErrNoSeries is returned when the table holds no points for a query.
var ErrNoSeries = errors.New("no series stored")

func (s *Store) Price(ctx context.Context, q dashboard.SeriesQuery) (dashboard.Series, error) {
	return s.series(ctx, MetricPrice, q)
}

func (s *Store) Volume(ctx context.Context, q dashboard.SeriesQuery) (dashboard.Series, error) {
	return s.series(ctx, MetricVolume, q)
}

func (s *Store) series(ctx context.Context, metric string, q dashboard.SeriesQuery) (dashboard.Series, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT x, y
FROM avocado_series
WHERE region = ? AND avocado_type = ? AND metric = ?
ORDER BY seq;
`, q.Region, q.Type, metric)
	if err != nil {
		return dashboard.Series{}, fmt.Errorf("query %s series: %w", metric, err)
	}
	defer rows.Close()

	var out dashboard.Series
	for rows.Next() {
		var x, y float64
		if err := rows.Scan(&x, &y); err != nil {
			return dashboard.Series{}, fmt.Errorf("scan %s series: %w", metric, err)
		}
		out.X = append(out.X, dashboard.Num(x))
		out.Y = append(out.Y, dashboard.Num(y))
	}
	if err := rows.Err(); err != nil {
		return dashboard.Series{}, fmt.Errorf("read %s series: %w", metric, err)
	}
	if out.Len() == 0 {
		return dashboard.Series{}, fmt.Errorf("%w: %s for %s/%s", ErrNoSeries, metric, q.Region, q.Type)
	}
	return out, nil
}

// Put replaces the stored series for (metric, q) with s. Only numeric points
// can be stored.
func (s *Store) Put(ctx context.Context, metric string, q dashboard.SeriesQuery, series dashboard.Series) error {
	if metric != MetricPrice && metric != MetricVolume {
		return fmt.Errorf("unknown metric %q", metric)
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM avocado_series WHERE region = ? AND avocado_type = ? AND metric = ?;`,
		q.Region, q.Type, metric); err != nil {
		return err
	}
	for i := 0; i < series.Len(); i++ {
		x, y := series.X[i], series.Y[i]
		if x.IsString() || y.IsString() {
			return fmt.Errorf("point %d of %s series is not numeric", i, metric)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO avocado_series (region, avocado_type, metric, seq, x, y) VALUES (?, ?, ?, ?, ?, ?);`,
			q.Region, q.Type, metric, i, x.Float(), y.Float()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SeedFrom copies every (region, type) series of src into an empty table and
// reports how many series were written. A table that already has rows is
// left alone.
func (s *Store) SeedFrom(ctx context.Context, src dashboard.SeriesSource) (int, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM avocado_series;`).Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	written := 0
	for _, region := range dashboard.Regions {
		for _, typ := range dashboard.AvocadoTypes {
			q := dashboard.SeriesQuery{Region: region, Type: typ}
			price, err := src.Price(ctx, q)
			if err != nil {
				return written, err
			}
			if err := s.Put(ctx, MetricPrice, q, price); err != nil {
				return written, err
			}
			volume, err := src.Volume(ctx, q)
			if err != nil {
				return written, err
			}
			if err := s.Put(ctx, MetricVolume, q, volume); err != nil {
				return written, err
			}
			written += 2
		}
	}
	return written, nil
}
