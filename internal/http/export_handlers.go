package http

import (
	"fmt"
	nethttp "net/http"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"go-avocado-analytics-ui/internal/dashboard"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportHandler writes the session's current control values and chart data
// as an xlsx workbook: one "controls" sheet plus one sheet per figure output.
func exportHandler(reg *dashboard.Registry, id string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		sess, err := reg.Get(id)
		if err != nil {
			writeError(w, nethttp.StatusNotFound, err)
			return
		}

		f, err := buildWorkbook(sess.Values(), sess.Outputs())
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, err)
			return
		}
		defer f.Close()

		buf, err := f.WriteToBuffer()
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, fmt.Errorf("write workbook: %w", err))
			return
		}

		name := fmt.Sprintf("avocado-analytics-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func buildWorkbook(values dashboard.Values, outputs map[dashboard.OutputID]any) (*excelize.File, error) {
	f := excelize.NewFile()
	const controlsSheet = "controls"
	if err := f.SetSheetName("Sheet1", controlsSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	if err := f.SetSheetRow(controlsSheet, "A1", &[]any{"control", "value"}); err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, id := range ids {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(controlsSheet, cell, &[]any{id, values[dashboard.ControlID(id)]}); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	figIDs := make([]string, 0, len(outputs))
	for id, v := range outputs {
		if _, ok := v.(dashboard.Figure); ok {
			figIDs = append(figIDs, string(id))
		}
	}
	sort.Strings(figIDs)
	for _, id := range figIDs {
		out := dashboard.OutputID(id)
		if err := writeFigureSheet(f, out.Component(), outputs[out].(dashboard.Figure)); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeFigureSheet(f *excelize.File, sheet string, fig dashboard.Figure) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	if err := f.SetSheetRow(sheet, "A1", &[]any{"trace", "x", "y"}); err != nil {
		return err
	}
	row := 2
	for i, tr := range fig.Data {
		name := tr.Name
		if name == "" {
			name = fmt.Sprintf("trace %d", i)
		}
		n := min(len(tr.X), len(tr.Y))
		for j := 0; j < n; j++ {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetSheetRow(sheet, cell, &[]any{name, tr.X[j].Value(), tr.Y[j].Value()}); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}
