package render

import (
	"io"

	excelize "github.com/360EntSecGroup-Skylar/excelize/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// Sheet names of the exported workbook.
const (
	SheetWeekly     = "Weekly"
	SheetAlerts     = "Alerts"
	SheetThresholds = "Thresholds"
)

// XLSX exports the report as a spreadsheet workbook.
type XLSX struct{}

// ContentType implements pipeline.Renderer.
func (XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render implements pipeline.Renderer.
func (XLSX) Render(w io.Writer, r *compute.Report) error {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", SheetWeekly)
	f.NewSheet(SheetAlerts)
	f.NewSheet(SheetThresholds)

	if err := writeRows(f, SheetWeekly, weeklyRows(r)); err != nil {
		return err
	}
	if err := writeRows(f, SheetAlerts, alertRows(r)); err != nil {
		return err
	}
	if err := writeRows(f, SheetThresholds, thresholdRows(r)); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetWeekly, "A", "A", 12); err != nil {
		return goerr.Wrap(err, "set column width")
	}

	if err := f.Write(w); err != nil {
		return goerr.Wrap(err, "write xlsx")
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return goerr.Wrap(err, "cell name", goerr.V("row", i+1))
		}
		if err := f.SetSheetRow(sheet, axis, &rows[i]); err != nil {
			return goerr.Wrap(err, "write row", goerr.V("sheet", sheet), goerr.V("row", i+1))
		}
	}
	return nil
}

func weeklyRows(r *compute.Report) [][]interface{} {
	header := []interface{}{"week"}
	for _, c := range types.Categories {
		header = append(header, string(c))
	}
	header = append(header, "Total")
	for _, c := range types.Categories {
		header = append(header, c.PercentColumn())
	}
	for _, c := range r.AlertOrder {
		header = append(header, c.AlertColumn())
	}

	rows := [][]interface{}{header}
	for _, wk := range r.Weeks {
		row := []interface{}{wk.Week.Format(DateLayout)}
		for _, c := range types.Categories {
			row = append(row, wk.Counts[c])
		}
		row = append(row, wk.Total)
		for _, c := range types.Categories {
			row = append(row, wk.Percent[c])
		}
		for _, c := range r.AlertOrder {
			row = append(row, wk.Flags[c])
		}
		rows = append(rows, row)
	}
	return rows
}

func alertRows(r *compute.Report) [][]interface{} {
	header := []interface{}{"Week"}
	for _, c := range r.AlertOrder {
		header = append(header, string(c)+" Alert")
	}
	rows := [][]interface{}{header}
	for _, wk := range r.Alerted() {
		row := []interface{}{wk.Week.Format(DateLayout)}
		for _, c := range r.AlertOrder {
			row = append(row, wk.Flags[c])
		}
		rows = append(rows, row)
	}
	return rows
}

func thresholdRows(r *compute.Report) [][]interface{} {
	rows := [][]interface{}{{"Category", "Method", "Rule", "Q1", "Q3", "IQR", "Threshold"}}
	for _, th := range r.Thresholds {
		rows = append(rows, []interface{}{
			string(th.Category), string(th.Method), th.Rule, th.Q1, th.Q3, th.IQR, th.Value,
		})
	}
	return rows
}
