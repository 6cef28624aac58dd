package render_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	excelize "github.com/360EntSecGroup-Skylar/excelize/v2"
	"github.com/m-mizutani/gt"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/internal/render"
	"github.com/phenowatch/phenowatch/pkg/types"
)

func week(day int, mrsa, vrsa, other, wild int) types.WeeklyRecord {
	return types.WeeklyRecord{
		Week: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Counts: map[types.Category]int{
			types.MRSA: mrsa, types.VRSA: vrsa, types.Other: other, types.Wild: wild,
		},
	}
}

func evaluate(t *testing.T, recs ...types.WeeklyRecord) *compute.Report {
	t.Helper()
	e, err := compute.NewEngine(nil, compute.ZeroTotalError)
	gt.NoError(t, err).Required()
	r, err := e.Evaluate(&types.Table{Source: "weekly.csv", Records: recs})
	gt.NoError(t, err).Required()
	return r
}

func sampleReport(t *testing.T) *compute.Report {
	return evaluate(t,
		week(7, 5, 0, 2, 3),
		week(14, 2, 0, 2, 5),
		week(21, 3, 1, 2, 5),
		week(28, 100, 0, 2, 5),
	)
}

func TestChart_PNG(t *testing.T) {
	c := render.NewPNG()
	gt.Equal(t, c.ContentType(), "image/png")

	var buf bytes.Buffer
	gt.NoError(t, c.Render(&buf, sampleReport(t))).Required()
	gt.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestChart_SVG(t *testing.T) {
	c := render.NewSVG()
	gt.Equal(t, c.ContentType(), "image/svg+xml")

	var buf bytes.Buffer
	gt.NoError(t, c.Render(&buf, sampleReport(t))).Required()
	gt.S(t, buf.String()).Contains("<svg")
}

func TestChart_SingleWeek(t *testing.T) {
	var buf bytes.Buffer
	err := render.NewPNG().Render(&buf, evaluate(t, week(7, 5, 0, 3, 2)))
	gt.NoError(t, err)
}

func TestChart_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	gt.Error(t, render.NewPNG().Render(&buf, &compute.Report{}))
}

func TestJSON_Document(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, render.JSON{}.Render(&buf, sampleReport(t))).Required()

	var doc render.Document
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &doc)).Required()
	gt.Equal(t, doc.Source, "weekly.csv")
	gt.A(t, doc.Weeks).Length(4)
	gt.A(t, doc.Alerts).Length(2)
	gt.A(t, doc.Thresholds).Length(3)

	first := doc.Weeks[0]
	gt.Equal(t, first.Week, "2024-01-07")
	gt.Equal(t, first.Total, 10)
	gt.Equal(t, first.MRSAPct, 50.0)
	gt.Equal(t, first.OtherPct, 20.0)
	gt.Equal(t, first.WildPct, 30.0)
	gt.V(t, first.MRSAAlert).NotNil().Required()
	gt.False(t, *first.MRSAAlert)
	gt.Nil(t, first.WildAlert)

	gt.Equal(t, doc.Alerts[0].Week, "2024-01-21")
	gt.True(t, *doc.Alerts[0].VRSAAlert)
	gt.Equal(t, doc.Alerts[1].Week, "2024-01-28")
	gt.True(t, *doc.Alerts[1].MRSAAlert)
}

func TestJSON_WideColumnNames(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, render.JSON{Indent: true}.Render(&buf, sampleReport(t))).Required()
	for _, key := range []string{`"MRSA_%"`, `"VRSA_alert"`, `"Total"`, `"week"`} {
		gt.S(t, buf.String()).Contains(key)
	}
}

func TestNewSeries(t *testing.T) {
	pts := render.NewSeries(sampleReport(t))
	gt.A(t, pts).Length(16)
	gt.Equal(t, pts[0].Phenotype, "MRSA_%")
	gt.Equal(t, pts[0].Color, "#FF8C00")
	gt.Equal(t, pts[0].Count, 5)
	gt.Equal(t, pts[4].Phenotype, "VRSA_%")
	gt.Equal(t, pts[4].Color, "#8B0000")
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, render.Text{Raw: true}.Render(&buf, sampleReport(t))).Required()
	out := buf.String()

	gt.S(t, out).Contains("Weekly Alert Status (Tukey Method)")
	gt.S(t, out).Contains("MRSA_%")
	gt.S(t, out).Contains("50.00")
	gt.S(t, out).Contains("2024-01-28")
	gt.S(t, out).Contains("VRSA >= 1")
}

func TestText_NoAlerts(t *testing.T) {
	r := evaluate(t, week(7, 5, 0, 3, 2), week(14, 5, 0, 3, 2))
	var buf bytes.Buffer
	gt.NoError(t, render.Text{}.Render(&buf, r)).Required()
	gt.S(t, buf.String()).Contains("(no alerted weeks)")
	gt.False(t, strings.Contains(buf.String(), "MRSA_%"))
}

func TestXLSX_Sheets(t *testing.T) {
	x := render.XLSX{}
	var buf bytes.Buffer
	gt.NoError(t, x.Render(&buf, sampleReport(t))).Required()

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	gt.NoError(t, err).Required()
	gt.Equal(t, f.GetSheetList(), []string{render.SheetWeekly, render.SheetAlerts, render.SheetThresholds})

	weekly, err := f.GetRows(render.SheetWeekly)
	gt.NoError(t, err).Required()
	gt.A(t, weekly).Length(5)
	gt.Equal(t, weekly[0][:6], []string{"week", "MRSA", "VRSA", "Other", "Wild", "Total"})
	gt.Equal(t, weekly[1][0], "2024-01-07")
	gt.Equal(t, weekly[1][5], "10")

	alerts, err := f.GetRows(render.SheetAlerts)
	gt.NoError(t, err).Required()
	gt.A(t, alerts).Length(3)
	gt.Equal(t, alerts[0], []string{"Week", "MRSA Alert", "Other Alert", "VRSA Alert"})

	th, err := f.GetRows(render.SheetThresholds)
	gt.NoError(t, err).Required()
	gt.A(t, th).Length(4)
}
