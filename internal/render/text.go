package render

import (
	"io"
	"strings"
	"text/tabwriter"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// Text renders the report as aligned plain-text tables.
type Text struct {
	// Raw adds the full weekly table with counts and percentages.
	Raw bool

	// Lang controls number formatting. Zero value means English.
	Lang language.Tag
}

// ContentType implements pipeline.Renderer.
func (Text) ContentType() string { return "text/plain; charset=utf-8" }

// Render implements pipeline.Renderer.
func (t Text) Render(w io.Writer, r *compute.Report) error {
	lang := t.Lang
	if lang == language.Und {
		lang = language.English
	}
	p := message.NewPrinter(lang)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	p.Fprintf(tw, "Weekly %% Distribution of Staphylococcus aureus Phenotypes\n")
	p.Fprintf(tw, "Source: %s\tWeeks: %d\tAlerted: %d\n\n", r.Source, len(r.Weeks), len(r.Alerted()))

	if t.Raw {
		writeRaw(p, tw, r)
	}
	writeThresholds(p, tw, r)
	writeAlertStatus(p, tw, r)

	if err := tw.Flush(); err != nil {
		return goerr.Wrap(err, "write text report")
	}
	return nil
}

func writeRaw(p *message.Printer, w io.Writer, r *compute.Report) {
	cols := []string{"week"}
	for _, c := range types.Categories {
		cols = append(cols, string(c))
	}
	cols = append(cols, "Total")
	for _, c := range types.Categories {
		cols = append(cols, c.PercentColumn())
	}
	for _, c := range r.AlertOrder {
		cols = append(cols, c.AlertColumn())
	}
	p.Fprintf(w, "%s\n", strings.Join(cols, "\t"))

	for _, wk := range r.Weeks {
		p.Fprintf(w, "%s", wk.Week.Format(DateLayout))
		for _, c := range types.Categories {
			p.Fprintf(w, "\t%d", wk.Counts[c])
		}
		p.Fprintf(w, "\t%d", wk.Total)
		for _, c := range types.Categories {
			p.Fprintf(w, "\t%.2f", wk.Percent[c])
		}
		for _, c := range r.AlertOrder {
			p.Fprintf(w, "\t%t", wk.Flags[c])
		}
		p.Fprintf(w, "\n")
	}
	p.Fprintf(w, "\n")
}

func writeThresholds(p *message.Printer, w io.Writer, r *compute.Report) {
	p.Fprintf(w, "Thresholds\n")
	p.Fprintf(w, "Category\tRule\tQ1\tQ3\tIQR\tThreshold\n")
	for _, th := range r.Thresholds {
		if th.Method == compute.MethodTukey {
			p.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\n", th.Category, th.Rule, th.Q1, th.Q3, th.IQR, th.Value)
			continue
		}
		p.Fprintf(w, "%s\t%s\t-\t-\t-\t%g\n", th.Category, th.Rule, th.Value)
	}
	p.Fprintf(w, "\n")
}

func writeAlertStatus(p *message.Printer, w io.Writer, r *compute.Report) {
	p.Fprintf(w, "Weekly Alert Status (Tukey Method)\n")

	cols := []string{"Week"}
	for _, c := range r.AlertOrder {
		cols = append(cols, string(c)+" Alert")
	}
	p.Fprintf(w, "%s\n", strings.Join(cols, "\t"))

	alerted := r.Alerted()
	if len(alerted) == 0 {
		p.Fprintf(w, "(no alerted weeks)\n")
		return
	}
	for _, wk := range alerted {
		p.Fprintf(w, "%s", wk.Week.Format(DateLayout))
		for _, c := range r.AlertOrder {
			p.Fprintf(w, "\t%t", wk.Flags[c])
		}
		p.Fprintf(w, "\n")
	}
}
