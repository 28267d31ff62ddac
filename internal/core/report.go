package core

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"wardmap/internal/domain/model"
)

// Reporter prints run results as plain-text tables.
type Reporter struct {
	w io.Writer
	p *message.Printer
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w, p: message.NewPrinter(language.English)}
}

func (r *Reporter) Print(s *model.RunSummary) {
	r.PrintCRS(s)
	if s.ByCounty != nil {
		r.printCounties(s)
	}
	if s.ByWard != nil {
		r.printWards(s)
	}
	r.PrintPartition(s)
}

func (r *Reporter) PrintCRS(s *model.RunSummary) {
	fmt.Fprintf(r.w, "CRS match: %t (wards %s, counties %s)\n", s.CRSMatch, s.WardsCRS, s.CountiesCRS)
}

func (r *Reporter) printCounties(s *model.RunSummary) {
	agg := s.ByCounty
	withArea := len(s.CountyStats) > 0
	withDensity := false
	for _, st := range s.CountyStats {
		withDensity = withDensity || st.HasDensity
	}

	fmt.Fprintln(r.w, "Total Population by County:")
	t := r.newTable()
	header := table.Row{"County", "Population"}
	if withArea {
		header = append(header, "Area (km²)")
	}
	if withDensity {
		header = append(header, "Density (/km²)")
	}
	t.AppendHeader(header)

	for _, key := range agg.Keys {
		row := table.Row{key, r.p.Sprintf("%d", agg.Sums[key])}
		st := s.CountyStats[key]
		if withArea {
			row = append(row, r.p.Sprintf("%.1f", st.AreaKm2))
		}
		if withDensity {
			if st.HasDensity {
				row = append(row, r.p.Sprintf("%.1f", st.Density))
			} else {
				row = append(row, "-")
			}
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"Total", r.p.Sprintf("%d", agg.Total)})
	t.Render()

	r.printExtremes("County", agg.Extent)
}

func (r *Reporter) printWards(s *model.RunSummary) {
	agg := s.ByWard
	fmt.Fprintln(r.w, "Total Population by Ward:")
	t := r.newTable()
	t.AppendHeader(table.Row{"Ward", "Population"})
	for _, key := range agg.Keys {
		t.AppendRow(table.Row{key, r.p.Sprintf("%d", agg.Sums[key])})
	}
	t.AppendFooter(table.Row{"Total", r.p.Sprintf("%d", agg.Total)})
	t.Render()

	r.printExtremes("Ward", agg.Extent)
}

func (r *Reporter) printExtremes(label string, e model.Extremes) {
	fmt.Fprintf(r.w, "%s with the Highest Population: %s%s\n", label, e.MaxKey, ties(e.MaxKey, e.MaxTies))
	fmt.Fprintf(r.w, "%s with the Lowest Population: %s%s\n", label, e.MinKey, ties(e.MinKey, e.MinTies))
}

func ties(winner string, all []string) string {
	var others []string
	for _, k := range all {
		if k != winner {
			others = append(others, k)
		}
	}
	if len(others) == 0 {
		return ""
	}
	return " (tied with " + strings.Join(others, ", ") + ")"
}

// PrintPartition summarises wards that were dropped or matched several counties.
func (r *Reporter) PrintPartition(s *model.RunSummary) {
	p := s.Partition
	if p.Clean() {
		fmt.Fprintf(r.w, "Partition check: all %d wards matched exactly one county\n", p.LeftTotal)
		return
	}
	fmt.Fprintf(r.w, "Partition check: %d of %d wards matched\n", p.Matched, p.LeftTotal)
	if len(p.Dropped) > 0 {
		fmt.Fprintf(r.w, "  no county: %s\n", strings.Join(s.Dropped, ", "))
	}
	if len(p.FanOut) > 0 {
		fmt.Fprintf(r.w, "  several counties: %s\n", strings.Join(s.FannedOut, ", "))
	}
}

func (r *Reporter) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return t
}
