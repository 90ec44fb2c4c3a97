// Package report renders mined sweet spots for humans: fixed-width tables
// for terminals, CSV for spreadsheets, and XLSX workbooks for the content
// team.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/forgepoint/gentuner/internal/model"
)

// Row is one parameter of one sweet spot, flattened for tabular output. The
// per-spot statistics repeat on every row of that spot.
type Row struct {
	Scope       string
	Parameter   string
	Min         float64
	Max         float64
	Median      float64
	SampleCount int
	AvgScore    float64
	MaxScore    float64
	Confidence  string
}

// Rows flattens sweet spots into report rows, parameters sorted by name
// within each spot.
func Rows(spots []*model.SweetSpot) []Row {
	var rows []Row
	for _, spot := range spots {
		if spot == nil {
			continue
		}
		names := make([]string, 0, len(spot.ParameterRanges))
		for name := range spot.ParameterRanges {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			r := spot.ParameterRanges[name]
			rows = append(rows, Row{
				Scope:       spot.Scope.String(),
				Parameter:   name,
				Min:         r.Min,
				Max:         r.Max,
				Median:      r.Median,
				SampleCount: spot.SampleCount,
				AvgScore:    spot.AvgScore,
				MaxScore:    spot.MaxScore,
				Confidence:  string(spot.Confidence),
			})
		}
	}
	return rows
}

var csvHeader = []string{
	"scope", "parameter", "min", "max", "median",
	"sample_count", "avg_score", "max_score", "confidence",
}

// WriteCSV writes rows as CSV with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}
	for _, r := range rows {
		record := []string{
			r.Scope,
			r.Parameter,
			fmt.Sprintf("%g", r.Min),
			fmt.Sprintf("%g", r.Max),
			fmt.Sprintf("%g", r.Median),
			fmt.Sprintf("%d", r.SampleCount),
			fmt.Sprintf("%.2f", r.AvgScore),
			fmt.Sprintf("%.2f", r.MaxScore),
			r.Confidence,
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush CSV")
}

// WriteTable writes rows as a fixed-width text table.
func WriteTable(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No sweet spots.")
		return eris.Wrap(err, "report: write table")
	}

	header := fmt.Sprintf("%-28s %-18s %9s %9s %9s %8s %7s %-6s\n",
		"Scope", "Parameter", "Min", "Max", "Median", "Samples", "Avg", "Conf")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "report: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 100)); err != nil {
		return eris.Wrap(err, "report: write table separator")
	}

	for _, r := range rows {
		scope := r.Scope
		if len(scope) > 28 {
			scope = scope[:25] + "..."
		}
		line := fmt.Sprintf("%-28s %-18s %9.2f %9.2f %9.2f %8d %7.1f %-6s\n",
			scope, r.Parameter, r.Min, r.Max, r.Median, r.SampleCount, r.AvgScore, r.Confidence)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "report: write table row")
		}
	}
	return nil
}

// WriteXLSX writes rows as a single-sheet XLSX workbook.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sweet Spots")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	hr := sheet.AddRow()
	for _, name := range csvHeader {
		hr.AddCell().SetString(name)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Scope)
		row.AddCell().SetString(r.Parameter)
		row.AddCell().SetFloat(r.Min)
		row.AddCell().SetFloat(r.Max)
		row.AddCell().SetFloat(r.Median)
		row.AddCell().SetInt(r.SampleCount)
		row.AddCell().SetFloat(r.AvgScore)
		row.AddCell().SetFloat(r.MaxScore)
		row.AddCell().SetString(r.Confidence)
	}

	return eris.Wrap(f.Write(w), "report: write workbook")
}
