// Package output renders valuation reports.
package output

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"bonita/core/types"
	"bonita/core/ui"
	"bonita/internal/errors"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is the human-readable text report
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render writes the report to w
	Render(w io.Writer, report *types.Report) error
}

// New returns the formatter for format. color only affects FormatCLI.
func New(format Format, color bool) (Formatter, error) {
	switch format {
	case FormatCLI, "":
		return &TextFormatter{Color: color}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, errors.Newf(errors.TypeConfig, "unknown output format %q (use cli or json)", format)
	}
}

// TextFormatter writes the report as labelled lines.
type TextFormatter struct {
	Color bool
}

func (f *TextFormatter) Format() Format { return FormatCLI }

func (f *TextFormatter) Render(out io.Writer, r *types.Report) error {
	w := ui.NewWriter(out, !f.Color)

	w.Header("Final Results")
	w.Println("Total square meters across all parcels: %s", r.TotalArea)
	w.Println("")

	w.SubHeader("BPEJ breakdown:")
	if len(r.Breakdown) == 0 {
		w.Println(" (none)")
	} else {
		tbl := w.NewTable("BPEJ code", "Area (sqm)", "Price (Kč/m2)", "Partial sum")
		for _, l := range r.Breakdown {
			tbl.AddRow(l.Code.String(), l.Area.String(), l.Price.String(), l.Partial.String())
		}
		tbl.Render()
	}

	w.Println("")
	w.Success("Average BPEJ price: %s Kč/m2", r.AveragePrice)

	if len(r.Unclassified) > 0 {
		w.Println("")
		w.SubHeader("Parcels without BPEJ:")
		tbl := w.NewTable("Parcel", "Area (sqm)", "Land type")
		for _, u := range r.Unclassified {
			tbl.AddRow(u.Parcel, u.Area.String(), u.LandType)
		}
		tbl.Render()
		w.Println("Total area of parcels without BPEJ: %s sqm", r.UnclassifiedArea)
	}

	if len(r.Skipped) > 0 {
		w.Println("")
		w.SubHeader("Skipped parcels (not included above):")
		for _, s := range r.Skipped {
			w.Println(" - %s: %s", s.Parcel, s.Reason)
		}
	}

	w.Println("")
	w.Println("%s", sheetLine(r.Sheets))

	w.Println("")
	w.Println("Excel bonita calculation: %s", r.Formula)
	return nil
}

func sheetLine(s types.SheetSummary) string {
	nums := make([]string, len(s.Numbers))
	for i, n := range s.Numbers {
		nums[i] = strconv.Itoa(n)
	}
	switch s.Kind {
	case types.SheetsUnique:
		return "All parcels have the same LV: " + nums[0]
	case types.SheetsMultiple:
		return "Multiple LVs detected: " + strings.Join(nums, ", ")
	default:
		return "No LV detected."
	}
}

// JSONFormatter writes the report as one indented JSON document. Decimal
// amounts are encoded as strings to keep them exact.
type JSONFormatter struct{}

func (f *JSONFormatter) Format() Format { return FormatJSON }

func (f *JSONFormatter) Render(w io.Writer, r *types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return errors.Internal("encode report", err)
	}
	return nil
}
