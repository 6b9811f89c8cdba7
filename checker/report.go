// report.go
// Dieses Modul enthaelt den Pruefbericht und seine Ausgabe als Tabelle oder Text.

package checker

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/ollama/devcheck/ml"
)

// Failure is a comparison of one output between two placements that did
// not pass.
type Failure struct {
	Name      string
	Reference ml.Placement
	Placement ml.Placement
	Result
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s vs %s: %v", f.Name, f.Reference, f.Placement, f.Err())
}

type RunInfo struct {
	Placement ml.Placement
	Outputs   int
	Bytes     uint64
	Duration  time.Duration
}

// Report describes a CheckGraph call.
type Report struct {
	Graph      string
	Tolerance  float64
	Placements []ml.Placement
	Runs       []RunInfo

	// Compared and Ignored list reference outputs in production order.
	Compared []string
	Ignored  []string

	Failures []Failure
	Warnings []string
}

func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Failure returns the first failure recorded for name.
func (r *Report) Failure(name string) (Failure, bool) {
	i := slices.IndexFunc(r.Failures, func(f Failure) bool { return f.Name == name })
	if i < 0 {
		return Failure{}, false
	}
	return r.Failures[i], true
}

func (r *Report) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !slices.Contains(r.Warnings, msg) {
		r.Warnings = append(r.Warnings, msg)
	}
}

func (r *Report) Summary() string {
	status := "passed"
	if !r.Passed() {
		status = "FAILED"
	}

	placements := make([]string, len(r.Placements))
	for i, p := range r.Placements {
		placements[i] = p.String()
	}

	return fmt.Sprintf("%s %s on %s: %d compared, %d ignored, %d failures, %d warnings (tolerance %g)",
		r.Graph, status, strings.Join(placements, ", "),
		len(r.Compared), len(r.Ignored), len(r.Failures), len(r.Warnings), r.Tolerance)
}

func shape(s []int) string {
	dims := make([]string, len(s))
	for i, d := range s {
		dims[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(dims, " ") + "]"
}

// WriteTable renders the failures and warnings as tables.
func (r *Report) WriteTable(w io.Writer) {
	fmt.Fprintln(w, r.Summary())

	if len(r.Failures) > 0 {
		var data [][]string
		for _, f := range r.Failures {
			shapes := shape(f.ShapeA)
			if f.Status == ShapeMismatch {
				shapes += " vs " + shape(f.ShapeB)
			}

			data = append(data, []string{
				f.Name,
				f.Reference.String(),
				f.Placement.String(),
				f.Status.String(),
				strconv.FormatFloat(f.MaxDiff, 'g', 6, 64),
				shape(f.Coords),
				shapes,
			})
		}

		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"OUTPUT", "REFERENCE", "PLACEMENT", "STATUS", "MAX DIFF", "AT", "SHAPE"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(data)
		table.Render()
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range r.Warnings {
			fmt.Fprintln(w, "warning:", warning)
		}
	}
}

// WriteText renders the report one line per entry, for non-terminal output.
func (r *Report) WriteText(w io.Writer) {
	fmt.Fprintln(w, r.Summary())
	for _, run := range r.Runs {
		fmt.Fprintf(w, "run %s: %d outputs (%s) in %s\n", run.Placement, run.Outputs, humanize.Bytes(run.Bytes), run.Duration.Round(time.Microsecond))
	}
	for _, f := range r.Failures {
		fmt.Fprintln(w, "failure:", f)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintln(w, "warning:", warning)
	}
}
