// Package checker runs one operator graph on several device placements and
// verifies that every produced tensor agrees within an absolute tolerance.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/emirpasic/gods/v2/sets/hashset"
	"golang.org/x/sync/errgroup"

	"github.com/ollama/devcheck/logutil"
	"github.com/ollama/devcheck/ml"
)

// Runner executes a graph on a placement. *ml.Context implements it.
type Runner interface {
	Run(ctx context.Context, g *ml.Graph, p ml.Placement, inputs *ml.Store) (*ml.Store, error)
}

// DeviceChecker compares the outputs of a graph across placements. The first
// placement is the reference every other placement is compared against.
type DeviceChecker struct {
	tolerance  float64
	placements []ml.Placement

	parallel int
	pairwise bool
}

type Option func(*DeviceChecker)

// WithParallel runs up to n placements concurrently. Outputs are compared
// only after every run has finished.
func WithParallel(n int) Option {
	return func(c *DeviceChecker) {
		c.parallel = max(n, 1)
	}
}

// WithPairwise additionally compares every pair of non-reference placements
// with each other.
func WithPairwise() Option {
	return func(c *DeviceChecker) {
		c.pairwise = true
	}
}

// NewDeviceChecker validates the configuration. At least two placements are
// required and tolerance must be a nonnegative number.
func NewDeviceChecker(tolerance float64, placements []ml.Placement, opts ...Option) (*DeviceChecker, error) {
	if len(placements) < 2 {
		return nil, fmt.Errorf("%w: need a reference and at least one other placement, got %d", ErrInvalidConfig, len(placements))
	}

	if math.IsNaN(tolerance) || tolerance < 0 {
		return nil, fmt.Errorf("%w: tolerance must be nonnegative, got %v", ErrInvalidConfig, tolerance)
	}

	c := &DeviceChecker{
		tolerance:  tolerance,
		placements: slices.Clone(placements),
		parallel:   1,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *DeviceChecker) Tolerance() float64 {
	return c.tolerance
}

func (c *DeviceChecker) Placements() []ml.Placement {
	return slices.Clone(c.placements)
}

// CheckGraph executes g once per placement, each run starting from its own
// copy of inputs, and compares every reference output not named in ignore.
//
// Execution failures and non-ignored outputs missing from any run abort the
// check with an error. Shape mismatches and tolerance violations are
// collected in the report; the check passes iff there are none.
func (c *DeviceChecker) CheckGraph(ctx context.Context, r Runner, g *ml.Graph, inputs *ml.Store, ignore []string) (bool, *Report, error) {
	report := &Report{
		Graph:      g.Name,
		Tolerance:  c.tolerance,
		Placements: c.Placements(),
	}

	if inputs == nil {
		inputs = ml.NewStore()
	}

	stores, err := c.run(ctx, r, g, inputs, report)
	if err != nil {
		return false, report, err
	}

	ignored := hashset.New(ignore...)
	reference := stores[0]

	for _, name := range reference.Names() {
		if ignored.Contains(name) {
			report.Ignored = append(report.Ignored, name)
			continue
		}

		for i, s := range stores[1:] {
			if !s.Has(name) {
				return false, report, &MissingOutputError{
					Name:       name,
					Placement:  c.placements[i+1],
					Reference:  c.placements[0],
					Suggestion: ml.Suggest(name, s.Names()),
				}
			}
		}

		report.Compared = append(report.Compared, name)
		for _, pair := range c.pairs() {
			a, err := stores[pair[0]].Get(name)
			if err != nil {
				return false, report, err
			}

			b, err := stores[pair[1]].Get(name)
			if err != nil {
				return false, report, err
			}

			result := Compare(a, b, c.tolerance)
			logutil.Trace("compared output", "name", name, "reference", c.placements[pair[0]], "placement", c.placements[pair[1]], "status", result.Status, "max_diff", result.MaxDiff, "index", result.Index)

			if result.DTypeA != result.DTypeB {
				report.warnf("output %q is %s on %s but %s on %s", name, result.DTypeA, c.placements[pair[0]], result.DTypeB, c.placements[pair[1]])
			}

			if result.Status == Fail {
				slog.Debug("output mismatch", "name", name, "max_diff", result.MaxDiff, "at", result.Coords,
					c.placements[pair[0]].String(), ml.DumpValue(a, ml.DumpWithThreshold(64), ml.DumpWithEdgeItems(2)),
					c.placements[pair[1]].String(), ml.DumpValue(b, ml.DumpWithThreshold(64), ml.DumpWithEdgeItems(2)))
			}

			if !result.Passed() {
				report.Failures = append(report.Failures, Failure{
					Name:      name,
					Reference: c.placements[pair[0]],
					Placement: c.placements[pair[1]],
					Result:    result,
				})
			}
		}
	}

	if err := c.extraOutputs(stores, ignored); err != nil {
		return false, report, err
	}

	c.warnings(report, stores, ignore, ignored)

	slog.Debug("graph checked", "graph", g.Name, "compared", len(report.Compared), "ignored", len(report.Ignored), "failures", len(report.Failures), "warnings", len(report.Warnings))
	return report.Passed(), report, nil
}

// run executes g on every placement and returns the output stores in
// placement order.
func (c *DeviceChecker) run(ctx context.Context, r Runner, g *ml.Graph, inputs *ml.Store, report *Report) ([]*ml.Store, error) {
	stores := make([]*ml.Store, len(c.placements))
	runs := make([]RunInfo, len(c.placements))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.parallel)
	for i, p := range c.placements {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			out, err := r.Run(ctx, g, p, inputs.Clone())
			if err != nil {
				return err
			}

			stores[i] = out
			runs[i] = RunInfo{Placement: p, Outputs: out.Len(), Bytes: out.Bytes(), Duration: time.Since(start)}
			logutil.Trace("run finished", "graph", g.Name, "placement", p, "outputs", out.Len())
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report.Runs = runs
	return stores, nil
}

// pairs lists the placement index pairs to compare, reference pairs first.
func (c *DeviceChecker) pairs() [][2]int {
	var pairs [][2]int
	for i := 1; i < len(c.placements); i++ {
		pairs = append(pairs, [2]int{0, i})
	}

	if c.pairwise {
		for i := 1; i < len(c.placements); i++ {
			for j := i + 1; j < len(c.placements); j++ {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}

	return pairs
}

func (c *DeviceChecker) warnings(report *Report, stores []*ml.Store, ignore []string, ignored *hashset.Set[string]) {
	if len(report.Compared) == 0 {
		report.warnf("no outputs compared; check the ignore list")
	}

	for _, name := range ignore {
		if !slices.ContainsFunc(stores, func(s *ml.Store) bool { return s.Has(name) }) {
			report.warnf("ignored name %q is not produced by any run", name)
		}
	}
}

// extraOutputs fails on the first non-ignored output a non-reference run
// produced that the reference did not.
func (c *DeviceChecker) extraOutputs(stores []*ml.Store, ignored *hashset.Set[string]) error {
	for i, s := range stores[1:] {
		for _, name := range s.Names() {
			if !stores[0].Has(name) && !ignored.Contains(name) {
				return &MissingOutputError{
					Name:       name,
					Placement:  c.placements[0],
					Reference:  c.placements[i+1],
					Suggestion: ml.Suggest(name, stores[0].Names()),
				}
			}
		}
	}
	return nil
}
