// cmd_check.go - check Command
// Enthält: CheckHandler, newCheckCmd

package cmd

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/devcheck/checker"
	"github.com/ollama/devcheck/envconfig"
	"github.com/ollama/devcheck/ml"
	"github.com/ollama/devcheck/model"
)

// parseOrders - Wandelt --order in eine Liste von Layouts um
func parseOrders(s string) ([]ml.Order, error) {
	if strings.EqualFold(s, "both") {
		return []ml.Order{ml.NCHW, ml.NHWC}, nil
	}

	order, err := ml.ParseOrder(s)
	if err != nil {
		return nil, err
	}
	return []ml.Order{order}, nil
}

// CheckHandler - Baut das Modell, initialisiert es und vergleicht alle Geraete
func CheckHandler(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("model")
	orderFlag, _ := cmd.Flags().GetString("order")
	tolerance, _ := cmd.Flags().GetFloat64("tolerance")
	devices, _ := cmd.Flags().GetStringSlice("devices")
	batch, _ := cmd.Flags().GetInt("batch")
	size, _ := cmd.Flags().GetInt("size")
	seed, _ := cmd.Flags().GetUint64("seed")
	parallel, _ := cmd.Flags().GetInt("parallel")
	pairwise, _ := cmd.Flags().GetBool("pairwise")
	ignore, _ := cmd.Flags().GetStringSlice("ignore")

	orders, err := parseOrders(orderFlag)
	if err != nil {
		return err
	}

	placements, err := ml.ParsePlacements(devices)
	if err != nil {
		return err
	}

	opts := []checker.Option{checker.WithParallel(parallel)}
	if pairwise {
		opts = append(opts, checker.WithPairwise())
	}

	c, err := checker.NewDeviceChecker(tolerance, placements, opts...)
	if err != nil {
		return err
	}

	execCtx, err := ml.NewContext()
	if err != nil {
		return err
	}
	defer execCtx.Close()

	out := cmd.OutOrStdout()
	caps := execCtx.Capabilities()
	for _, p := range placements {
		if !caps.Supports(p) {
			fmt.Fprintf(out, "skipping: device %s is not available\n", p)
			return nil
		}
	}

	var failed []string
	for _, order := range orders {
		m, err := model.New(name, model.Config{Order: order, ImageSize: size, Seed: seed})
		if err != nil {
			return err
		}

		inputs, err := m.Inputs(cmd.Context(), execCtx, placements[0], batch, seed)
		if err != nil {
			return err
		}

		slog.Debug("checking model", "model", m.Name, "order", order, "placements", placements, "params", len(m.Params))
		ok, report, err := c.CheckGraph(cmd.Context(), execCtx, m.Net, inputs, slices.Concat(m.Ignore, ignore))
		if err != nil {
			return fmt.Errorf("%s %s: %w", m.Name, order, err)
		}

		report.Graph = fmt.Sprintf("%s/%s", m.Name, order)
		if isTerminal(out) {
			report.WriteTable(out)
		} else {
			report.WriteText(out)
		}

		if !ok {
			failed = append(failed, report.Graph)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("devices disagree on %s", strings.Join(failed, ", "))
	}

	return nil
}

// newCheckCmd - Erstellt den check Command
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "check",
		Short:   "Run a model on several devices and compare every output",
		Args:    cobra.NoArgs,
		PreRunE: checkFlags,
		RunE:    CheckHandler,
	}

	cmd.Flags().String("model", "mini_alexnet", "Model to check ("+strings.Join(model.Models(), ", ")+")")
	cmd.Flags().String("order", "both", "Tensor layout: NCHW, NHWC or both")
	cmd.Flags().Float64("tolerance", envconfig.Tolerance(), "Maximum absolute elementwise difference")
	cmd.Flags().StringSlice("devices", []string{"cpu", "accel"}, "Placements to compare, reference first")
	cmd.Flags().Int("batch", 4, "Batch size")
	cmd.Flags().Int("size", 0, "Input image size (0 for the model default)")
	cmd.Flags().Uint64("seed", envconfig.Seed(), "Seed for parameters and input data")
	cmd.Flags().Int("parallel", int(envconfig.NumParallel()), "Maximum number of device runs executed concurrently")
	cmd.Flags().Bool("pairwise", false, "Also compare non-reference devices with each other")
	cmd.Flags().StringSlice("ignore", nil, "Additional output names to exclude from comparison")

	return cmd
}

// checkFlags - Validiert numerische Flags
func checkFlags(cmd *cobra.Command, _ []string) error {
	if batch, _ := cmd.Flags().GetInt("batch"); batch < 1 {
		return fmt.Errorf("batch must be positive, got %d", batch)
	}

	if size, _ := cmd.Flags().GetInt("size"); size < 0 {
		return fmt.Errorf("size must not be negative, got %d", size)
	}

	return nil
}
