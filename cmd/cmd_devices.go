// cmd_devices.go - devices Command
// Enthält: DevicesHandler, newDevicesCmd

package cmd

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/devcheck/ml"
)

// DevicesHandler - Listet alle verfuegbaren Geraete auf
func DevicesHandler(cmd *cobra.Command, _ []string) error {
	execCtx, err := ml.NewContext()
	if err != nil {
		return err
	}
	defer execCtx.Close()

	var data [][]string
	for _, d := range execCtx.Capabilities().Devices() {
		data = append(data, []string{d.Placement.String(), d.Library, strconv.Itoa(d.Threads), d.Precision.String(), d.Description})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"DEVICE", "LIBRARY", "THREADS", "PRECISION", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

// newDevicesCmd - Erstellt den devices Command
func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available devices",
		Args:  cobra.NoArgs,
		RunE:  DevicesHandler,
	}
}
