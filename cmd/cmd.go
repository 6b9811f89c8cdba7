// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/devcheck/envconfig"
	"github.com/ollama/devcheck/logutil"
	_ "github.com/ollama/devcheck/ml/backend"
	"github.com/ollama/devcheck/version"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// isTerminal - Prueft ob w ein Terminal ist
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// versionHandler - Gibt die Version aus
func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "devcheck version is %s\n", version.Version)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "devcheck",
		Short:         "Cross-device consistency checker for operator graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	checkCmd := newCheckCmd()
	devicesCmd := newDevicesCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	appendEnvDocs(checkCmd, []envconfig.EnvVar{
		envVars["DEVCHECK_DEBUG"],
		envVars["DEVCHECK_TOLERANCE"],
		envVars["DEVCHECK_NUM_PARALLEL"],
		envVars["DEVCHECK_SEED"],
		envVars["DEVCHECK_ACCEL"],
		envVars["DEVCHECK_ACCEL_DEVICES"],
		envVars["DEVCHECK_ACCEL_THREADS"],
		envVars["DEVCHECK_ACCEL_PRECISION"],
	})
	appendEnvDocs(devicesCmd, []envconfig.EnvVar{
		envVars["DEVCHECK_ACCEL"],
		envVars["DEVCHECK_ACCEL_DEVICES"],
		envVars["DEVCHECK_ACCEL_THREADS"],
		envVars["DEVCHECK_ACCEL_PRECISION"],
	})

	rootCmd.AddCommand(
		checkCmd,
		devicesCmd,
		envCmd,
	)

	return rootCmd
}
