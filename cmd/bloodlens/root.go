package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "bloodlens",
	Short: "Blood test report analysis",
	Long: `bloodlens reads a blood test report (PDF or text) and runs it past a small
team of specialist roles: a report verifier, a doctor, a dietitian and an
exercise physiologist. The result is one report with a section per role.

Run "bloodlens serve" to start the HTTP API (and optionally an MCP server on
stdio), then "bloodlens analyze report.pdf" to submit a report.

The output is educational and is not medical advice.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			noColor = true
			color.NoColor = true
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
