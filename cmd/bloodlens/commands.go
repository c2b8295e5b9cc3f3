package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/config"
	"github.com/kalambet/bloodlens/internal/report"
	"github.com/kalambet/bloodlens/internal/storage"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyse a blood test report",
	Long: `Analyse a blood test report (PDF or plain text).

By default the file is sent to a running "bloodlens serve". With --local the
analysis runs in this process using the local configuration.

Examples:
  bloodlens analyze labs.pdf
  bloodlens analyze labs.pdf --query "Is my cholesterol a concern?" --mode medical_only
  bloodlens analyze labs.txt --local --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		mode, _ := cmd.Flags().GetString("mode")
		asJSON, _ := cmd.Flags().GetBool("json")
		local, _ := cmd.Flags().GetBool("local")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		name := filepath.Base(args[0])

		var rep report.Report
		if local {
			rep, err = analyzeLocal(cmd.Context(), name, data, query, mode)
		} else {
			var client *apiClient
			client, err = newAPIClient()
			if err != nil {
				return err
			}
			rep, err = client.analyze(cmd.Context(), name, data, query, mode)
		}
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), rep, asJSON)
	},
}

func init() {
	analyzeCmd.Flags().String("query", "", "question about the report")
	analyzeCmd.Flags().String("mode", string(analysis.ModeComprehensive), "analysis type: comprehensive or medical_only")
	analyzeCmd.Flags().Bool("json", false, "print the report as JSON")
	analyzeCmd.Flags().Bool("local", false, "run the analysis in-process instead of via the server")
}

func analyzeLocal(ctx context.Context, name string, data []byte, query, mode string) (report.Report, error) {
	cfg, err := config.Load()
	if err != nil {
		return report.Report{}, err
	}
	setupLogging(cfg.Log.Level)

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return report.Report{}, err
	}
	defer a.Close()

	rep, err := a.orch.Run(ctx, analysis.NewRequest(analysis.Document{Name: name, Data: data}, query, mode))
	if err != nil {
		return report.Report{}, err
	}
	if a.store != nil {
		if err := a.store.SaveReport(rep); err != nil {
			printWarning("report not saved: %v", err)
		}
	}
	return rep, nil
}

func writeReport(w io.Writer, rep report.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprint(w, rep.Markdown())
	fmt.Fprintln(os.Stderr, colorize(statusColor(rep.Status), rep.Summary()))
	return nil
}

// --- reports ---

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage stored reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		reports, err := listReports(cmd.Context(), client, limit)
		if err != nil {
			return err
		}

		if len(reports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No reports found.")
			return nil
		}
		printReportsTable(cmd.OutOrStdout(), reports)
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/reports/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var rep report.Report
		if err := decodeJSON(resp, &rep); err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), rep, asJSON)
	},
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := deleteReport(cmd.Context(), client, args[0]); err != nil {
			return err
		}
		printSuccess("Deleted report %s", args[0])
		return nil
	},
}

var reportsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Fprint(os.Stderr, "Delete ALL stored reports? [y/N] ")
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Fprintln(os.Stderr, "Aborted.")
				return nil
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		deleted, failures, err := purgeReports(cmd.Context(), client)
		if err != nil {
			return err
		}
		if failures > 0 {
			printWarning("Deleted %d reports, %d failed", deleted, failures)
			return nil
		}
		printSuccess("Deleted %d reports", deleted)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().Int("limit", 20, "maximum number of reports")
	reportsShowCmd.Flags().Bool("json", false, "print the report as JSON")
	reportsPurgeCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
	reportsCmd.AddCommand(reportsPurgeCmd)
}

func listReports(ctx context.Context, client *apiClient, limit int) ([]storage.ReportSummary, error) {
	resp, err := client.get(ctx, fmt.Sprintf("/reports?limit=%d", limit))
	if err != nil {
		return nil, err
	}
	var reports []storage.ReportSummary
	err = decodeJSON(resp, &reports)
	return reports, err
}

func deleteReport(ctx context.Context, client *apiClient, id string) error {
	resp, err := client.delete(ctx, "/reports/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

// purgeReports deletes reports page by page until none are left or a page
// makes no progress. It returns the number deleted and the number that
// could not be deleted.
func purgeReports(ctx context.Context, client *apiClient) (deleted, failures int, err error) {
	failed := make(map[string]bool)
	for {
		reports, err := listReports(ctx, client, 100)
		if err != nil {
			return deleted, failures, err
		}
		progress := false
		for _, r := range reports {
			if failed[r.ID] {
				continue
			}
			if err := deleteReport(ctx, client, r.ID); err != nil {
				printWarning("could not delete %s: %v", r.ID, err)
				failed[r.ID] = true
				failures++
				continue
			}
			deleted++
			progress = true
		}
		if !progress {
			return deleted, failures, nil
		}
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n",
				colorize(color.Bold, k.Key), k.Value, colorize(color.FgHiBlack, "("+k.EnvVar+")"))
		}
		if err := cfg.Validate(); err != nil {
			printWarning("%v", err)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> [value]",
	Short: "Store a secret (API key or token) in the secrets file",
	Long: "Store a secret in the secrets file. The value is read from stdin when omitted.\n" +
		"Environment variables take precedence. Secret keys:\n  " + strings.Join(config.SecretKeys(), "\n  "),
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			fmt.Fprintf(os.Stderr, "%s: ", key)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("reading secret: %w", err)
			}
			value = strings.TrimSpace(line)
		}

		if err := config.SetSecret(key, value); err != nil {
			return err
		}
		if value == "" {
			printSuccess("Removed %s", key)
		} else {
			printSuccess("Stored %s", key)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bloodlens version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bloodlens %s\n", version)
	},
}
