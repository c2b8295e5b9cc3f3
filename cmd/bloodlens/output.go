package main

import (
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/storage"
)

func colorize(attr color.Attribute, text string) string {
	if noColor {
		return text
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(text)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(color.FgGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(color.FgRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(color.FgYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(color.Bold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func statusColor(s analysis.Status) color.Attribute {
	switch s {
	case analysis.StatusSuccess:
		return color.FgGreen
	case analysis.StatusPartial:
		return color.FgYellow
	default:
		return color.FgRed
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func printReportsTable(w io.Writer, reports []storage.ReportSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Created", "Document", "Mode", "Status", "Query"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	for _, r := range reports {
		table.Append([]string{
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			truncate(r.Document, 24),
			string(r.Mode),
			colorize(statusColor(r.Status), string(r.Status)),
			truncate(r.Query, 48),
		})
	}
	table.Render()
}
