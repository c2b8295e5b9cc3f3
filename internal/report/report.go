// Package report turns ordered role results into the final analysis report.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/role"
)

// Disclaimer is attached to every report, whatever its status.
const Disclaimer = "This analysis is for educational purposes only and should not replace professional medical advice. " +
	"Please consult with your healthcare provider for medical decisions."

// Section is one titled block of the report, one per executed role.
type Section struct {
	RoleID string                `json:"role_id"`
	Title  string                `json:"title"`
	Status analysis.ResultStatus `json:"status"`
	Body   string                `json:"body"`
}

// Report is the user-facing outcome of an analysis request.
type Report struct {
	ID         string                `json:"id"`
	Status     analysis.Status       `json:"status"`
	Error      analysis.ErrorKind    `json:"error,omitempty"`
	Query      string                `json:"query"`
	Mode       analysis.Mode         `json:"mode"`
	Document   string                `json:"document"`
	Results    []analysis.RoleResult `json:"results"`
	Sections   []Section             `json:"sections"`
	Disclaimer string                `json:"disclaimer"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Input carries everything Synthesize needs. Results must be in execution
// order. Error is set when the request failed before any role ran.
type Input struct {
	ID        string
	Query     string
	Mode      analysis.Mode
	Document  string
	Results   []analysis.RoleResult
	Error     analysis.ErrorKind
	CreatedAt time.Time
}

// Synthesize builds the report. It is a pure function of in.
func Synthesize(in Input) Report {
	results := append([]analysis.RoleResult{}, in.Results...)
	r := Report{
		ID:         in.ID,
		Status:     status(in.Error, results),
		Error:      in.Error,
		Query:      in.Query,
		Mode:       in.Mode,
		Document:   in.Document,
		Results:    results,
		Sections:   lo.Map(results, func(res analysis.RoleResult, _ int) Section { return section(res) }),
		Disclaimer: Disclaimer,
		CreatedAt:  in.CreatedAt.UTC(),
	}
	return r
}

// status is failed when the request failed up front or the primary role did
// not succeed, partial when any other role failed, success otherwise.
func status(reqErr analysis.ErrorKind, results []analysis.RoleResult) analysis.Status {
	if reqErr != "" {
		return analysis.StatusFailed
	}
	primaryOK := false
	anyFailed := false
	for _, res := range results {
		r, err := role.Lookup(res.RoleID)
		if err == nil && r.Primary {
			primaryOK = res.OK()
		}
		if !res.OK() {
			anyFailed = true
		}
	}
	switch {
	case !primaryOK:
		return analysis.StatusFailed
	case anyFailed:
		return analysis.StatusPartial
	default:
		return analysis.StatusSuccess
	}
}

func section(res analysis.RoleResult) Section {
	title := res.RoleID
	if r, err := role.Lookup(res.RoleID); err == nil && r.Heading != "" {
		title = r.Heading
	}
	body := strings.TrimSpace(res.Output)
	if !res.OK() {
		body = "Not available. " + res.Error.Describe()
	}
	return Section{RoleID: res.RoleID, Title: title, Status: res.Status, Body: body}
}

// Summary is a one-line description used in listings and logs.
func (r Report) Summary() string {
	ok := lo.CountBy(r.Results, func(res analysis.RoleResult) bool { return res.OK() })
	s := fmt.Sprintf("%s: %d/%d sections", r.Status, ok, len(r.Results))
	if r.Error != "" {
		s += " (" + string(r.Error) + ")"
	}
	return s
}

// Markdown renders the report as Markdown. Output depends only on r.
func (r Report) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# Blood Test Analysis\n\n")
	if r.Document != "" {
		fmt.Fprintf(&sb, "- **Document:** %s\n", r.Document)
	}
	fmt.Fprintf(&sb, "- **Question:** %s\n", r.Query)
	fmt.Fprintf(&sb, "- **Analysis type:** %s\n", r.Mode)
	fmt.Fprintf(&sb, "- **Status:** %s\n", r.Status)
	if r.ID != "" {
		fmt.Fprintf(&sb, "- **Report ID:** %s\n", r.ID)
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Created:** %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	}

	if r.Error != "" {
		fmt.Fprintf(&sb, "\n> %s\n", r.Error.Describe())
	}

	for _, s := range r.Sections {
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", s.Title, s.Body)
	}

	fmt.Fprintf(&sb, "\n---\n\n_%s_\n", r.Disclaimer)
	return sb.String()
}
