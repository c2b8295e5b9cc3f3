// Package role declares the analysis roles. A role is data: identity,
// objective, the capabilities it may use and how its prompt is rendered.
// The orchestrator executes roles without knowing any of them by name.
package role

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/capability"
)

// NoPriorFindings stands in for the output of a dependency that failed.
const NoPriorFindings = "No prior findings are available: the preceding analysis did not complete."

// ErrInvalidOutput is returned by Validate for empty or refused responses.
var ErrInvalidOutput = analysis.NewKindError("invalid role output", analysis.KindRefused)

// Use names a capability a role may invoke. Optional capabilities degrade to
// a note in the prompt when they fail; required ones fail the role.
type Use struct {
	Name     string
	Required bool
}

// Role is a declarative analysis perspective.
type Role struct {
	ID    string
	Title string
	// Heading titles the role's section in a report.
	Heading        string
	Backstory      string
	Objective      string
	Steps          []string
	ExpectedOutput []string
	Uses           []Use
	// Primary marks the role every report depends on.
	Primary bool
}

// Finding is the outcome of an upstream role as seen by a dependent role.
type Finding struct {
	RoleID string
	Title  string
	Output string
}

// Context is everything a role's prompt is rendered from.
type Context struct {
	Document string
	Query    string
	// Tools maps capability name to its output.
	Tools map[string]string
	// Unavailable lists optional capabilities that failed.
	Unavailable []string
	// Prior holds findings of the roles this one depends on, in graph order.
	Prior []Finding
}

// CapabilityNames returns the names of every capability the role uses.
func (r Role) CapabilityNames() []string {
	return lo.Map(r.Uses, func(u Use, _ int) string { return u.Name })
}

// ArgsFor builds the arguments passed to the named capability.
// document-read receives only the document; heuristics also see prior
// findings so they can react to what upstream roles concluded.
func (r Role) ArgsFor(name string, c Context) capability.Args {
	switch name {
	case capability.DocumentRead:
		return capability.Args{Text: c.Document}
	case capability.WebSearch:
		return capability.Args{Query: "blood test " + c.Query}
	default:
		text := c.Document
		for _, f := range c.Prior {
			text += "\n\n" + f.Output
		}
		return capability.Args{Text: text, Query: c.Query}
	}
}

// System returns the persona preamble sent ahead of the task prompt.
func (r Role) System() string {
	return fmt.Sprintf("You are a %s. %s", r.Title, r.Backstory)
}

// Render builds the role's task prompt.
func (r Role) Render(c Context) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Objective: %s\n\n", strings.ReplaceAll(r.Objective, "{query}", c.Query))
	fmt.Fprintf(&sb, "Patient question: %s\n", c.Query)

	if len(r.Steps) > 0 {
		sb.WriteString("\nTask:\n")
		for i, s := range r.Steps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
		}
	}

	if out, ok := c.Tools[capability.DocumentRead]; ok {
		fmt.Fprintf(&sb, "\n[Blood Test Report]\n%s\n", out)
	}

	for _, f := range c.Prior {
		fmt.Fprintf(&sb, "\n[Findings: %s]\n%s\n", f.Title, f.Output)
	}

	for _, u := range r.Uses {
		if u.Name == capability.DocumentRead {
			continue
		}
		if out, ok := c.Tools[u.Name]; ok {
			fmt.Fprintf(&sb, "\n[Tool: %s]\n%s\n", u.Name, out)
		}
	}
	for _, name := range c.Unavailable {
		fmt.Fprintf(&sb, "\n[Tool: %s]\nUnavailable for this request; rely on the report itself.\n", name)
	}

	if len(r.ExpectedOutput) > 0 {
		sb.WriteString("\nRespond with:\n")
		for _, e := range r.ExpectedOutput {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
	}
	return sb.String()
}

var refusalPrefixes = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot",
	"i can't",
	"i can not",
	"i am unable",
	"i'm unable",
	"i won't",
	"as an ai",
}

// Validate rejects empty output and obvious refusals.
func (r Role) Validate(output string) error {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return fmt.Errorf("%s: %w: empty response", r.ID, ErrInvalidOutput)
	}
	lower := strings.ToLower(trimmed)
	for _, p := range refusalPrefixes {
		if strings.HasPrefix(lower, p) {
			return fmt.Errorf("%s: %w: response is a refusal", r.ID, ErrInvalidOutput)
		}
	}
	return nil
}

// IsInvalidOutput reports whether err came from Validate.
func IsInvalidOutput(err error) bool {
	return errors.Is(err, ErrInvalidOutput)
}
