package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/role"
)

var created = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func input(results ...analysis.RoleResult) Input {
	return Input{
		ID:        "r-1",
		Query:     "Is my glucose ok?",
		Mode:      analysis.ModeComprehensive,
		Document:  "labs.pdf",
		Results:   results,
		CreatedAt: created,
	}
}

func TestSynthesize_Status(t *testing.T) {
	ok := func(id string) analysis.RoleResult { return analysis.Succeeded(id, id+" findings", 1) }
	fail := func(id string) analysis.RoleResult { return analysis.Failed(id, analysis.KindTransient, 3) }

	tests := []struct {
		name string
		in   Input
		want analysis.Status
	}{
		{"all ok", input(ok(role.Verifier), ok(role.Medical), ok(role.Nutrition), ok(role.Exercise)), analysis.StatusSuccess},
		{"nutrition failed", input(ok(role.Verifier), ok(role.Medical), fail(role.Nutrition), ok(role.Exercise)), analysis.StatusPartial},
		{"verifier failed", input(fail(role.Verifier), ok(role.Medical)), analysis.StatusPartial},
		{"medical failed", input(ok(role.Verifier), fail(role.Medical), ok(role.Nutrition)), analysis.StatusFailed},
		{"no results", input(), analysis.StatusFailed},
		{"request error", func() Input {
			in := input()
			in.Error = analysis.KindUnreadableDocument
			return in
		}(), analysis.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Synthesize(tt.in).Status; got != tt.want {
				t.Errorf("Status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesize_Sections(t *testing.T) {
	r := Synthesize(input(
		analysis.Succeeded(role.Medical, "  Glucose is high.\n", 1),
		analysis.Failed(role.Nutrition, analysis.KindCapabilityError, 1),
	))

	if len(r.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(r.Sections))
	}
	if r.Sections[0].Title != "Medical Analysis" || r.Sections[0].Body != "Glucose is high." {
		t.Errorf("section 0 = %+v", r.Sections[0])
	}
	s := r.Sections[1]
	if s.Status != analysis.ResultFailed {
		t.Errorf("section 1 status = %q", s.Status)
	}
	if !strings.Contains(s.Body, analysis.KindCapabilityError.Describe()) {
		t.Errorf("failed section body = %q, want capability error description", s.Body)
	}
	if r.Disclaimer != Disclaimer {
		t.Errorf("Disclaimer = %q", r.Disclaimer)
	}
}

func TestSynthesize_Idempotent(t *testing.T) {
	in := input(
		analysis.Succeeded(role.Verifier, "Valid report.", 1),
		analysis.Succeeded(role.Medical, "Glucose is high.", 2),
	)
	a, err := json.Marshal(Synthesize(in))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(Synthesize(in))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("Synthesize is not deterministic:\n%s\n%s", a, b)
	}
	if Synthesize(in).Markdown() != Synthesize(in).Markdown() {
		t.Error("Markdown is not deterministic")
	}
}

func TestSynthesize_DoesNotAliasResults(t *testing.T) {
	results := []analysis.RoleResult{analysis.Succeeded(role.Medical, "x", 1)}
	r := Synthesize(input(results...))
	results[0].Output = "changed"
	if r.Results[0].Output != "x" {
		t.Error("report shares the caller's results slice")
	}
}

func TestMarkdown(t *testing.T) {
	in := input(analysis.Succeeded(role.Medical, "Glucose is high.", 1))
	in.Error = ""
	md := Synthesize(in).Markdown()

	for _, want := range []string{
		"# Blood Test Analysis",
		"**Document:** labs.pdf",
		"**Status:** success",
		"**Created:** 2025-03-14T09:30:00Z",
		"## Medical Analysis\n\nGlucose is high.",
		Disclaimer,
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdown_RequestError(t *testing.T) {
	in := input()
	in.Error = analysis.KindUnreadableDocument
	md := Synthesize(in).Markdown()
	if !strings.Contains(md, analysis.KindUnreadableDocument.Describe()) {
		t.Errorf("markdown missing error description:\n%s", md)
	}
	if !strings.Contains(md, Disclaimer) {
		t.Error("failed report must still carry the disclaimer")
	}
}

func TestSummary(t *testing.T) {
	r := Synthesize(input(
		analysis.Succeeded(role.Verifier, "ok", 1),
		analysis.Succeeded(role.Medical, "ok", 1),
		analysis.Failed(role.Exercise, analysis.KindTimeout, 3),
	))
	if got, want := r.Summary(), "partial: 2/3 sections"; got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
