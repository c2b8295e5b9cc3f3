// Package pipeline runs one analysis request end to end: extract the
// document once, walk the task graph layer by layer, and hand the ordered
// role results to the report synthesizer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/capability"
	"github.com/kalambet/bloodlens/internal/reasoning"
	"github.com/kalambet/bloodlens/internal/report"
	"github.com/kalambet/bloodlens/internal/role"
	"github.com/kalambet/bloodlens/internal/taskgraph"
)

const (
	defaultRoleTimeout = 60 * time.Second
	defaultMaxRetries  = 2
	defaultBackoff     = 500 * time.Millisecond
)

// Extractor turns uploaded bytes into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Options tunes execution. Zero values select defaults.
type Options struct {
	// RoleTimeout bounds each reasoning attempt.
	RoleTimeout time.Duration
	// MaxRetries is the number of extra attempts after a transient failure
	// or timeout. Zero selects the default; negative disables retries.
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
	// Concurrent runs roles in the same graph layer in parallel.
	Concurrent bool

	// NewID and Now stamp reports. Defaults: uuid.NewString and time.Now.
	NewID func() string
	Now   func() time.Time
}

// Orchestrator executes analysis requests. It holds only read-only
// collaborators, so one instance serves concurrent requests.
type Orchestrator struct {
	extractor Extractor
	registry  *capability.Registry
	reasoner  reasoning.Reasoner
	opts      Options
}

// New creates an Orchestrator.
func New(extractor Extractor, registry *capability.Registry, reasoner reasoning.Reasoner, opts Options) *Orchestrator {
	if opts.RoleTimeout <= 0 {
		opts.RoleTimeout = defaultRoleTimeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		extractor: extractor,
		registry:  registry,
		reasoner:  reasoner,
		opts:      opts,
	}
}

// Run executes req. An unknown mode is returned as an error wrapping
// taskgraph.ErrUnknownMode. An unreadable document yields a failed report
// with no role results. If ctx is cancelled, Run returns ctx.Err() and
// discards partial results.
func (o *Orchestrator) Run(ctx context.Context, req analysis.Request) (report.Report, error) {
	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}
	start := time.Now()

	graph, err := taskgraph.Build(req.Mode)
	if err != nil {
		return report.Report{}, err
	}

	text, err := o.extractor.Extract(ctx, req.Document.Data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report.Report{}, ctxErr
		}
		slog.Warn("document unreadable", "document", req.Document.Name, "error", err)
		return o.synthesize(req, nil, analysis.KindUnreadableDocument), nil
	}

	x := &execution{
		o:       o,
		text:    text,
		query:   req.Query,
		results: make(map[string]analysis.RoleResult, graph.Len()),
	}
	var ordered []analysis.RoleResult
	for _, layer := range graph.Layers() {
		out := x.runLayer(ctx, layer)
		if err := ctx.Err(); err != nil {
			return report.Report{}, err
		}
		for _, res := range out {
			x.results[res.RoleID] = res
			ordered = append(ordered, res)
		}
	}

	rep := o.synthesize(req, ordered, "")
	slog.Info("analysis complete",
		"id", rep.ID,
		"mode", req.Mode,
		"status", rep.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rep, nil
}

func (o *Orchestrator) synthesize(req analysis.Request, results []analysis.RoleResult, kind analysis.ErrorKind) report.Report {
	return report.Synthesize(report.Input{
		ID:        o.opts.NewID(),
		Query:     req.Query,
		Mode:      req.Mode,
		Document:  req.Document.Name,
		Results:   results,
		Error:     kind,
		CreatedAt: o.opts.Now(),
	})
}

// execution is the per-request state. results is written only between
// layers, so roles in one layer may read it concurrently.
type execution struct {
	o       *Orchestrator
	text    string
	query   string
	results map[string]analysis.RoleResult
}

func (x *execution) runLayer(ctx context.Context, layer []taskgraph.Step) []analysis.RoleResult {
	out := make([]analysis.RoleResult, len(layer))
	if !x.o.opts.Concurrent || len(layer) == 1 {
		for i, step := range layer {
			out[i] = x.runRole(ctx, step)
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range layer {
		g.Go(func() error {
			out[i] = x.runRole(gctx, step)
			return nil
		})
	}
	g.Wait()
	return out
}

func (x *execution) runRole(ctx context.Context, step taskgraph.Step) analysis.RoleResult {
	r := step.Role
	rc := role.Context{
		Document: x.text,
		Query:    x.query,
		Tools:    make(map[string]string, len(r.Uses)),
		Prior:    x.prior(step.DependsOn),
	}

	for _, u := range r.Uses {
		c, err := x.o.registry.Resolve(u.Name)
		if err != nil {
			slog.Error("role references unregistered capability", "role", r.ID, "capability", u.Name)
			if u.Required {
				return analysis.Failed(r.ID, analysis.KindCapabilityError, 0)
			}
			rc.Unavailable = append(rc.Unavailable, u.Name)
			continue
		}

		out, err := capability.Invoke(ctx, c, r.ArgsFor(u.Name, rc))
		if err != nil {
			if ctx.Err() != nil {
				return analysis.Failed(r.ID, analysis.KindOf(ctx.Err()), 0)
			}
			if u.Required {
				slog.Warn("required capability failed", "role", r.ID, "capability", u.Name, "error", err)
				return analysis.Failed(r.ID, analysis.KindCapabilityError, 0)
			}
			slog.Warn("optional capability unavailable", "role", r.ID, "capability", u.Name, "error", err)
			rc.Unavailable = append(rc.Unavailable, u.Name)
			continue
		}
		rc.Tools[u.Name] = out
	}

	prompt := reasoning.Prompt{System: r.System(), User: r.Render(rc)}
	return x.reason(ctx, r, prompt)
}

// prior collects upstream findings, substituting a placeholder for
// dependencies that failed.
func (x *execution) prior(deps []string) []role.Finding {
	findings := make([]role.Finding, 0, len(deps))
	for _, id := range deps {
		res := x.results[id]
		out := res.Output
		if !res.OK() {
			out = role.NoPriorFindings
		}
		title := id
		if dr, err := role.Lookup(id); err == nil {
			title = dr.Title
		}
		findings = append(findings, role.Finding{RoleID: id, Title: title, Output: out})
	}
	return findings
}

// reason calls the reasoner, retrying transient failures and timeouts with
// exponential backoff. Refusals and invalid output are not retried.
func (x *execution) reason(ctx context.Context, r role.Role, p reasoning.Prompt) analysis.RoleResult {
	opts := x.o.opts
	var (
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		attempts++
		out, err := x.attempt(ctx, p)
		if err == nil {
			if err = r.Validate(out); err == nil {
				if attempts > 1 {
					slog.Debug("role succeeded after retry", "role", r.ID, "attempts", attempts)
				}
				return analysis.Succeeded(r.ID, strings.TrimSpace(out), attempts)
			}
			lastErr = err
			break
		}

		lastErr = err
		if ctx.Err() != nil || !reasoning.IsRetryable(err) {
			break
		}
		if attempt < opts.MaxRetries {
			backoff := time.Duration(float64(opts.Backoff) * math.Pow(2, float64(attempt)))
			slog.Debug("retrying role", "role", r.ID, "attempt", attempts, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return analysis.Failed(r.ID, analysis.KindOf(ctx.Err()), attempts)
			case <-time.After(backoff):
			}
		}
	}

	kind := analysis.KindOf(lastErr)
	slog.Warn("role failed", "role", r.ID, "attempts", attempts, "kind", kind, "error", lastErr)
	return analysis.Failed(r.ID, kind, attempts)
}

func (x *execution) attempt(ctx context.Context, p reasoning.Prompt) (string, error) {
	actx, cancel := context.WithTimeout(ctx, x.o.opts.RoleTimeout)
	defer cancel()

	out, err := x.o.reasoner.Reason(actx, p)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("role timed out after %s: %w", x.o.opts.RoleTimeout, context.DeadlineExceeded)
	}
	return out, err
}
