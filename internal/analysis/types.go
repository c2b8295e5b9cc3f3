package analysis

import (
	"fmt"
	"strings"
)

// DefaultQuery is substituted when a request arrives without a query.
const DefaultQuery = "Provide a comprehensive analysis of my blood test report"

// Mode selects which roles run for a request.
type Mode string

const (
	ModeComprehensive Mode = "comprehensive"
	ModeMedicalOnly   Mode = "medical_only"
)

// Modes lists every supported analysis mode.
func Modes() []Mode {
	return []Mode{ModeComprehensive, ModeMedicalOnly}
}

// Document is an uploaded file. Its bytes live for one request only.
type Document struct {
	Name string
	Data []byte
}

// Request is one analysis request. Construct it with NewRequest so the
// query and mode defaults are applied.
type Request struct {
	Query    string
	Mode     Mode
	Document Document
}

// NewRequest trims the query, substitutes DefaultQuery for an empty one and
// defaults the mode to comprehensive. The mode itself is not validated here;
// the task graph builder rejects unknown modes.
func NewRequest(doc Document, query string, mode string) Request {
	q := strings.TrimSpace(query)
	if q == "" {
		q = DefaultQuery
	}
	m := Mode(strings.TrimSpace(mode))
	if m == "" {
		m = ModeComprehensive
	}
	return Request{Query: q, Mode: m, Document: doc}
}

// ResultStatus is the outcome of a single role.
type ResultStatus string

const (
	ResultOK     ResultStatus = "ok"
	ResultFailed ResultStatus = "failed"
)

// RoleResult records what happened when a role executed.
// Output is set iff Status is ok; Error is set iff Status is failed.
type RoleResult struct {
	RoleID   string       `json:"role_id"`
	Status   ResultStatus `json:"status"`
	Output   string       `json:"output,omitempty"`
	Error    ErrorKind    `json:"error,omitempty"`
	Attempts int          `json:"attempts"`
}

// OK reports whether the role succeeded.
func (r RoleResult) OK() bool { return r.Status == ResultOK }

// Succeeded builds an ok result.
func Succeeded(roleID, output string, attempts int) RoleResult {
	return RoleResult{RoleID: roleID, Status: ResultOK, Output: output, Attempts: attempts}
}

// Failed builds a failed result.
func Failed(roleID string, kind ErrorKind, attempts int) RoleResult {
	return RoleResult{RoleID: roleID, Status: ResultFailed, Error: kind, Attempts: attempts}
}

func (r RoleResult) String() string {
	if r.OK() {
		return fmt.Sprintf("%s: ok", r.RoleID)
	}
	return fmt.Sprintf("%s: failed (%s)", r.RoleID, r.Error)
}

// Status is the overall outcome of a report.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)
