package storage

import (
	"errors"
	"time"

	"github.com/kalambet/bloodlens/internal/analysis"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReportSummary is a report's listing row. The full report is loaded with
// GetReport.
type ReportSummary struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Document  string             `json:"document"`
	Query     string             `json:"query"`
	Mode      analysis.Mode      `json:"mode"`
	Status    analysis.Status    `json:"status"`
	Error     analysis.ErrorKind `json:"error,omitempty"`
}
