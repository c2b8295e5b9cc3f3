package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/report"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(nil)
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(all) == 0 || all[0].version != 1 || all[0].file != "migrations/001_reports.sql" {
		t.Fatalf("pending = %+v, want 001_reports.sql first", all)
	}

	versions := make([]int, len(all))
	for i, m := range all {
		versions[i] = m.version
	}
	rest, err := pendingMigrations(versions)
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("pending after applying all = %+v, want none", rest)
	}

	if _, err := parseMigrationVersion("reports.sql"); err == nil {
		t.Error("expected error for a migration name without a version")
	}
}

// TestIndexesExist verifies the migration creates the report indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_reports_created", "idx_reports_status"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func testReport(id string, created time.Time) report.Report {
	return report.Synthesize(report.Input{
		ID:        id,
		Query:     "Explain my glucose level",
		Mode:      analysis.ModeMedicalOnly,
		Document:  "labs.pdf",
		Results:   []analysis.RoleResult{analysis.Succeeded("verifier", "valid", 1), analysis.Succeeded("medical", "glucose high", 1)},
		CreatedAt: created,
	})
}

func TestSaveAndGetReport(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := testReport("rep-001", now)
	if err := s.SaveReport(want); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := s.GetReport("rep-001")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
	if got.Status != want.Status {
		t.Errorf("Status = %q, want %q", got.Status, want.Status)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if len(got.Results) != 2 || got.Results[1].Output != "glucose high" {
		t.Errorf("Results = %+v", got.Results)
	}
	if got.Markdown() != want.Markdown() {
		t.Error("stored report renders differently from the original")
	}
}

func TestSaveReport_Upsert(t *testing.T) {
	s := openTestStore(t)

	rep := testReport("rep-001", time.Now())
	if err := s.SaveReport(rep); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	rep.Query = "updated"
	if err := s.SaveReport(rep); err != nil {
		t.Fatalf("SaveReport (update): %v", err)
	}

	n, err := s.CountReports()
	if err != nil {
		t.Fatalf("CountReports: %v", err)
	}
	if n != 1 {
		t.Errorf("CountReports = %d, want 1", n)
	}
	got, _ := s.GetReport("rep-001")
	if got.Query != "updated" {
		t.Errorf("Query = %q, want updated", got.Query)
	}
}

func TestSaveReport_RequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveReport(report.Report{}); err == nil {
		t.Fatal("expected error for report without ID")
	}
}

func TestGetReportNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetReport("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListReports(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rep := testReport(fmt.Sprintf("rep-%03d", i), base.Add(time.Duration(i)*time.Hour))
		if err := s.SaveReport(rep); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}

	got, err := s.ListReports(3)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "rep-004" || got[2].ID != "rep-002" {
		t.Errorf("order = %s, %s, %s; want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Mode != analysis.ModeMedicalOnly || got[0].Document != "labs.pdf" {
		t.Errorf("summary = %+v", got[0])
	}
}

func TestListReports_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ListReports(10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListReports = %v, want empty non-nil slice", got)
	}
}

func TestDeleteReport(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveReport(testReport("rep-001", time.Now())); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := s.DeleteReport("rep-001"); err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	if _, err := s.GetReport("rep-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteReport("rep-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteReport: err = %v, want ErrNotFound", err)
	}
}
