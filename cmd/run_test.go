package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadJobsWrappedAndBare(t *testing.T) {
	wrapped := writeFile(t, "wrapped.json", `{"jobs": [
		{"id": "a1", "title": "Data Engineer", "company": "Acme"}
	]}`)
	bare := writeFile(t, "bare.json", `[
		{"id": "b1", "title": "Platform Engineer", "company": "Other"}
	]`)

	jobs, err := loadJobs([]string{wrapped, bare})
	if err != nil {
		t.Fatalf("loadJobs: %v", err)
	}
	if jobs.Len() != 2 {
		t.Fatalf("jobs = %d, want 2", jobs.Len())
	}
}

func TestLoadJobsEmptyWrapper(t *testing.T) {
	path := writeFile(t, "empty.json", `{"jobs": []}`)

	jobs, err := loadJobs([]string{path})
	if err != nil {
		t.Fatalf("loadJobs: %v", err)
	}
	if jobs.Len() != 0 {
		t.Fatalf("jobs = %d, want 0", jobs.Len())
	}
}

func TestLoadJobsDerivesIDFromURL(t *testing.T) {
	path := writeFile(t, "jobs.json", `[
		{"url": "https://example.com/jobs/1?utm=x", "title": "Data Engineer", "company": "Acme"}
	]`)

	jobs, err := loadJobs([]string{path})
	if err != nil {
		t.Fatalf("loadJobs: %v", err)
	}
	if jobs.Len() != 1 || jobs.Items[0].ID == "" {
		t.Fatalf("jobs = %+v", jobs.Items)
	}
	if jobs.Items[0].ScrapedAt.IsZero() {
		t.Fatal("scraped_at must be defaulted")
	}
}

func TestLoadJobsDeduplicates(t *testing.T) {
	path := writeFile(t, "jobs.json", `[
		{"id": "a1", "title": "Data Engineer", "company": "Acme"},
		{"id": "a1", "title": "Data Engineer", "company": "Acme"}
	]`)

	jobs, err := loadJobs([]string{path})
	if err != nil {
		t.Fatalf("loadJobs: %v", err)
	}
	if jobs.Len() != 1 {
		t.Fatalf("jobs = %d, want 1 after dedupe", jobs.Len())
	}
}

func TestLoadJobsRejectsRecordWithoutIDOrURL(t *testing.T) {
	path := writeFile(t, "jobs.json", `[{"title": "Data Engineer", "company": "Acme"}]`)
	if _, err := loadJobs([]string{path}); err == nil {
		t.Fatal("expected error")
	}
}
