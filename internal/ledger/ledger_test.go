package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tzheng/jobpilot/internal/job"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func addJob(t *testing.T, l *Ledger, id, title, company string) {
	t.Helper()
	err := l.UpsertJob(context.Background(), &job.Record{
		ID:        id,
		Title:     title,
		Company:   company,
		ScrapedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertJob(%s): %v", id, err)
	}
}

func TestUpsertJobKeepsStatusOnReimport(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	addJob(t, l, "j1", "Data Engineer", "Acme")
	if err := l.RecordTransition(ctx, "j1", StatusApplied, ""); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}

	addJob(t, l, "j1", "Data Engineer", "Acme")

	status, err := l.Status(ctx, "j1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != StatusApplied {
		t.Fatalf("status = %s, want applied after re-import", status)
	}
}

func TestRecordTransitionGraph(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	addJob(t, l, "j1", "Data Engineer", "Acme")

	for _, to := range []Status{StatusApplied, StatusInterview, StatusOffer} {
		if err := l.RecordTransition(ctx, "j1", to, ""); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	// Offer is terminal.
	if err := l.RecordTransition(ctx, "j1", StatusApplied, ""); err == nil {
		t.Fatal("expected offer -> applied to be rejected")
	}
}

func TestRecordTransitionInvalidLeavesStatusUntouched(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	addJob(t, l, "j1", "Data Engineer", "Acme")

	if err := l.RecordTransition(ctx, "j1", StatusOffer, ""); err == nil {
		t.Fatal("expected pending -> offer to be rejected")
	}

	status, err := l.Status(ctx, "j1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("status = %s, want pending", status)
	}
}

func TestSkippedCanBeReconsidered(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	addJob(t, l, "j1", "Data Engineer", "Acme")

	if err := l.RecordTransition(ctx, "j1", StatusSkipped, "low score"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if err := l.RecordTransition(ctx, "j1", StatusApplied, "changed my mind"); err != nil {
		t.Fatalf("skipped -> applied: %v", err)
	}
}

func TestFilterResultsVersioned(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	addJob(t, l, "j1", "Data Engineer", "Acme")

	if err := l.RecordFilterResult(ctx, "j1", false, "experience_too_high", "1.0"); err != nil {
		t.Fatalf("RecordFilterResult: %v", err)
	}
	if err := l.RecordFilterResult(ctx, "j1", true, "", "2.0"); err != nil {
		t.Fatalf("RecordFilterResult v2: %v", err)
	}

	var count int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM filter_results WHERE job_id = 'j1'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("filter_results rows = %d, want 2 (one per version)", count)
	}

	breakdown, err := l.RejectionBreakdown(ctx)
	if err != nil {
		t.Fatalf("RejectionBreakdown: %v", err)
	}
	if breakdown["experience_too_high"] != 1 {
		t.Fatalf("breakdown = %v", breakdown)
	}
}

func TestFindRepostMatchesTokenSetTitle(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	addJob(t, l, "old", "Data Engineer - Enterprise", "Acme B.V.")
	if err := l.RecordTransition(ctx, "old", StatusApplied, ""); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	addJob(t, l, "new", "Enterprise Data Engineer", "Acme")
	addJob(t, l, "other", "Frontend Engineer", "Acme")

	matches, err := l.FindRepostMatches(ctx, "new")
	if err != nil {
		t.Fatalf("FindRepostMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].JobID != "old" {
		t.Fatalf("matches = %+v, want the reworded repost", matches)
	}

	// Nothing rejected yet.
	rejections, err := l.FindRejectionMatches(ctx, "new")
	if err != nil {
		t.Fatalf("FindRejectionMatches: %v", err)
	}
	if len(rejections) != 0 {
		t.Fatalf("rejections = %+v", rejections)
	}
}

func TestFindRejectionMatches(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	addJob(t, l, "old", "Data Engineer", "Acme")
	if err := l.RecordTransition(ctx, "old", StatusRejected, "after interview"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	addJob(t, l, "new", "Data Engineer", "Acme")

	matches, err := l.FindRejectionMatches(ctx, "new")
	if err != nil {
		t.Fatalf("FindRejectionMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Status != StatusRejected {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestFunnel(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	addJob(t, l, "j1", "Data Engineer", "Acme")
	addJob(t, l, "j2", "Java Architect", "Acme")

	if err := l.RecordFilterResult(ctx, "j1", true, "", "1.0"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordFilterResult(ctx, "j2", false, "wrong_tech_stack", "1.0"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordScore(ctx, "j1", RuleModel, 7.5, "APPLY_NOW", nil); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordTransition(ctx, "j1", StatusApplied, ""); err != nil {
		t.Fatal(err)
	}

	stats, err := l.Funnel(ctx)
	if err != nil {
		t.Fatalf("Funnel: %v", err)
	}
	if stats.Total != 2 || stats.Passed != 1 || stats.Filtered != 1 || stats.Applied != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRecordAnalysisFailureTracked(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	addJob(t, l, "j1", "Data Engineer", "Acme")

	if err := l.RecordAnalysisFailure(ctx, "j1", "gemini-pro", "transient", "rate limited"); err != nil {
		t.Fatalf("RecordAnalysisFailure: %v", err)
	}

	failures, err := l.FailureBreakdown(ctx)
	if err != nil {
		t.Fatalf("FailureBreakdown: %v", err)
	}
	if failures["transient"] != 1 {
		t.Fatalf("failures = %v", failures)
	}

	// A failed analysis does not count as analyzed.
	stats, err := l.Funnel(ctx)
	if err != nil {
		t.Fatalf("Funnel: %v", err)
	}
	if stats.Analyzed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRecordAnalysisClearsEarlierFailure(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	addJob(t, l, "j1", "Data Engineer", "Acme")

	if err := l.RecordAnalysisFailure(ctx, "j1", "gemini-pro", "parse", "bad json"); err != nil {
		t.Fatalf("RecordAnalysisFailure: %v", err)
	}
	if err := l.RecordAnalysis(ctx, "j1", "gemini-pro", map[string]any{"overall_score": 8.0}, nil, nil); err != nil {
		t.Fatalf("RecordAnalysis: %v", err)
	}

	failures, err := l.FailureBreakdown(ctx)
	if err != nil {
		t.Fatalf("FailureBreakdown: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("failures = %v, want cleared", failures)
	}

	stats, err := l.Funnel(ctx)
	if err != nil {
		t.Fatalf("Funnel: %v", err)
	}
	if stats.Analyzed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("Applied "); err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if _, err := ParseStatus("ghosted"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct{ a, b string }{
		{"Data Engineer - Enterprise", "Enterprise Data Engineer"},
		{"Senior Data Engineer (m/f/d)", "senior DATA engineer m f d"},
	}
	for _, c := range cases {
		if NormalizeTitle(c.a) != NormalizeTitle(c.b) {
			t.Fatalf("%q and %q should normalize equal", c.a, c.b)
		}
	}
	if NormalizeTitle("Data Engineer") == NormalizeTitle("Data Scientist") {
		t.Fatal("different roles must not collide")
	}
}

func TestNormalizeCompany(t *testing.T) {
	if NormalizeCompany("Acme B.V.") != NormalizeCompany("acme") {
		t.Fatal("legal suffix should be stripped")
	}
}
