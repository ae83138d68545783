// Package ledger is the SQLite system of record for every pipeline
// decision: imports, filter verdicts, scores, analyses, rendered resumes
// and application lifecycle transitions. Rows are versioned so a re-run
// with changed rules appends rather than overwrites.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/tzheng/jobpilot/internal/content"
	"github.com/tzheng/jobpilot/internal/job"
)

// RuleModel tags rows produced by the deterministic scorer in the scores
// relation, alongside model-produced rows.
const RuleModel = "rules"

// Ledger wraps the SQLite database.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the ledger database and applies the
// schema. WAL keeps concurrent readers cheap; the busy timeout covers the
// serialized writes of parallel pipeline workers.
func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %q: %w", path, err)
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			source TEXT,
			url TEXT,
			title TEXT NOT NULL,
			title_norm TEXT NOT NULL,
			company TEXT NOT NULL,
			company_norm TEXT NOT NULL,
			location TEXT,
			description TEXT,
			posted_date TEXT,
			scraped_at TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS filter_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			passed INTEGER NOT NULL,
			reason TEXT,
			filter_version TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(job_id, filter_version)
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			model TEXT NOT NULL,
			score REAL NOT NULL,
			recommendation TEXT NOT NULL,
			detail TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(job_id, model)
		)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			model TEXT NOT NULL,
			scoring_json TEXT NOT NULL,
			spec_json TEXT,
			validation_passed INTEGER,
			validation_errors TEXT,
			validation_warnings TEXT,
			failure_kind TEXT,
			failure_reason TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(job_id, model)
		)`,
		`CREATE TABLE IF NOT EXISTS resumes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			path TEXT NOT NULL,
			rendered_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(job_id)
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			applied_at TEXT NOT NULL DEFAULT (datetime('now')),
			note TEXT,
			UNIQUE(job_id)
		)`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			note TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_company_norm ON jobs(company_norm)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	}

	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("applying ledger schema: %w", err)
		}
	}
	return nil
}

// UpsertJob records an imported job. Re-importing the same posting keeps
// the existing row and its status.
func (l *Ledger) UpsertJob(ctx context.Context, j *job.Record) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source, url, title, title_norm, company, company_norm,
			location, description, posted_date, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			url = excluded.url,
			description = excluded.description,
			scraped_at = excluded.scraped_at`,
		j.ID, j.Source, j.URL, j.Title, NormalizeTitle(j.Title),
		j.Company, NormalizeCompany(j.Company),
		j.Location, j.Description, j.PostedDate, j.ScrapedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting job %s: %w", j.ID, err)
	}
	return nil
}

// Status returns the job's current lifecycle status.
func (l *Ledger) Status(ctx context.Context, jobID string) (Status, error) {
	var s string
	err := l.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("job %s is not in the ledger", jobID)
	}
	if err != nil {
		return "", fmt.Errorf("reading status of %s: %w", jobID, err)
	}
	return Status(s), nil
}

// RecordFilterResult stores one filter verdict. The (job, filter version)
// pair is unique: re-running with the same ruleset overwrites its own row,
// a changed ruleset version appends a new one.
func (l *Ledger) RecordFilterResult(ctx context.Context, jobID string, passed bool, reason, version string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO filter_results (job_id, passed, reason, filter_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id, filter_version) DO UPDATE SET
			passed = excluded.passed,
			reason = excluded.reason,
			created_at = datetime('now')`,
		jobID, boolInt(passed), reason, version,
	)
	if err != nil {
		return fmt.Errorf("recording filter result for %s: %w", jobID, err)
	}
	return nil
}

// RecordScore stores a score row keyed by (job, model); the rule scorer
// writes under RuleModel, AI scoring under the model name.
func (l *Ledger) RecordScore(ctx context.Context, jobID, model string, score float64, recommendation string, detail any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshaling score detail for %s: %w", jobID, err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO scores (job_id, model, score, recommendation, detail)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id, model) DO UPDATE SET
			score = excluded.score,
			recommendation = excluded.recommendation,
			detail = excluded.detail,
			created_at = datetime('now')`,
		jobID, model, score, recommendation, string(detailJSON),
	)
	if err != nil {
		return fmt.Errorf("recording score for %s: %w", jobID, err)
	}
	return nil
}

// RecordAnalysis stores the model scoring, the content spec and the
// validation outcome for one (job, model) pair.
func (l *Ledger) RecordAnalysis(ctx context.Context, jobID, model string, scoring any, spec *content.Spec, validation *content.Result) error {
	scoringJSON, err := json.Marshal(scoring)
	if err != nil {
		return fmt.Errorf("marshaling scoring for %s: %w", jobID, err)
	}

	var specJSON []byte
	if spec != nil {
		if specJSON, err = json.Marshal(spec); err != nil {
			return fmt.Errorf("marshaling spec for %s: %w", jobID, err)
		}
	}

	var passed any
	var errsJSON, warnsJSON []byte
	if validation != nil {
		passed = boolInt(validation.Passed)
		if errsJSON, err = json.Marshal(validation.Errors); err != nil {
			return fmt.Errorf("marshaling validation errors for %s: %w", jobID, err)
		}
		if warnsJSON, err = json.Marshal(validation.Warnings); err != nil {
			return fmt.Errorf("marshaling validation warnings for %s: %w", jobID, err)
		}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO analyses (job_id, model, scoring_json, spec_json,
			validation_passed, validation_errors, validation_warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, model) DO UPDATE SET
			scoring_json = excluded.scoring_json,
			spec_json = excluded.spec_json,
			validation_passed = excluded.validation_passed,
			validation_errors = excluded.validation_errors,
			validation_warnings = excluded.validation_warnings,
			failure_kind = NULL,
			failure_reason = NULL,
			created_at = datetime('now')`,
		jobID, model, string(scoringJSON), nullableString(specJSON),
		passed, nullableString(errsJSON), nullableString(warnsJSON),
	)
	if err != nil {
		return fmt.Errorf("recording analysis for %s: %w", jobID, err)
	}
	return nil
}

// RecordAnalysisFailure stores why the model call for a (job, model) pair
// did not produce a usable analysis, so status and a later retry can see
// where the job stalled. A subsequent successful RecordAnalysis clears it.
func (l *Ledger) RecordAnalysisFailure(ctx context.Context, jobID, model, kind, reason string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO analyses (job_id, model, scoring_json, failure_kind, failure_reason)
		VALUES (?, ?, '{}', ?, ?)
		ON CONFLICT(job_id, model) DO UPDATE SET
			failure_kind = excluded.failure_kind,
			failure_reason = excluded.failure_reason,
			created_at = datetime('now')`,
		jobID, model, kind, reason,
	)
	if err != nil {
		return fmt.Errorf("recording analysis failure for %s: %w", jobID, err)
	}
	return nil
}

// RecordResume marks the job's resume artifact as rendered.
func (l *Ledger) RecordResume(ctx context.Context, jobID, path string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO resumes (job_id, path)
		VALUES (?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			path = excluded.path,
			rendered_at = datetime('now')`,
		jobID, path,
	)
	if err != nil {
		return fmt.Errorf("recording resume for %s: %w", jobID, err)
	}
	return nil
}

// RecordTransition moves a job through the lifecycle graph. The status
// read, the graph check, the update, the audit row and the application
// row all happen in one transaction: committed fully or not at all.
func (l *Ledger) RecordTransition(ctx context.Context, jobID string, to Status, note string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transition for %s: %w", jobID, err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s is not in the ledger", jobID)
	}
	if err != nil {
		return fmt.Errorf("reading status of %s: %w", jobID, err)
	}

	from := Status(current)
	if !IsTransitionAllowed(from, to) {
		return fmt.Errorf("transition %s -> %s is not allowed for job %s", from, to, jobID)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(to), jobID); err != nil {
		return fmt.Errorf("updating status of %s: %w", jobID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transitions (job_id, from_status, to_status, note) VALUES (?, ?, ?, ?)`,
		jobID, string(from), string(to), note,
	); err != nil {
		return fmt.Errorf("recording transition for %s: %w", jobID, err)
	}

	if to == StatusApplied {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO applications (job_id, note) VALUES (?, ?)
			ON CONFLICT(job_id) DO UPDATE SET
				applied_at = datetime('now'),
				note = excluded.note`,
			jobID, note,
		); err != nil {
			return fmt.Errorf("recording application for %s: %w", jobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transition for %s: %w", jobID, err)
	}

	l.logger.Info("status transition",
		zap.String("job_id", jobID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// Match is one prior posting related to the job under consideration.
type Match struct {
	JobID   string
	Title   string
	Company string
	Status  Status
}

// FindRepostMatches returns earlier postings by the same employer with a
// token-set-equal title that were already applied to. Advisory only.
func (l *Ledger) FindRepostMatches(ctx context.Context, jobID string) ([]Match, error) {
	return l.findMatches(ctx, jobID, []string{
		string(StatusApplied), string(StatusInterview), string(StatusOffer),
	})
}

// FindRejectionMatches returns earlier rejected postings matching this
// job's employer and normalized title.
func (l *Ledger) FindRejectionMatches(ctx context.Context, jobID string) ([]Match, error) {
	return l.findMatches(ctx, jobID, []string{string(StatusRejected)})
}

func (l *Ledger) findMatches(ctx context.Context, jobID string, statuses []string) ([]Match, error) {
	var titleNorm, companyNorm string
	err := l.db.QueryRowContext(ctx,
		`SELECT title_norm, company_norm FROM jobs WHERE id = ?`, jobID,
	).Scan(&titleNorm, &companyNorm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s is not in the ledger", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", jobID, err)
	}

	query := `SELECT id, title, company, status FROM jobs
		WHERE id != ? AND company_norm = ? AND title_norm = ? AND status IN (`
	args := []any{jobID, companyNorm, titleNorm}
	for i, s := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, s)
	}
	query += `) ORDER BY created_at`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches for %s: %w", jobID, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var status string
		if err := rows.Scan(&m.JobID, &m.Title, &m.Company, &status); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		m.Status = Status(status)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// FunnelStats summarizes the pipeline funnel for the status command.
type FunnelStats struct {
	Total      int
	Filtered   int
	Passed     int
	Analyzed   int
	Validated  int
	Rendered   int
	Applied    int
	Interviews int
	Offers     int
	Rejected   int
}

// Funnel computes the funnel counts.
func (l *Ledger) Funnel(ctx context.Context) (*FunnelStats, error) {
	stats := &FunnelStats{}
	queries := []struct {
		dst   *int
		query string
	}{
		{&stats.Total, `SELECT COUNT(*) FROM jobs`},
		{&stats.Filtered, `SELECT COUNT(DISTINCT job_id) FROM filter_results WHERE passed = 0`},
		{&stats.Passed, `SELECT COUNT(DISTINCT job_id) FROM filter_results WHERE passed = 1`},
		{&stats.Analyzed, `SELECT COUNT(DISTINCT job_id) FROM analyses WHERE failure_kind IS NULL`},
		{&stats.Validated, `SELECT COUNT(DISTINCT job_id) FROM analyses WHERE validation_passed = 1`},
		{&stats.Rendered, `SELECT COUNT(*) FROM resumes`},
		{&stats.Applied, `SELECT COUNT(*) FROM jobs WHERE status IN ('applied', 'interview', 'offer')`},
		{&stats.Interviews, `SELECT COUNT(*) FROM jobs WHERE status IN ('interview', 'offer')`},
		{&stats.Offers, `SELECT COUNT(*) FROM jobs WHERE status = 'offer'`},
		{&stats.Rejected, `SELECT COUNT(*) FROM jobs WHERE status = 'rejected'`},
	}
	for _, q := range queries {
		if err := l.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("computing funnel stats: %w", err)
		}
	}
	return stats, nil
}

// RejectionBreakdown counts filter rejections by reason for the status
// command.
func (l *Ledger) RejectionBreakdown(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT reason, COUNT(*) FROM filter_results
		WHERE passed = 0 GROUP BY reason ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying rejection breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[string]int)
	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("scanning rejection row: %w", err)
		}
		breakdown[reason] = count
	}
	return breakdown, rows.Err()
}

// FailureBreakdown counts stalled analyses by error kind for the status
// command.
func (l *Ledger) FailureBreakdown(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT failure_kind, COUNT(*) FROM analyses
		WHERE failure_kind IS NOT NULL GROUP BY failure_kind ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying failure breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scanning failure row: %w", err)
		}
		breakdown[kind] = count
	}
	return breakdown, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
