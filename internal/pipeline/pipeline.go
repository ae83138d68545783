// Package pipeline wires the stages together: filter, score, analyze,
// validate, render, with every decision recorded in the ledger.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tzheng/jobpilot/internal/ai"
	"github.com/tzheng/jobpilot/internal/content"
	"github.com/tzheng/jobpilot/internal/filtering"
	"github.com/tzheng/jobpilot/internal/job"
	"github.com/tzheng/jobpilot/internal/ledger"
	"github.com/tzheng/jobpilot/internal/render"
	"github.com/tzheng/jobpilot/internal/scoring"
)

// Stage names reported in outcomes, in pipeline order.
const (
	StageInput    = "input"
	StageFiltered = "filtered"
	StageScored   = "scored"
	StageAnalyzed = "analyzed"
	StageBlocked  = "blocked"
	StageRendered = "rendered"
)

// Config tunes the batch runner.
type Config struct {
	Workers         int           `mapstructure:"workers"`
	MinAnalyzeScore float64       `mapstructure:"min_analyze_score"`
	AnalyzeTimeout  time.Duration `mapstructure:"analyze_timeout"`
	CallsPerMinute  float64       `mapstructure:"calls_per_minute"`
	OutputDir       string        `mapstructure:"output_dir"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = 2 * time.Minute
	}
	if c.CallsPerMinute <= 0 {
		c.CallsPerMinute = 10
	}
	return c
}

// Outcome is the terminal state of one job in one run. Err is set for
// failures; a job stopping at a filter or score gate is not a failure.
type Outcome struct {
	JobID      string
	Stage      string
	Filter     *filtering.Result
	Score      *scoring.Result
	Analysis   *ai.Analysis
	Validation *content.Result
	Artifact   string
	Err        error
}

// Pipeline runs jobs through the full funnel.
type Pipeline struct {
	runID     string
	led       *ledger.Ledger
	engine    *filtering.Engine
	scorer    *scoring.Scorer
	analyzer  ai.Analyzer
	validator *content.Validator
	renderer  render.Renderer
	limiter   *rate.Limiter
	logger    *zap.Logger
	cfg       Config
}

func New(led *ledger.Ledger, engine *filtering.Engine, scorer *scoring.Scorer,
	analyzer ai.Analyzer, validator *content.Validator, renderer render.Renderer,
	cfg Config, logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	runID := uuid.NewString()

	return &Pipeline{
		runID:     runID,
		led:       led,
		engine:    engine,
		scorer:    scorer,
		analyzer:  analyzer,
		validator: validator,
		renderer:  renderer,
		limiter:   rate.NewLimiter(rate.Limit(cfg.CallsPerMinute/60.0), 1),
		logger:    logger.With(zap.String("run_id", runID)),
		cfg:       cfg,
	}
}

// RunID identifies this pipeline instance in logs and reports.
func (p *Pipeline) RunID() string { return p.runID }

// Process runs one job through every stage it qualifies for. All ledger
// writes for the job happen here, in order.
func (p *Pipeline) Process(ctx context.Context, j *job.Record) *Outcome {
	out := &Outcome{Stage: StageInput}
	if err := j.Validate(); err != nil {
		out.Err = err
		return out
	}
	out.JobID = j.ID

	if err := p.led.UpsertJob(ctx, j); err != nil {
		out.Err = err
		return out
	}

	fr := p.engine.Evaluate(j)
	out.Filter = &fr
	if err := p.led.RecordFilterResult(ctx, j.ID, fr.Passed, fr.Reason, fr.Version); err != nil {
		out.Err = err
		return out
	}
	if !fr.Passed {
		out.Stage = StageFiltered
		p.skipIfPending(ctx, j.ID, "filter: "+fr.Reason)
		return out
	}

	sr := p.scorer.Score(j)
	out.Score = &sr
	if err := p.led.RecordScore(ctx, j.ID, ledger.RuleModel, sr.Score, sr.Recommendation, sr.Breakdown); err != nil {
		out.Err = err
		return out
	}
	if sr.Recommendation == scoring.RecommendSkip || sr.Score < p.cfg.MinAnalyzeScore {
		out.Stage = StageScored
		p.skipIfPending(ctx, j.ID, fmt.Sprintf("score %.1f (%s)", sr.Score, sr.Recommendation))
		return out
	}

	p.logAdvisories(ctx, j)

	if err := p.limiter.Wait(ctx); err != nil {
		out.Stage = StageScored
		out.Err = err
		return out
	}

	analyzeCtx, cancel := context.WithTimeout(ctx, p.cfg.AnalyzeTimeout)
	analysis, err := p.analyzer.Analyze(analyzeCtx, j)
	cancel()
	if err != nil {
		out.Stage = StageScored
		out.Err = err
		kind := ai.KindOf(err)
		p.logger.Warn("analysis failed",
			zap.String("job_id", j.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if recErr := p.led.RecordAnalysisFailure(ctx, j.ID, p.analyzer.Model(), string(kind), err.Error()); recErr != nil {
			p.logger.Warn("recording analysis failure failed",
				zap.String("job_id", j.ID), zap.Error(recErr))
		}
		return out
	}
	out.Analysis = analysis
	out.Stage = StageAnalyzed

	if err := p.led.RecordScore(ctx, j.ID, analysis.Model, analysis.Scoring.OverallScore, analysis.Scoring.Recommendation, analysis.Scoring); err != nil {
		out.Err = err
		return out
	}

	validation := p.validator.Validate(analysis.Spec)
	out.Validation = &validation
	if err := p.led.RecordAnalysis(ctx, j.ID, analysis.Model, analysis.Scoring, validation.Spec, &validation); err != nil {
		out.Err = err
		return out
	}
	for _, w := range validation.Warnings {
		p.logger.Warn("validation warning", zap.String("job_id", j.ID), zap.String("warning", w))
	}
	if !validation.Passed {
		out.Stage = StageBlocked
		p.logger.Warn("content spec blocked",
			zap.String("job_id", j.ID),
			zap.Strings("errors", validation.Errors),
		)
		return out
	}

	path, err := p.renderer.Render(ctx, j, validation.Spec)
	if err != nil {
		out.Err = fmt.Errorf("rendering %s: %w", j.ID, err)
		return out
	}
	if err := p.led.RecordResume(ctx, j.ID, path); err != nil {
		out.Err = err
		return out
	}

	out.Artifact = path
	out.Stage = StageRendered
	return out
}

// skipIfPending moves a gated job to skipped. Jobs already past pending
// (e.g. applied on an earlier run) keep their status.
func (p *Pipeline) skipIfPending(ctx context.Context, jobID, note string) {
	status, err := p.led.Status(ctx, jobID)
	if err != nil || status != ledger.StatusPending {
		return
	}
	if err := p.led.RecordTransition(ctx, jobID, ledger.StatusSkipped, note); err != nil {
		p.logger.Warn("skip transition failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// logAdvisories surfaces prior contact with this employer/role before the
// model call: a repost of something already applied to, or a role the
// candidate was rejected for. Advisory only, the run continues.
func (p *Pipeline) logAdvisories(ctx context.Context, j *job.Record) {
	if reposts, err := p.led.FindRepostMatches(ctx, j.ID); err == nil && len(reposts) > 0 {
		for _, m := range reposts {
			p.logger.Warn("looks like a repost of an application in flight",
				zap.String("job_id", j.ID),
				zap.String("prior_job_id", m.JobID),
				zap.String("prior_status", string(m.Status)),
			)
		}
	}
	if rejections, err := p.led.FindRejectionMatches(ctx, j.ID); err == nil && len(rejections) > 0 {
		for _, m := range rejections {
			p.logger.Warn("same employer rejected a matching application before",
				zap.String("job_id", j.ID),
				zap.String("prior_job_id", m.JobID),
			)
		}
	}
}

// Batch runs independent jobs on a fixed worker pool. Outcomes are
// returned in completion order. Cancelling the context stops dispatch;
// in-flight jobs finish their ledger writes so the store stays coherent.
func (p *Pipeline) Batch(ctx context.Context, jobs []*job.Record) []*Outcome {
	work := make(chan *job.Record)
	results := make(chan *Outcome, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range work {
				results <- p.Process(ctx, j)
			}
		}()
	}

dispatch:
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case work <- j:
		}
	}
	close(work)
	wg.Wait()
	close(results)

	outcomes := make([]*Outcome, 0, len(jobs))
	for out := range results {
		outcomes = append(outcomes, out)
	}

	p.logger.Info("batch finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("processed", len(outcomes)),
	)
	return outcomes
}
