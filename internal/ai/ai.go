// Package ai defines the analyzer contract and the error taxonomy the
// pipeline dispatches on. Concrete model backends live in subpackages.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tzheng/jobpilot/internal/content"
	"github.com/tzheng/jobpilot/internal/job"
)

// Scoring is the model's fit assessment for one job.
type Scoring struct {
	OverallScore    float64 `json:"overall_score"`
	SkillMatch      float64 `json:"skill_match"`
	ExperienceFit   float64 `json:"experience_fit"`
	GrowthPotential float64 `json:"growth_potential"`
	Recommendation  string  `json:"recommendation"`
	Reasoning       string  `json:"reasoning"`
}

// Analysis is the full result of one model call: fit scoring plus the
// tailored content spec, produced together so they cannot disagree about
// which evidence was considered.
type Analysis struct {
	JobID   string        `json:"job_id"`
	Model   string        `json:"model"`
	Scoring Scoring       `json:"scoring"`
	Spec    *content.Spec `json:"spec"`
	Raw     string        `json:"-"`
}

// Analyzer produces an analysis for a job, or an error classified by
// Kind. Implementations must be safe for concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, j *job.Record) (*Analysis, error)
	Model() string
}

// Kind classifies a generation failure so callers can decide whether to
// retry, surface, or skip.
type Kind string

const (
	// KindTransient covers rate limits, timeouts and connection drops;
	// retrying later can succeed.
	KindTransient Kind = "transient"
	// KindParse means the model answered but the payload was not usable;
	// retrying the same prompt is pointless.
	KindParse Kind = "parse"
	// KindBlocked means generation itself succeeded but the result must
	// not be used (e.g. it cites evidence that does not exist).
	KindBlocked Kind = "blocked"
)

// Error wraps a generation failure with its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the generation kind from an error chain; unclassified
// errors report KindTransient so callers stay conservative.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}
