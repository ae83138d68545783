// Package render hands validated content specs to whatever produces the
// final application document. The shipped implementation writes a JSON
// artifact; a PDF toolchain can replace it behind the same interface.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tzheng/jobpilot/internal/content"
	"github.com/tzheng/jobpilot/internal/job"
)

// Renderer turns a validated spec into an artifact and returns its path.
type Renderer interface {
	Render(ctx context.Context, j *job.Record, spec *content.Spec) (string, error)
}

// JSONRenderer writes the spec plus job metadata as a JSON file under Dir.
type JSONRenderer struct {
	Dir    string
	logger *zap.Logger
}

func NewJSONRenderer(dir string, logger *zap.Logger) *JSONRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONRenderer{Dir: dir, logger: logger}
}

type artifact struct {
	JobID      string        `json:"job_id"`
	Company    string        `json:"company"`
	Title      string        `json:"title"`
	URL        string        `json:"url,omitempty"`
	RenderedAt time.Time     `json:"rendered_at"`
	Spec       *content.Spec `json:"spec"`
}

// Render writes the artifact and returns its path. The filename is a slug
// of company and title plus the job id, so re-renders overwrite their own
// artifact and never a neighbor's.
func (r *JSONRenderer) Render(ctx context.Context, j *job.Record, spec *content.Spec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if spec == nil {
		return "", fmt.Errorf("cannot render job %s: spec is nil", j.ID)
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir %q: %w", r.Dir, err)
	}

	path := filepath.Join(r.Dir, fmt.Sprintf("%s_%s_%s.json", Slugify(j.Company), Slugify(j.Title), j.ID))

	data, err := json.MarshalIndent(artifact{
		JobID:      j.ID,
		Company:    j.Company,
		Title:      j.Title,
		URL:        j.URL,
		RenderedAt: time.Now().UTC(),
		Spec:       spec,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling artifact for %s: %w", j.ID, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact for %s: %w", j.ID, err)
	}

	r.logger.Info("artifact rendered", zap.String("job_id", j.ID), zap.String("path", path))
	return path, nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and replaces everything non-alphanumeric with single
// underscores.
func Slugify(s string) string {
	s = slugRe.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(s, "_")
}
