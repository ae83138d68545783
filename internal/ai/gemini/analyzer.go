package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/tzheng/jobpilot/internal/ai"
	"github.com/tzheng/jobpilot/internal/content"
	"github.com/tzheng/jobpilot/internal/evidence"
	"github.com/tzheng/jobpilot/internal/job"
	"github.com/tzheng/jobpilot/internal/scoring"
	"github.com/tzheng/jobpilot/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength   = 200
	defaultMaxDescription = 6000
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Analyzer scores a job and drafts the tailored content spec in a single
// model call, so the scoring and the draft always saw the same evidence.
type Analyzer struct {
	generator  contentGenerator
	lib        *evidence.Library
	thresholds scoring.Thresholds
	logger     *zap.Logger
	maxLogLen  int
	maxJDLen   int
}

func NewAnalyzer(generator contentGenerator, lib *evidence.Library, thresholds scoring.Thresholds, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		generator:  generator,
		lib:        lib,
		thresholds: thresholds,
		logger:     logger,
		maxLogLen:  defaultMaxLogLength,
		maxJDLen:   defaultMaxDescription,
	}
}

func (a *Analyzer) Model() string { return a.generator.Model() }

// modelResponse is the wire shape the prompt asks for.
type modelResponse struct {
	Scoring ai.Scoring `json:"scoring"`
	Resume  struct {
		Bio         string `json:"bio"`
		Experiences []struct {
			Company   string   `json:"company"`
			Location  string   `json:"location"`
			Title     string   `json:"title"`
			Period    string   `json:"period"`
			BulletIDs []string `json:"bullet_ids"`
		} `json:"experiences"`
		Projects []struct {
			Title     string   `json:"title"`
			Period    string   `json:"period"`
			BulletIDs []string `json:"bullet_ids"`
		} `json:"projects"`
		Skills []content.SkillGroup `json:"skills"`
	} `json:"tailored_resume"`
}

// Analyze builds the evidence-grounded prompt, calls the model once, and
// resolves the answer into an Analysis. A response citing a bullet id the
// library does not know is rejected outright.
func (a *Analyzer) Analyze(ctx context.Context, j *job.Record) (*ai.Analysis, error) {
	if j == nil {
		return nil, fmt.Errorf("job is required")
	}

	prompt, err := a.buildPrompt(j)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("gemini analyze request",
		zap.String("job_id", j.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("gemini analyze response",
		zap.String("job_id", j.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	var resp modelResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, ai.NewError(ai.KindParse, err)
	}

	spec, err := a.resolveSpec(&resp)
	if err != nil {
		return nil, err
	}

	return &ai.Analysis{
		JobID:   j.ID,
		Model:   a.generator.Model(),
		Scoring: resp.Scoring,
		Spec:    spec,
		Raw:     raw,
	}, nil
}

// resolveSpec turns bullet id references into verified bullet text. An
// unknown id means the model invented evidence; nothing is rendered from
// such a response.
func (a *Analyzer) resolveSpec(resp *modelResponse) (*content.Spec, error) {
	spec := &content.Spec{Bio: strings.TrimSpace(resp.Resume.Bio), Skills: resp.Resume.Skills}

	resolve := func(owner string, ids []string) ([]string, error) {
		bullets := make([]string, 0, len(ids))
		for _, id := range ids {
			b, ok := a.lib.BulletByID(id)
			if !ok {
				return nil, ai.NewError(ai.KindBlocked,
					fmt.Errorf("response for %q cites unknown bullet id %q", owner, id))
			}
			bullets = append(bullets, b.Content)
		}
		return bullets, nil
	}

	for _, e := range resp.Resume.Experiences {
		bullets, err := resolve(e.Company, e.BulletIDs)
		if err != nil {
			return nil, err
		}
		spec.Experiences = append(spec.Experiences, content.ExperienceEntry{
			Company:   e.Company,
			Location:  e.Location,
			Title:     e.Title,
			Period:    e.Period,
			BulletIDs: e.BulletIDs,
			Bullets:   bullets,
		})
	}

	for _, p := range resp.Resume.Projects {
		bullets, err := resolve(p.Title, p.BulletIDs)
		if err != nil {
			return nil, err
		}
		spec.Projects = append(spec.Projects, content.ProjectEntry{
			Title:     p.Title,
			Period:    p.Period,
			BulletIDs: p.BulletIDs,
			Bullets:   bullets,
		})
	}

	return spec, nil
}

func (a *Analyzer) buildPrompt(j *job.Record) (string, error) {
	posting := *j
	if utf8.RuneCountInString(posting.Description) > a.maxJDLen {
		posting.Description = utils.TruncateForLog(posting.Description, a.maxJDLen)
	}
	jobJSON, err := json.MarshalIndent(&posting, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job:\n{{JOB_JSON}}\n\nEvidence:\n{{EVIDENCE}}\n\nJSON Response:"
	}

	replacements := map[string]string{
		"{{JOB_JSON}}":            string(jobJSON),
		"{{EVIDENCE}}":            a.evidenceBlock(),
		"{{SKILL_CONTEXT}}":       a.skillBlock(j.Description),
		"{{TITLE_CONTEXT}}":       a.titleBlock(),
		"{{BIO_CONSTRAINTS}}":     a.bioBlock(),
		"{{THRESHOLD_APPLY_NOW}}": fmt.Sprintf("%.1f", a.thresholds.ApplyNow),
		"{{THRESHOLD_APPLY}}":     fmt.Sprintf("%.1f", a.thresholds.Apply),
		"{{THRESHOLD_MAYBE}}":     fmt.Sprintf("%.1f", a.thresholds.Maybe),
	}

	prompt := template
	for placeholder, value := range replacements {
		prompt = strings.ReplaceAll(prompt, placeholder, value)
	}
	return prompt, nil
}

func (a *Analyzer) evidenceBlock() string {
	var b strings.Builder

	keys := make([]string, 0, len(a.lib.Experiences))
	for k := range a.lib.Experiences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		exp := a.lib.Experiences[k]
		fmt.Fprintf(&b, "## %s (%s, %s)\n", exp.Company, exp.Location, exp.Period)
		for _, bl := range exp.Bullets {
			fmt.Fprintf(&b, "- [%s] %s\n", bl.ID, bl.Content)
		}
		b.WriteString("\n")
	}

	keys = keys[:0]
	for k := range a.lib.Projects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := a.lib.Projects[k]
		fmt.Fprintf(&b, "## Project: %s (%s)\n", p.Title, p.Period)
		for _, bl := range p.Bullets {
			fmt.Fprintf(&b, "- [%s] %s\n", bl.ID, bl.Content)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

func (a *Analyzer) skillBlock(jobDescription string) string {
	var b strings.Builder

	b.WriteString("Verified skills:\n")
	cats := make([]string, 0, len(a.lib.SkillTiers.Verified))
	for c := range a.lib.SkillTiers.Verified {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(&b, "- %s: %s\n", c, strings.Join(a.lib.SkillTiers.Verified[c], ", "))
	}

	activated := a.lib.ActivatedTransferable(jobDescription)
	if len(activated) > 0 {
		b.WriteString("\nTransferable skills this posting activates (state the basis honestly):\n")
		for _, t := range activated {
			fmt.Fprintf(&b, "- %s (basis: %s)\n", t.Skill, t.Basis)
		}
	}

	if len(a.lib.AllowedSkillCategories) > 0 {
		fmt.Fprintf(&b, "\nAllowed skill categories: %s\n", strings.Join(a.lib.AllowedSkillCategories, ", "))
	}

	return strings.TrimSpace(b.String())
}

func (a *Analyzer) titleBlock() string {
	if len(a.lib.TitleOptions) == 0 {
		return "No employer-specific title constraints."
	}

	keys := make([]string, 0, len(a.lib.TitleOptions))
	for k := range a.lib.TitleOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		titles := a.lib.TitleOptions[k]
		names := make([]string, 0, len(titles))
		for _, t := range titles {
			names = append(names, t)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(names, " | "))
	}
	return strings.TrimSpace(b.String())
}

func (a *Analyzer) bioBlock() string {
	bc := a.lib.BioConstraints
	var b strings.Builder

	if bc.MaxYearsClaim > 0 {
		fmt.Fprintf(&b, "- Claim at most %d years of experience (%s).\n", bc.MaxYearsClaim, bc.YearsClaimScope)
	}
	if len(bc.BannedPhrases) > 0 {
		fmt.Fprintf(&b, "- Never use: %s.\n", strings.Join(bc.BannedPhrases, ", "))
	}
	for _, r := range bc.ExtraRules {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	if b.Len() == 0 {
		return "No additional bio constraints."
	}
	return strings.TrimSpace(b.String())
}
