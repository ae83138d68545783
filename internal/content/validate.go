package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tzheng/jobpilot/internal/evidence"
)

// Severity of the years-overclaim check.
const (
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Config tunes the validator. Zero values fall back to the defaults used
// by the original resume checks.
type Config struct {
	MinExperiences          int    `mapstructure:"min_experiences"`
	MinSkillCategories      int    `mapstructure:"min_skill_categories"`
	MinBulletsPerExperience int    `mapstructure:"min_bullets_per_experience"`
	YearsClaimSeverity      string `mapstructure:"years_claim_severity"`
}

func (c Config) withDefaults() Config {
	if c.MinExperiences == 0 {
		c.MinExperiences = 2
	}
	if c.MinSkillCategories == 0 {
		c.MinSkillCategories = 3
	}
	if c.MinBulletsPerExperience == 0 {
		c.MinBulletsPerExperience = 1
	}
	if c.YearsClaimSeverity == "" {
		c.YearsClaimSeverity = SeverityWarn
	}
	return c
}

// Result is the outcome of one validation run. Spec is the corrected copy
// with banned-phrase fixes applied; the input spec is never touched.
type Result struct {
	Passed   bool              `json:"passed"`
	Errors   []string          `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Fixes    map[string]string `json:"fixes,omitempty"`
	Spec     *Spec             `json:"spec"`
}

// Validator is the deterministic gate between generation and rendering.
// Every claim in a spec must be licensed by the evidence library; anything
// the library excludes or does not allow blocks the render.
type Validator struct {
	lib    *evidence.Library
	cfg    Config
	logger *zap.Logger
}

func NewValidator(lib *evidence.Library, cfg Config, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{lib: lib, cfg: cfg.withDefaults(), logger: logger}
}

var yearsClaimRe = regexp.MustCompile(`(\d+)\+?\s*years?`)

// Validate checks a spec against the evidence library. The same spec and
// library always produce the same result, and re-validating the corrected
// spec yields no further fixes.
func (v *Validator) Validate(spec *Spec) Result {
	res := Result{Fixes: map[string]string{}}
	if spec == nil {
		res.Errors = append(res.Errors, "content spec is nil")
		return res
	}
	out := spec.Clone()
	res.Spec = out

	v.checkBio(out, &res)
	v.checkTitles(out, &res)
	v.checkSkills(out, &res)
	v.checkStructure(out, &res)

	res.Passed = len(res.Errors) == 0
	if len(res.Fixes) == 0 {
		res.Fixes = nil
	}
	v.logger.Debug("content spec validated",
		zap.Bool("passed", res.Passed),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res
}

// checkBio rewrites banned phrases that have a replacement rule (recorded
// as fixes), warns about banned phrases without one, and checks the years
// claim against the library bound. Phrasing problems never block a spec.
func (v *Validator) checkBio(out *Spec, res *Result) {
	bc := v.lib.BioConstraints

	for _, r := range bc.Replacements {
		if r.Phrase == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(r.Phrase))
		if err != nil {
			continue
		}
		if !re.MatchString(out.Bio) {
			continue
		}
		out.Bio = re.ReplaceAllLiteralString(out.Bio, r.With)
		res.Fixes[r.Phrase] = r.With
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("bio: replaced banned phrase %q with %q", r.Phrase, r.With))
	}

	for _, phrase := range bc.BannedPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(strings.ToLower(out.Bio), strings.ToLower(phrase)) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("bio: contains banned phrase %q (no auto-replacement)", phrase))
		}
	}

	if bc.MaxYearsClaim > 0 {
		for _, m := range yearsClaimRe.FindAllStringSubmatch(out.Bio, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= bc.MaxYearsClaim {
				continue
			}
			msg := fmt.Sprintf("bio: claims %d years, evidence supports at most %d", n, bc.MaxYearsClaim)
			if v.cfg.YearsClaimSeverity == SeverityError {
				res.Errors = append(res.Errors, msg)
			} else {
				res.Warnings = append(res.Warnings, msg)
			}
		}
	}
}

// checkTitles enforces the per-employer title constraint. Titles are never
// auto-fixed: picking a different title is a content decision.
func (v *Validator) checkTitles(out *Spec, res *Result) {
	for _, e := range out.Experiences {
		allowed, constrained := v.lib.AllowedTitles(e.Company)
		if !constrained {
			continue
		}
		ok := false
		for _, t := range allowed {
			if strings.EqualFold(t, e.Title) {
				ok = true
				break
			}
		}
		if !ok {
			res.Errors = append(res.Errors,
				fmt.Sprintf("experience %q: title %q is not in the allowed set %v", e.Company, e.Title, allowed))
		}
	}
}

// stripParenthetical normalizes "Python (pandas)" to "python" for the
// duplicate check.
func stripParenthetical(skill string) string {
	if idx := strings.IndexByte(skill, '('); idx != -1 {
		skill = skill[:idx]
	}
	return strings.ToLower(strings.TrimSpace(skill))
}

func (v *Validator) checkSkills(out *Spec, res *Result) {
	allowedCategory := make(map[string]struct{}, len(v.lib.AllowedSkillCategories))
	for _, c := range v.lib.AllowedSkillCategories {
		allowedCategory[strings.ToLower(c)] = struct{}{}
	}

	seen := map[string]string{} // normalized skill -> first category
	for _, g := range out.Skills {
		if len(allowedCategory) > 0 {
			if _, ok := allowedCategory[strings.ToLower(g.Category)]; !ok {
				res.Errors = append(res.Errors,
					fmt.Sprintf("skills: category %q is not on the allowed list", g.Category))
			}
		}

		for _, skill := range g.Skills {
			if v.lib.TierOf(skill) == evidence.TierExcluded {
				res.Errors = append(res.Errors,
					fmt.Sprintf("skills: %q in category %q is excluded by the evidence library", skill, g.Category))
			}

			norm := stripParenthetical(skill)
			if norm == "" {
				continue
			}
			if first, dup := seen[norm]; dup {
				if first == g.Category {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("skills: %q appears more than once in %q", skill, g.Category))
				} else {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("skills: %q appears in both %q and %q", skill, first, g.Category))
				}
				continue
			}
			seen[norm] = g.Category
		}
	}
}

func (v *Validator) checkStructure(out *Spec, res *Result) {
	if len(out.Experiences) < v.cfg.MinExperiences {
		res.Errors = append(res.Errors,
			fmt.Sprintf("structure: %d experiences, need at least %d", len(out.Experiences), v.cfg.MinExperiences))
	}
	if len(out.Skills) < v.cfg.MinSkillCategories {
		res.Errors = append(res.Errors,
			fmt.Sprintf("structure: %d skill categories, need at least %d", len(out.Skills), v.cfg.MinSkillCategories))
	}
	for _, e := range out.Experiences {
		if len(e.Bullets) < v.cfg.MinBulletsPerExperience {
			res.Errors = append(res.Errors,
				fmt.Sprintf("structure: experience %q has %d bullets, need at least %d",
					e.Company, len(e.Bullets), v.cfg.MinBulletsPerExperience))
		}
		if strings.TrimSpace(e.Location) == "" {
			res.Errors = append(res.Errors,
				fmt.Sprintf("structure: experience %q has no location", e.Company))
		}
	}
}
