// Package evidence holds the verified-fact library: the only source of
// claims a generated resume is allowed to make. The library is authored
// offline, loaded once, and read-only for the rest of the run.
package evidence

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier classifies a skill string for generation purposes.
type Tier string

const (
	// TierVerified skills may always be asserted.
	TierVerified Tier = "verified"
	// TierTransferable skills may be asserted only when the job
	// description references them.
	TierTransferable Tier = "transferable"
	// TierExcluded skills must never appear in generated output.
	TierExcluded Tier = "excluded"
	// TierUnknown marks a skill the library does not know about.
	TierUnknown Tier = "unknown"
)

// Bullet is a single verified achievement the model may cite by id.
type Bullet struct {
	ID            string   `yaml:"id"`
	Content       string   `yaml:"content"`
	Tech          []string `yaml:"tech"`
	RoleFit       []string `yaml:"role_fit"`
	Defensibility string   `yaml:"defensibility"`
}

// Experience is one employment entry with its allowed titles and bullets.
type Experience struct {
	Company  string            `yaml:"company"`
	Location string            `yaml:"location"`
	Period   string            `yaml:"period"`
	Titles   map[string]string `yaml:"titles"`
	Bullets  []Bullet          `yaml:"verified_bullets"`
}

// Project is a personal or academic project entry.
type Project struct {
	Title   string   `yaml:"title"`
	Period  string   `yaml:"period"`
	Bullets []Bullet `yaml:"verified_bullets"`
}

// TransferableSkill is assertable only when the job description activates
// it; Basis records the honest grounds for the claim.
type TransferableSkill struct {
	Skill     string `yaml:"skill"`
	WriteWhen string `yaml:"write_when"`
	Basis     string `yaml:"basis"`
	RampUp    string `yaml:"ramp_up"`
}

// SkillTiers partitions every known skill into exactly one tier.
type SkillTiers struct {
	Verified     map[string][]string `yaml:"verified"`
	Transferable []TransferableSkill `yaml:"transferable"`
	Excluded     []string            `yaml:"excluded"`
}

// Replacement is a single banned-phrase rewrite rule. Rules are applied in
// order, once each, never recursively.
type Replacement struct {
	Phrase string `yaml:"phrase"`
	With   string `yaml:"with"`
}

// BioConstraints bound what the generated bio may say.
type BioConstraints struct {
	MaxYearsClaim   int           `yaml:"max_years_claim"`
	YearsClaimScope string        `yaml:"years_claim_scope"`
	BannedPhrases   []string      `yaml:"banned_phrases"`
	Replacements    []Replacement `yaml:"replacements"`
	ExtraRules      []string      `yaml:"extra_rules"`
}

// Library is the in-memory evidence store. Construct with Load; do not
// mutate after that.
type Library struct {
	Experiences            map[string]Experience        `yaml:"work_experience"`
	Projects               map[string]Project           `yaml:"projects"`
	SkillTiers             SkillTiers                   `yaml:"skill_tiers"`
	TitleOptions           map[string]map[string]string `yaml:"title_options"`
	BioConstraints         BioConstraints               `yaml:"bio_constraints"`
	AllowedSkillCategories []string                     `yaml:"allowed_skill_categories"`

	bulletIndex map[string]Bullet
}

// Load reads and indexes the evidence library file.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading evidence library %q: %w", path, err)
	}

	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parsing evidence library %q: %w", path, err)
	}

	if err := lib.buildIndex(); err != nil {
		return nil, err
	}

	return &lib, nil
}

func (l *Library) buildIndex() error {
	l.bulletIndex = make(map[string]Bullet)

	add := func(owner string, bullets []Bullet) error {
		for _, b := range bullets {
			if strings.TrimSpace(b.ID) == "" {
				return fmt.Errorf("evidence entry under %q has a bullet without an id", owner)
			}
			if _, exists := l.bulletIndex[b.ID]; exists {
				return fmt.Errorf("duplicate bullet id %q", b.ID)
			}
			l.bulletIndex[b.ID] = b
		}
		return nil
	}

	for key, exp := range l.Experiences {
		if err := add(key, exp.Bullets); err != nil {
			return err
		}
	}
	for key, proj := range l.Projects {
		if err := add(key, proj.Bullets); err != nil {
			return err
		}
	}
	return nil
}

// BulletByID resolves a bullet id to its verified content.
func (l *Library) BulletByID(id string) (Bullet, bool) {
	b, ok := l.bulletIndex[id]
	return b, ok
}

// BulletCount reports how many verified bullets the library indexes.
func (l *Library) BulletCount() int { return len(l.bulletIndex) }

// TierOf resolves a skill string to its tier. Excluded entries match by
// substring so "Kotlin (basics)" still trips an excluded "kotlin" entry;
// verified and transferable entries match whole skills.
func (l *Library) TierOf(skill string) Tier {
	s := strings.ToLower(strings.TrimSpace(skill))
	if s == "" {
		return TierUnknown
	}

	for _, ex := range l.SkillTiers.Excluded {
		if ex != "" && strings.Contains(s, strings.ToLower(ex)) {
			return TierExcluded
		}
	}

	for _, skills := range l.SkillTiers.Verified {
		for _, v := range skills {
			if strings.ToLower(v) == s {
				return TierVerified
			}
		}
	}

	for _, t := range l.SkillTiers.Transferable {
		if strings.ToLower(t.Skill) == s {
			return TierTransferable
		}
	}

	return TierUnknown
}

// companyKey normalizes an employer name the same way title_options keys
// are written: lowercase with underscores.
func companyKey(company string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(company)), " ", "_")
}

// AllowedTitles returns the enumerated title set for an employer, or ok
// false when the library carries no constraint for it. Key matching is
// bidirectional substring so "GLP Technology (Shanghai)" finds the
// "glp_technology" entry. Keys are scanned in sorted order so overlapping
// entries resolve to the same one on every call.
func (l *Library) AllowedTitles(company string) ([]string, bool) {
	norm := companyKey(company)
	if norm == "" {
		return nil, false
	}

	keys := make([]string, 0, len(l.TitleOptions))
	for key := range l.TitleOptions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.Contains(norm, key) && !strings.Contains(key, norm) {
			continue
		}
		titles := l.TitleOptions[key]
		set := make(map[string]struct{}, len(titles))
		for _, t := range titles {
			set[t] = struct{}{}
		}
		allowed := make([]string, 0, len(set))
		for t := range set {
			allowed = append(allowed, t)
		}
		sort.Strings(allowed)
		return allowed, true
	}

	return nil, false
}

var wordRe = regexp.MustCompile(`\b\w+\b`)

// writeWhenStopwords are the scaffolding words in a write_when clause like
// "JD mentions Azure or Databricks" that carry no activation signal.
var writeWhenStopwords = map[string]struct{}{
	"jd": {}, "mentions": {}, "or": {}, "but": {}, "not": {},
	"as": {}, "primary": {}, "for": {}, "when": {},
}

// ActivatedTransferable returns the transferable skills whose write_when
// keywords appear in the job description.
func (l *Library) ActivatedTransferable(jobDescription string) []TransferableSkill {
	jd := strings.ToLower(jobDescription)
	var activated []TransferableSkill

	for _, t := range l.SkillTiers.Transferable {
		for _, kw := range wordRe.FindAllString(strings.ToLower(t.WriteWhen), -1) {
			if _, skip := writeWhenStopwords[kw]; skip {
				continue
			}
			if strings.Contains(jd, kw) {
				activated = append(activated, t)
				break
			}
		}
	}

	return activated
}
