// Package scoring ranks filtered jobs with a transparent keyword model so
// the expensive analysis step only runs on plausible matches. Scoring is a
// pure function of the job and the configuration.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/tzheng/jobpilot/internal/job"
)

// Recommendation buckets produced by the threshold mapping.
const (
	RecommendSkip     = "SKIP"
	RecommendMaybe    = "MAYBE"
	RecommendApply    = "APPLY"
	RecommendApplyNow = "APPLY_NOW"
)

// KeywordTier is one weighted keyword group. Each keyword contributes its
// tier's weight at most once regardless of how often it occurs.
type KeywordTier struct {
	Weight   float64  `mapstructure:"weight"`
	Keywords []string `mapstructure:"keywords"`
}

// CompanyTier awards a bonus when the employer is on the list. Only the
// first matching tier applies.
type CompanyTier struct {
	Name      string   `mapstructure:"name"`
	Bonus     float64  `mapstructure:"bonus"`
	Companies []string `mapstructure:"companies"`
}

// TitleCategory adjusts the score when any of its keywords appear in the
// title; each category is counted at most once.
type TitleCategory struct {
	Name     string   `mapstructure:"name"`
	Bonus    float64  `mapstructure:"bonus"`
	Keywords []string `mapstructure:"keywords"`
}

// Thresholds map the clamped score to a recommendation. Values are lower
// bounds: score >= ApplyNow wins first, then Apply, then Maybe.
type Thresholds struct {
	ApplyNow float64 `mapstructure:"apply_now"`
	Apply    float64 `mapstructure:"apply"`
	Maybe    float64 `mapstructure:"maybe"`
}

// Config is the externally supplied scoring model.
type Config struct {
	BaseScore       float64                `mapstructure:"base_score"`
	MinScore        float64                `mapstructure:"min_score"`
	MaxScore        float64                `mapstructure:"max_score"`
	KeywordTiers    map[string]KeywordTier `mapstructure:"keyword_tiers"`
	CompanyTiers    []CompanyTier          `mapstructure:"company_tiers"`
	TitleCategories []TitleCategory        `mapstructure:"title_categories"`
	Thresholds      Thresholds             `mapstructure:"thresholds"`
}

// DefaultThresholds match the original scoring model.
var DefaultThresholds = Thresholds{ApplyNow: 7.0, Apply: 5.5, Maybe: 4.0}

// ParseConfig decodes the raw `scoring` config section and fills defaults.
func ParseConfig(raw map[string]any) (*Config, error) {
	cfg := Config{
		BaseScore:  5.0,
		MinScore:   0,
		MaxScore:   10,
		Thresholds: DefaultThresholds,
	}
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding scoring config: %w", err)
	}
	if cfg.MaxScore <= cfg.MinScore {
		return nil, fmt.Errorf("scoring config: max_score %.1f <= min_score %.1f", cfg.MaxScore, cfg.MinScore)
	}
	return &cfg, nil
}

// Result is the persisted outcome of scoring one job. Breakdown records
// each component's contribution for the status report.
type Result struct {
	JobID           string             `json:"job_id"`
	Score           float64            `json:"score"`
	Recommendation  string             `json:"recommendation"`
	MatchedKeywords []string           `json:"matched_keywords,omitempty"`
	Breakdown       map[string]float64 `json:"breakdown,omitempty"`
}

// Scorer applies one scoring configuration.
type Scorer struct {
	cfg *Config
}

func New(cfg *Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the job's score and recommendation. Identical input
// always yields the identical result.
func (s *Scorer) Score(j *job.Record) Result {
	text := j.SearchText()
	title := j.TitleText()
	company := strings.ToLower(j.Company)

	res := Result{
		JobID:     j.ID,
		Breakdown: map[string]float64{"base": s.cfg.BaseScore},
	}
	score := s.cfg.BaseScore

	// Tier names sorted for a stable breakdown and keyword order.
	tierNames := make([]string, 0, len(s.cfg.KeywordTiers))
	for name := range s.cfg.KeywordTiers {
		tierNames = append(tierNames, name)
	}
	sort.Strings(tierNames)

	for _, name := range tierNames {
		tier := s.cfg.KeywordTiers[name]
		var contribution float64
		for _, kw := range tier.Keywords {
			if !strings.Contains(text, strings.ToLower(kw)) {
				continue
			}
			contribution += tier.Weight
			res.MatchedKeywords = append(res.MatchedKeywords, kw)
		}
		if contribution != 0 {
			res.Breakdown["keywords:"+name] = contribution
			score += contribution
		}
	}

	for _, ct := range s.cfg.CompanyTiers {
		if !companyInTier(company, ct.Companies) {
			continue
		}
		res.Breakdown["company:"+ct.Name] = ct.Bonus
		score += ct.Bonus
		break
	}

	for _, tc := range s.cfg.TitleCategories {
		for _, kw := range tc.Keywords {
			if strings.Contains(title, strings.ToLower(kw)) {
				res.Breakdown["title:"+tc.Name] = tc.Bonus
				score += tc.Bonus
				break
			}
		}
	}

	if score < s.cfg.MinScore {
		score = s.cfg.MinScore
	}
	if score > s.cfg.MaxScore {
		score = s.cfg.MaxScore
	}

	res.Score = score
	res.Recommendation = s.recommend(score)
	return res
}

func (s *Scorer) recommend(score float64) string {
	t := s.cfg.Thresholds
	switch {
	case score >= t.ApplyNow:
		return RecommendApplyNow
	case score >= t.Apply:
		return RecommendApply
	case score >= t.Maybe:
		return RecommendMaybe
	default:
		return RecommendSkip
	}
}

func companyInTier(company string, members []string) bool {
	for _, m := range members {
		m = strings.ToLower(m)
		if m != "" && strings.Contains(company, m) {
			return true
		}
	}
	return false
}
