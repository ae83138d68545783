package scoring

import (
	"math"
	"testing"

	"github.com/tzheng/jobpilot/internal/job"
)

func testConfig() *Config {
	return &Config{
		BaseScore: 5.0,
		MinScore:  0,
		MaxScore:  10,
		KeywordTiers: map[string]KeywordTier{
			"high": {
				Weight:   1.0,
				Keywords: []string{"spark", "airflow", "databricks"},
			},
			"medium": {
				Weight:   0.5,
				Keywords: []string{"python", "sql"},
			},
			"low": {
				Weight:   0.25,
				Keywords: []string{"agile"},
			},
		},
		CompanyTiers: []CompanyTier{
			{Name: "target", Bonus: 1.5, Companies: []string{"Adyen", "Booking"}},
			{Name: "known", Bonus: 0.5, Companies: []string{"Adyen", "ING"}},
		},
		TitleCategories: []TitleCategory{
			{Name: "core", Bonus: 1.0, Keywords: []string{"data engineer", "data platform"}},
			{Name: "management", Bonus: -1.0, Keywords: []string{"manager", "lead"}},
		},
		Thresholds: DefaultThresholds,
	}
}

func scoreJob(t *testing.T, title, company, description string) Result {
	t.Helper()
	s := New(testConfig())
	return s.Score(&job.Record{
		ID:          "j1",
		Title:       title,
		Company:     company,
		Description: description,
	})
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreKeywordCountedOncePerOccurrence(t *testing.T) {
	// "spark" appears three times but contributes its weight once.
	res := scoreJob(t, "Engineer", "Nobody", "spark spark spark")
	if !almostEqual(res.Score, 6.0) {
		t.Fatalf("score = %v, want 6.0", res.Score)
	}
	if len(res.MatchedKeywords) != 1 || res.MatchedKeywords[0] != "spark" {
		t.Fatalf("matched = %v", res.MatchedKeywords)
	}
}

func TestScoreTierContributions(t *testing.T) {
	res := scoreJob(t, "Engineer", "Nobody", "spark and airflow with python, agile team")
	// base 5 + high 2*1.0 + medium 0.5 + low 0.25
	if !almostEqual(res.Score, 7.75) {
		t.Fatalf("score = %v, want 7.75", res.Score)
	}
	if !almostEqual(res.Breakdown["keywords:high"], 2.0) {
		t.Fatalf("high tier = %v", res.Breakdown["keywords:high"])
	}
}

func TestScoreFirstCompanyTierOnly(t *testing.T) {
	// Adyen is in both tiers; only the first (target) bonus applies.
	res := scoreJob(t, "Engineer", "Adyen", "nothing relevant")
	if !almostEqual(res.Score, 6.5) {
		t.Fatalf("score = %v, want 6.5", res.Score)
	}
	if _, dup := res.Breakdown["company:known"]; dup {
		t.Fatal("second company tier must not apply")
	}
}

func TestScoreTitleCategories(t *testing.T) {
	res := scoreJob(t, "Data Engineering Manager", "Nobody", "")
	// base 5 + core 1.0 + management -1.0
	if !almostEqual(res.Score, 5.0) {
		t.Fatalf("score = %v, want 5.0", res.Score)
	}
}

func TestScoreClamped(t *testing.T) {
	cfg := testConfig()
	cfg.BaseScore = 9.5
	s := New(cfg)
	res := s.Score(&job.Record{ID: "j1", Title: "Data Engineer", Company: "Adyen",
		Description: "spark airflow databricks python sql"})
	if !almostEqual(res.Score, 10.0) {
		t.Fatalf("score = %v, want clamp to 10.0", res.Score)
	}
}

func TestRecommendationThresholds(t *testing.T) {
	s := New(testConfig())
	cases := []struct {
		score float64
		want  string
	}{
		{7.0, RecommendApplyNow},
		{6.9, RecommendApply},
		{5.5, RecommendApply},
		{5.4, RecommendMaybe},
		{4.0, RecommendMaybe},
		{3.9, RecommendSkip},
	}
	for _, c := range cases {
		if got := s.recommend(c.score); got != c.want {
			t.Fatalf("recommend(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	first := scoreJob(t, "Data Engineer", "Adyen", "spark python sql agile")
	for i := 0; i < 10; i++ {
		again := scoreJob(t, "Data Engineer", "Adyen", "spark python sql agile")
		if !almostEqual(again.Score, first.Score) || again.Recommendation != first.Recommendation {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"keyword_tiers": map[string]any{
			"high": map[string]any{"weight": 1.0, "keywords": []string{"spark"}},
		},
	})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.BaseScore != 5.0 || cfg.MaxScore != 10 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Thresholds != DefaultThresholds {
		t.Fatalf("thresholds = %+v", cfg.Thresholds)
	}
}

func TestParseConfigRejectsInvertedBounds(t *testing.T) {
	_, err := ParseConfig(map[string]any{"min_score": 10.0, "max_score": 1.0})
	if err == nil {
		t.Fatal("expected error for max <= min")
	}
}
