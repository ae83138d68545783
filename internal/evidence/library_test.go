package evidence

import (
	"os"
	"path/filepath"
	"testing"
)

const libraryYAML = `
work_experience:
  glp_technology:
    company: GLP Technology
    location: Shanghai
    period: 2021 - 2024
    titles:
      default: Data Engineer
      senior: Senior Data Engineer
    verified_bullets:
      - id: glp-1
        content: Built a Spark ingestion platform processing 2TB daily.
        tech: [spark, python]
        role_fit: [data_engineer]
        defensibility: owned the project end to end
      - id: glp-2
        content: Cut pipeline costs by 30% by moving to spot instances.

projects:
  homelab:
    title: Homelab Kubernetes cluster
    period: 2023 - now
    verified_bullets:
      - id: lab-1
        content: Runs a 3-node k3s cluster with GitOps deploys.

skill_tiers:
  verified:
    languages: [Python, SQL]
    platforms: [Spark, Airflow]
  transferable:
    - skill: Databricks
      write_when: JD mentions Databricks or Delta Lake
      basis: daily Spark work
      ramp_up: one sprint
  excluded: [kotlin, php]

title_options:
  glp_technology:
    default: Data Engineer
    senior: Senior Data Engineer

bio_constraints:
  max_years_claim: 4
  years_claim_scope: data engineering
  banned_phrases: [expert]
  replacements:
    - phrase: expert
      with: experienced

allowed_skill_categories: [Languages, Platforms]
`

func loadTestLibrary(t *testing.T, yaml string) (*Library, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evidence.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return Load(path)
}

func TestLoadIndexesBullets(t *testing.T) {
	lib, err := loadTestLibrary(t, libraryYAML)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if lib.BulletCount() != 3 {
		t.Fatalf("bullet count = %d, want 3", lib.BulletCount())
	}

	b, ok := lib.BulletByID("glp-1")
	if !ok {
		t.Fatal("glp-1 not indexed")
	}
	if b.Content == "" || len(b.Tech) != 2 {
		t.Fatalf("bullet = %+v", b)
	}

	if _, ok := lib.BulletByID("lab-1"); !ok {
		t.Fatal("project bullets must be indexed too")
	}
	if _, ok := lib.BulletByID("nope"); ok {
		t.Fatal("unknown id resolved")
	}
}

func TestLoadRejectsDuplicateBulletIDs(t *testing.T) {
	dup := `
work_experience:
  a:
    company: A
    verified_bullets:
      - id: x
        content: one
  b:
    company: B
    verified_bullets:
      - id: x
        content: two
`
	if _, err := loadTestLibrary(t, dup); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestTierOf(t *testing.T) {
	lib, err := loadTestLibrary(t, libraryYAML)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cases := []struct {
		skill string
		want  Tier
	}{
		{"Python", TierVerified},
		{"spark", TierVerified},
		{"Databricks", TierTransferable},
		{"Kotlin", TierExcluded},
		{"Kotlin (basics)", TierExcluded},
		{"Rust", TierUnknown},
		{"", TierUnknown},
	}
	for _, c := range cases {
		if got := lib.TierOf(c.skill); got != c.want {
			t.Fatalf("TierOf(%q) = %s, want %s", c.skill, got, c.want)
		}
	}
}

func TestAllowedTitles(t *testing.T) {
	lib, err := loadTestLibrary(t, libraryYAML)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Key matching is bidirectional substring on the normalized name.
	for _, company := range []string{"GLP Technology", "glp technology (shanghai)", "GLP"} {
		titles, ok := lib.AllowedTitles(company)
		if !ok {
			t.Fatalf("AllowedTitles(%q): no constraint found", company)
		}
		if len(titles) != 2 || titles[0] != "Data Engineer" {
			t.Fatalf("AllowedTitles(%q) = %v", company, titles)
		}
	}

	if _, ok := lib.AllowedTitles("Unrelated Corp"); ok {
		t.Fatal("unconstrained employer must report ok=false")
	}
}

func TestAllowedTitlesOverlappingKeysDeterministic(t *testing.T) {
	lib := &Library{
		TitleOptions: map[string]map[string]string{
			"glp":            {"default": "Platform Engineer"},
			"glp_technology": {"default": "Data Engineer", "senior": "Senior Data Engineer"},
		},
	}

	// Both keys match; the alphabetically first one must win every time.
	for i := 0; i < 50; i++ {
		titles, ok := lib.AllowedTitles("GLP Technology")
		if !ok {
			t.Fatal("expected a constraint")
		}
		if len(titles) != 1 || titles[0] != "Platform Engineer" {
			t.Fatalf("iteration %d: titles = %v", i, titles)
		}
	}
}

func TestActivatedTransferable(t *testing.T) {
	lib, err := loadTestLibrary(t, libraryYAML)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	activated := lib.ActivatedTransferable("We run everything on Databricks.")
	if len(activated) != 1 || activated[0].Skill != "Databricks" {
		t.Fatalf("activated = %+v", activated)
	}

	activated = lib.ActivatedTransferable("Plain postgres shop.")
	if len(activated) != 0 {
		t.Fatalf("activated = %+v, want none", activated)
	}
}
