package filtering

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Rule kinds. A rule without an explicit type matches its patterns against
// the whole job text.
const (
	RulePattern    = "pattern"
	RuleWordCount  = "word_count"
	RuleTitleCheck = "title_check"
	RuleTechStack  = "tech_stack"
)

// HardRule is one exclusion rule. Rules are evaluated in priority order
// (ascending) and the first match wins; later rules never override an
// earlier exclusion.
type HardRule struct {
	Name     string `mapstructure:"name"`
	Priority int    `mapstructure:"priority"`
	Type     string `mapstructure:"type"`
	Disabled bool   `mapstructure:"disabled"`

	// Pattern rules. Exceptions are substrings that suppress the rule
	// entirely for a job (e.g. "7+ years X" is fine when X is a core
	// competency mentioned in the text).
	Patterns   []string `mapstructure:"patterns"`
	Exceptions []string `mapstructure:"exceptions"`

	// word_count rules: reject when at least Threshold of Indicators
	// appear as whole words (language detection).
	Indicators []string `mapstructure:"indicators"`
	Threshold  int      `mapstructure:"threshold"`

	// title_check rules: blacklist has priority over the whitelist.
	TitleRejectPatterns   []string `mapstructure:"title_reject_patterns"`
	TitleMustContainOneOf []string `mapstructure:"title_must_contain_one_of"`

	// tech_stack rules: title-only patterns, suppressed when the title
	// carries an exception keyword.
	TitlePatterns []string `mapstructure:"title_patterns"`
}

// RequiredRule names a condition the job must satisfy: at least one of
// AnyOf must match, otherwise the job is rejected with the rule's name as
// the reason code.
type RequiredRule struct {
	Name  string   `mapstructure:"name"`
	AnyOf []string `mapstructure:"any_of"`
}

// RuleSet is the externally supplied filter configuration.
type RuleSet struct {
	Version  string         `mapstructure:"version"`
	Hard     []HardRule     `mapstructure:"hard_rules"`
	Required []RequiredRule `mapstructure:"required"`
}

// ParseRuleSet decodes the raw `filter` config section.
func ParseRuleSet(raw map[string]any) (*RuleSet, error) {
	var rs RuleSet
	if err := mapstructure.Decode(raw, &rs); err != nil {
		return nil, fmt.Errorf("decoding filter rules: %w", err)
	}
	return &rs, nil
}

var wordRe = regexp.MustCompile(`\b\w+\b`)

// matcher matches one configured pattern. A pattern that does not compile
// as a regex degrades to case-insensitive substring matching instead of
// failing the whole ruleset.
type matcher struct {
	raw    string
	re     *regexp.Regexp
	substr string
}

func compileMatcher(pattern string) matcher {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return matcher{raw: pattern, substr: strings.ToLower(pattern)}
	}
	return matcher{raw: pattern, re: re}
}

func compileMatchers(patterns []string) []matcher {
	out := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, compileMatcher(p))
	}
	return out
}

func (m matcher) match(text string) bool {
	if m.re != nil {
		return m.re.MatchString(text)
	}
	return strings.Contains(text, m.substr)
}

func anyMatch(ms []matcher, text string) bool {
	for _, m := range ms {
		if m.match(text) {
			return true
		}
	}
	return false
}

func sortRules(rules []HardRule) []HardRule {
	sorted := make([]HardRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}
