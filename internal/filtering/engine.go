// Package filtering implements the hard-exclusion gate that runs before
// any scoring or model call. Rules come from configuration; the engine is
// deterministic for a given (job, ruleset) pair.
package filtering

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tzheng/jobpilot/internal/job"
)

// Result is the persisted outcome of one evaluation. Reason carries the
// name of the rule that rejected the job, empty when it passed.
type Result struct {
	JobID        string   `json:"job_id"`
	Passed       bool     `json:"passed"`
	Reason       string   `json:"reason,omitempty"`
	MatchedRules []string `json:"matched_rules,omitempty"`
	Version      string   `json:"version"`
}

type compiledHard struct {
	rule       HardRule
	patterns   []matcher
	exceptions []string
	titleRej   []matcher
	titleAllow []matcher
	titlePat   []matcher
	indicators []string
}

type compiledRequired struct {
	rule  RequiredRule
	anyOf []matcher
}

// Engine evaluates jobs against a compiled ruleset.
type Engine struct {
	version  string
	hard     []compiledHard
	required []compiledRequired
	logger   *zap.Logger
}

// NewEngine compiles the ruleset. Unparseable regex patterns degrade to
// substring matching; a rule with an unknown type is an error.
func NewEngine(rs *RuleSet, logger *zap.Logger) (*Engine, error) {
	if rs == nil {
		return nil, fmt.Errorf("filter ruleset is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{version: rs.Version, logger: logger}
	if e.version == "" {
		e.version = "unversioned"
	}

	for _, r := range sortRules(rs.Hard) {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("hard rule without a name")
		}
		switch r.Type {
		case "", RulePattern, RuleWordCount, RuleTitleCheck, RuleTechStack:
		default:
			return nil, fmt.Errorf("hard rule %q has unknown type %q", r.Name, r.Type)
		}

		c := compiledHard{
			rule:       r,
			patterns:   compileMatchers(r.Patterns),
			titleRej:   compileMatchers(r.TitleRejectPatterns),
			titleAllow: compileMatchers(r.TitleMustContainOneOf),
			titlePat:   compileMatchers(r.TitlePatterns),
		}
		for _, ex := range r.Exceptions {
			c.exceptions = append(c.exceptions, strings.ToLower(ex))
		}
		for _, ind := range r.Indicators {
			c.indicators = append(c.indicators, strings.ToLower(ind))
		}
		e.hard = append(e.hard, c)
	}

	for _, r := range rs.Required {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("required rule without a name")
		}
		if len(r.AnyOf) == 0 {
			return nil, fmt.Errorf("required rule %q has no any_of patterns", r.Name)
		}
		e.required = append(e.required, compiledRequired{rule: r, anyOf: compileMatchers(r.AnyOf)})
	}

	return e, nil
}

// Version reports the ruleset version, recorded with every result.
func (e *Engine) Version() string { return e.version }

// Evaluate runs the hard rules in priority order and short-circuits on the
// first match, then checks required conditions. A rejected job carries the
// rejecting rule's name as its reason code.
func (e *Engine) Evaluate(j *job.Record) Result {
	res := Result{JobID: j.ID, Version: e.version}
	text := j.SearchText()
	title := j.TitleText()

	for _, c := range e.hard {
		if c.rule.Disabled {
			continue
		}
		if !c.matches(text, title) {
			continue
		}
		res.Reason = c.rule.Name
		res.MatchedRules = append(res.MatchedRules, c.rule.Name)
		e.logger.Debug("job rejected by hard rule",
			zap.String("job_id", j.ID),
			zap.String("rule", c.rule.Name),
			zap.String("title", j.Title),
		)
		return res
	}

	for _, c := range e.required {
		if anyMatch(c.anyOf, text) {
			continue
		}
		res.Reason = c.rule.Name
		e.logger.Debug("job missing required condition",
			zap.String("job_id", j.ID),
			zap.String("rule", c.rule.Name),
		)
		return res
	}

	res.Passed = true
	return res
}

func (c *compiledHard) matches(text, title string) bool {
	switch c.rule.Type {
	case RuleWordCount:
		return c.matchWordCount(text)
	case RuleTitleCheck:
		return c.matchTitle(title)
	case RuleTechStack:
		return c.matchTechStack(title)
	default:
		return c.matchPatterns(text)
	}
}

func (c *compiledHard) suppressed(text string) bool {
	for _, ex := range c.exceptions {
		if strings.Contains(text, ex) {
			return true
		}
	}
	return false
}

func (c *compiledHard) matchPatterns(text string) bool {
	if c.suppressed(text) {
		return false
	}
	return anyMatch(c.patterns, text)
}

// matchWordCount counts how many indicator words appear in the text and
// trips once the threshold is reached. Used for language detection.
func (c *compiledHard) matchWordCount(text string) bool {
	threshold := c.rule.Threshold
	if threshold <= 0 {
		threshold = 1
	}
	words := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(text, -1) {
		words[w] = struct{}{}
	}
	count := 0
	for _, ind := range c.indicators {
		if _, ok := words[ind]; ok {
			count++
			if count >= threshold {
				return true
			}
		}
	}
	return false
}

// matchTitle applies the blacklist first; a title on both lists is still
// rejected. With a non-empty whitelist the title must contain one entry.
func (c *compiledHard) matchTitle(title string) bool {
	if anyMatch(c.titleRej, title) {
		return true
	}
	if len(c.titleAllow) > 0 && !anyMatch(c.titleAllow, title) {
		return true
	}
	return false
}

// matchTechStack checks title-only patterns; an exception keyword in the
// title (a core competency like "data" or "python") suppresses the rule.
func (c *compiledHard) matchTechStack(title string) bool {
	if c.suppressed(title) {
		return false
	}
	return anyMatch(c.titlePat, title)
}
