package ledger

import (
	"regexp"
	"sort"
	"strings"
)

var titleTokenRe = regexp.MustCompile(`[a-z0-9]+`)

// NormalizeTitle reduces a job title to its sorted, deduplicated token
// set: "Data Engineer - Enterprise" and "Enterprise Data Engineer" map to
// the same key. Word order and punctuation are deliberately ignored; two
// genuinely different roles sharing the same words will collide, which is
// acceptable for an advisory signal.
func NormalizeTitle(title string) string {
	tokens := titleTokenRe.FindAllString(strings.ToLower(title), -1)
	seen := make(map[string]struct{}, len(tokens))
	uniq := tokens[:0]
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}

// NormalizeCompany lowercases and collapses whitespace; legal suffixes
// like B.V. are stripped so reposts under slightly different names still
// match.
func NormalizeCompany(company string) string {
	tokens := titleTokenRe.FindAllString(strings.ToLower(company), -1)
	out := tokens[:0]
	for _, t := range tokens {
		switch t {
		case "bv", "b", "v", "inc", "ltd", "gmbh", "llc", "nv":
			continue
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}
