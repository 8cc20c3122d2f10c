package text

import (
	"regexp"
)

// RegexRule maps one inline markup pattern to a token. Build receives the
// submatches, groups[0] being the whole match.
type RegexRule struct {
	Pattern *regexp.Regexp
	Build   func(groups []string) Token
}

type RegexTokenizer struct {
	rules []RegexRule
}

func NewRegexTokenizer(rules ...RegexRule) *RegexTokenizer {
	return &RegexTokenizer{rules: append([]RegexRule(nil), rules...)}
}

// Tokenize scans s left to right. The earliest match wins; on a tie the
// rule registered first wins. Unmatched runs become text tokens.
func (t *RegexTokenizer) Tokenize(s string, _ []Span) []Token {
	var tokens []Token
	rest := s
	for rest != "" {
		best, bestLoc := -1, []int(nil)
		for i, rule := range t.rules {
			loc := rule.Pattern.FindStringSubmatchIndex(rest)
			if loc == nil || loc[1] == loc[0] {
				continue
			}
			if best == -1 || loc[0] < bestLoc[0] {
				best, bestLoc = i, loc
			}
		}
		if best == -1 {
			tokens = append(tokens, NewText(rest))
			break
		}

		if bestLoc[0] > 0 {
			tokens = append(tokens, NewText(rest[:bestLoc[0]]))
		}
		groups := make([]string, len(bestLoc)/2)
		for g := range groups {
			if bestLoc[2*g] >= 0 {
				groups[g] = rest[bestLoc[2*g]:bestLoc[2*g+1]]
			}
		}
		tokens = append(tokens, t.rules[best].Build(groups))
		rest = rest[bestLoc[1]:]
	}
	return tokens
}
