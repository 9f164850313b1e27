package resolver

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Legal-form suffixes stripped during normalization. Matching "ACME LTD"
// against "Acme Limited" must come down to the trading name alone.
var suffixRules = map[string]string{
	`\bLTD\.?\b`:         "",
	`\bLIMITED\b`:        "",
	`\bPLC\b`:            "",
	`\bLLP\b`:            "",
	`\bINC\.?\b`:         "",
	`\bCORP\.?\b`:        "",
	`\bCO\.?\b`:          "",
	`\bCOMPANY\b`:        "",
	`\bGMBH\b`:           "",
	`\bS\.?A\.?\b`:       "",
	`\bB\.?V\.?\b`:       "",
	`\bHOLDINGS?\b`:      "",
	`\bGROUP\b`:          "",
	`\bINTERNATIONAL\b`:  "INTL",
	`\bBROTHERS\b`:       "BROS",
	`\bAND\b`:            "&",
	`\bDISTRIBUTION\b`:   "DIST",
	`\bWHOLESALE(RS)?\b`: "",
}

var (
	rePunct      = regexp.MustCompile(`[^\w&\s]`)
	reWhitespace = regexp.MustCompile(`\s+`)

	suffixRes = func() []struct {
		re  *regexp.Regexp
		rep string
	} {
		patterns := make([]string, 0, len(suffixRules))
		for p := range suffixRules {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)
		out := make([]struct {
			re  *regexp.Regexp
			rep string
		}, 0, len(patterns))
		for _, p := range patterns {
			out = append(out, struct {
				re  *regexp.Regexp
				rep string
			}{regexp.MustCompile(p), suffixRules[p]})
		}
		return out
	}()
)

// Normalize canonicalizes a supplier name: uppercase, punctuation stripped,
// legal suffixes removed, whitespace collapsed. Idempotent.
func Normalize(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = rePunct.ReplaceAllString(s, " ")
	for _, r := range suffixRes {
		s = r.re.ReplaceAllString(s, r.rep)
	}
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Similarity scores two raw supplier names on a 0-100 scale. Both are
// normalized first, then compared with a token-sort edit ratio so word
// order does not matter; Jaro-Winkler acts as a floor for short names
// where single-character edits dominate the ratio.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}
	ts := tokenSortRatio(na, nb)
	jw := smetrics.JaroWinkler(na, nb, 0.7, 4) * 100
	if jw > ts {
		return jw
	}
	return ts
}

func tokenSortRatio(a, b string) float64 {
	sa := sortedTokens(a)
	sb := sortedTokens(b)
	maxLen := utf8.RuneCountInString(sa)
	if n := utf8.RuneCountInString(sb); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(sa, sb)
	return (1 - float64(dist)/float64(maxLen)) * 100
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
