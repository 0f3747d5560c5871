package vitecsync

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// SimilarityScorer scores how alike two names are, in [0,1]. The matcher
// only depends on this interface so the algorithm stays swappable.
type SimilarityScorer interface {
	Score(a, b string) float64
}

// TokenSortScorer tokenizes both names, sorts the tokens and scores the
// rejoined strings by edit-distance ratio. Word order and repeated
// whitespace never affect the score; casing is folded.
type TokenSortScorer struct{}

func NewTokenSortScorer() TokenSortScorer { return TokenSortScorer{} }

func (TokenSortScorer) Score(a, b string) float64 {
	na := tokenSortKey(a)
	nb := tokenSortKey(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

func tokenSortKey(s string) string {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
