// Package bankmatch resolves free-text bank names against the organization
// registry. Cheap exact and alias lookups short-circuit before the edit
// distance fallback runs against every registry entry.
package bankmatch

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/models"
)

// MatchType labels how a match was found.
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchAlias MatchType = "alias"
	MatchFuzzy MatchType = "fuzzy"
	MatchNone  MatchType = "none"
)

// Confidence assigned per match type; fuzzy confidence is derived from the
// similarity score instead.
const (
	exactConfidence = 100
	aliasConfidence = 95

	// fuzzyThreshold is the minimum similarity a fuzzy candidate must
	// exceed to count at all.
	fuzzyThreshold = 0.6

	// AutoAssociateBoundary: a match must score strictly above this for
	// the pipeline to attach the bank without human review.
	AutoAssociateBoundary = 80

	maxAlternatives = 3
)

// Candidate is one fuzzy runner-up.
type Candidate struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Confidence int       `json:"confidence"`
}

// Result is the outcome of a bank name resolution.
type Result struct {
	MatchedID    *uuid.UUID  `json:"matched_id,omitempty"`
	MatchedName  string      `json:"matched_name,omitempty"`
	Confidence   int         `json:"confidence"`
	MatchType    MatchType   `json:"match_type"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
}

// AutoAssociate reports whether the match is strong enough to attach
// without review.
func (r Result) AutoAssociate() bool {
	return r.MatchedID != nil && r.Confidence > AutoAssociateBoundary
}

// Matcher resolves organization names against an in-memory registry
// snapshot.
type Matcher struct {
	banks []models.Bank
	// alias maps lowercased alias -> index into banks
	alias map[string]int
}

// New builds a matcher over a registry snapshot. Alias entries come from
// each bank's alias list.
func New(banks []models.Bank) *Matcher {
	m := &Matcher{banks: banks, alias: make(map[string]int)}
	for i, b := range banks {
		for _, a := range b.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" {
				m.alias[a] = i
			}
		}
	}
	return m
}

// Match resolves a free-text organization name. Order: exact, alias, fuzzy,
// none. Empty input returns none at confidence 0.
func (m *Matcher) Match(name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{MatchType: MatchNone}
	}
	lower := strings.ToLower(name)

	for _, b := range m.banks {
		if strings.ToLower(b.Name) == lower {
			return Result{
				MatchedID:   ptr(b.ID),
				MatchedName: b.Name,
				Confidence:  exactConfidence,
				MatchType:   MatchExact,
			}
		}
	}

	if i, ok := m.alias[lower]; ok {
		b := m.banks[i]
		return Result{
			MatchedID:   ptr(b.ID),
			MatchedName: b.Name,
			Confidence:  aliasConfidence,
			MatchType:   MatchAlias,
		}
	}

	return m.fuzzy(lower)
}

func (m *Matcher) fuzzy(lower string) Result {
	type scored struct {
		bank models.Bank
		sim  float64
	}

	var candidates []scored
	for _, b := range m.banks {
		sim := similarity(lower, strings.ToLower(b.Name))
		if sim > fuzzyThreshold {
			candidates = append(candidates, scored{bank: b, sim: sim})
		}
	}

	if len(candidates) == 0 {
		return Result{MatchType: MatchNone}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	best := candidates[0]
	res := Result{
		MatchedID:   ptr(best.bank.ID),
		MatchedName: best.bank.Name,
		Confidence:  roundScore(best.sim),
		MatchType:   MatchFuzzy,
	}
	for _, c := range candidates[1:] {
		if len(res.Alternatives) == maxAlternatives {
			break
		}
		res.Alternatives = append(res.Alternatives, Candidate{
			ID:         c.bank.ID,
			Name:       c.bank.Name,
			Confidence: roundScore(c.sim),
		})
	}
	return res
}

// similarity scores two lowercased strings. Containment earns a 0.7 base
// plus up to 0.3 scaled by the length ratio; otherwise it falls back to
// normalized edit distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := la, lb
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return 0.7 + 0.3*float64(shorter)/float64(longer)
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance over runes with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func roundScore(sim float64) int {
	return int(sim*100 + 0.5)
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }
