// Package matcher normalizes track descriptions and scores how closely two of them agree.
//
// Scores are the Jaccard index of the normalized word sets, so reordering ("Title - Artist" vs
// "Artist - Title") does not change the result.
package matcher

import (
	"strings"
	"unicode"

	"github.com/desertthunder/trackbridge/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Threshold is the minimum score a candidate needs to be accepted.
const Threshold = 0.5

const (
	titleWeight  = 0.7
	artistWeight = 0.3
)

// noise words dropped from every normalized string
var stoplist = map[string]struct{}{
	"slowed":  {},
	"reverb":  {},
	"remix":   {},
	"edit":    {},
	"radio":   {},
	"version": {},
	"feat":    {},
	"ft":      {},
}

// Normalize lowercases s, turns punctuation into whitespace, collapses runs of whitespace and
// removes stoplisted words. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.Join(tokens(s), " ")
}

func tokens(s string) []string {
	lowered := cases.Lower(language.Und).String(s)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' {
			return r
		}
		return ' '
	}, lowered)

	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if _, noise := stoplist[f]; !noise {
			out = append(out, f)
		}
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// Score returns the Jaccard index of the normalized word sets of a and b.
// It is 0 when either side normalizes to nothing.
func Score(a, b string) float64 {
	sa, sb := wordSet(a), wordSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	shared := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			shared++
		}
	}
	union := len(sa) + len(sb) - shared
	return float64(shared) / float64(union)
}

// WeightedScore weighs title similarity at 0.7 and artist similarity at 0.3.
func WeightedScore(q models.TrackQuery, c models.Candidate) float64 {
	return titleWeight*Score(q.Title, c.Title) + artistWeight*Score(q.Artist, c.Artist)
}

// Mode selects how a query is compared with a candidate.
type Mode int

const (
	// Combined joins title and artist on both sides into one string.
	Combined Mode = iota
	// Weighted scores title and artist separately, see [WeightedScore].
	Weighted
)

// Matcher picks the best candidate for a query.
type Matcher struct {
	Mode      Mode
	Threshold float64
}

// New returns a [Matcher] with the standard acceptance threshold.
func New(mode Mode) Matcher {
	return Matcher{Mode: mode, Threshold: Threshold}
}

// Rate scores a single candidate against q.
func (m Matcher) Rate(q models.TrackQuery, c models.Candidate) float64 {
	if m.Mode == Weighted {
		return WeightedScore(q, c)
	}
	return Score(q.String(), strings.TrimSpace(c.Title+" "+c.Artist))
}

// Best scores every candidate and returns the highest one. The first candidate wins ties.
// ok is false when nothing reaches the threshold.
func (m Matcher) Best(q models.TrackQuery, candidates []models.Candidate) (match models.ScoredMatch, ok bool) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = Threshold
	}

	best := -1.0
	for _, c := range candidates {
		if score := m.Rate(q, c); score > best {
			best = score
			match = models.ScoredMatch{Candidate: c, Score: score}
		}
	}

	if best < threshold {
		return models.ScoredMatch{}, false
	}
	return match, true
}

// CacheKey is the normalized form of the query string used to key search results.
func CacheKey(q models.TrackQuery) string {
	return Normalize(q.String())
}
