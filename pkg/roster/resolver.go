package roster

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// acceptThreshold is the minimum fuzzy score for a non-exact match.
	acceptThreshold = 0.72
	// ambiguityMargin: if the runner-up is within this margin of the best
	// candidate, the match is ambiguous and we refuse to pick.
	ambiguityMargin = 0.06
	// maxSuggestions caps the "did you mean" list.
	maxSuggestions = 3
)

// Resolution is the successful outcome of a resolve call. Suggestions are
// populated on any non-exact match, ranked by score then name.
type Resolution struct {
	Entry       *Entry
	Confidence  float64
	Suggestions []Entry
}

// NotFoundError means no candidate cleared the acceptance threshold, or the
// best candidates were too close to call. Suggestions are always attached
// when any plausible candidate exists.
type NotFoundError struct {
	Token       string
	Ambiguous   bool
	Suggestions []Entry
}

func (e *NotFoundError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("%q matches multiple roster entries", e.Token)
	}
	return fmt.Sprintf("%q not found in today's roster", e.Token)
}

// IneligibleError means the name resolved, but the player is not an announced
// probable pitcher today so pitcher-stat bets on them are invalid. Carries
// the actual probable pitchers for diagnostic display.
type IneligibleError struct {
	Token            string
	Entry            *Entry
	ProbablePitchers []Entry
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s is not a probable pitcher today", e.Entry.Name)
}

// Resolver fuzzy-matches name tokens against the current roster snapshot.
type Resolver struct {
	index *Index
}

// NewResolver returns a resolver over the given index.
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve matches a raw name token against today's roster, restricted to the
// hinted kind. Exact normalized-name matches win outright; otherwise the top
// fuzzy candidate is accepted only when it clears the threshold and no other
// candidate is within the ambiguity margin.
func (r *Resolver) Resolve(token string, hint Kind) (*Resolution, error) {
	snap := r.index.Current()
	if snap == nil {
		return nil, &NotFoundError{Token: token}
	}
	return ResolveIn(snap, token, hint)
}

// ResolveIn runs resolution against an explicit snapshot. Pure: no shared
// state beyond the immutable snapshot, safe for concurrent use.
func ResolveIn(snap *Snapshot, token string, hint Kind) (*Resolution, error) {
	normalized := NormalizeName(token)
	if normalized == "" {
		return nil, &NotFoundError{Token: token}
	}

	// Exact match on normalized name (teams also match on abbreviation).
	var exact []*Entry
	for _, e := range snap.byName[normalized] {
		if matchesKind(e, hint) {
			exact = append(exact, e)
		}
	}
	if hint == KindTeam && len(exact) == 0 {
		if e, ok := snap.byAbbrev[normalized]; ok {
			exact = append(exact, e)
		}
	}
	if len(exact) == 1 {
		return finish(snap, token, hint, &Resolution{Entry: exact[0], Confidence: 1})
	}
	if len(exact) > 1 {
		// Two roster entries share the name. Never pick arbitrarily.
		return nil, &NotFoundError{Token: token, Ambiguous: true, Suggestions: derefSorted(exact, nil)}
	}

	// Fuzzy pass over entries of the hinted kind.
	candidates := snap.Entries(hint)
	if len(candidates) == 0 {
		return nil, &NotFoundError{Token: token}
	}

	queryTokens := strings.Fields(normalized)
	scored := make([]scoredEntry, 0, len(candidates))
	for _, e := range candidates {
		rank := rankScore(normalized, queryTokens, e)
		if rank <= 0.3 {
			continue
		}
		scored = append(scored, scoredEntry{
			entry:  e,
			score:  rank,
			accept: exactTokenOverlap(queryTokens, e),
		})
	}
	sortScored(scored)
	suggestions := topSuggestions(scored)

	// Acceptance requires the query's words to appear verbatim in the entry
	// name ("harper" -> "Bryce Harper"). Near-miss spellings rank high as
	// suggestions but are never silently accepted.
	eligible := scored[:0:0]
	for _, se := range scored {
		if se.accept >= acceptThreshold {
			eligible = append(eligible, se)
		}
	}
	if len(eligible) == 0 {
		return nil, &NotFoundError{Token: token, Suggestions: suggestions}
	}
	if len(eligible) > 1 && eligible[0].score-eligible[1].score < ambiguityMargin {
		return nil, &NotFoundError{Token: token, Ambiguous: true, Suggestions: suggestions}
	}

	return finish(snap, token, hint, &Resolution{
		Entry:       eligible[0].entry,
		Confidence:  eligible[0].score,
		Suggestions: suggestions,
	})
}

// finish applies the probable-pitcher eligibility rule to an accepted match.
func finish(snap *Snapshot, token string, hint Kind, res *Resolution) (*Resolution, error) {
	if hint == KindPitcher && !res.Entry.ProbablePitcher {
		return nil, &IneligibleError{
			Token:            token,
			Entry:            res.Entry,
			ProbablePitchers: snap.ProbablePitchers(),
		}
	}
	return res, nil
}

type scoredEntry struct {
	entry  *Entry
	score  float64 // ranking score, edit-distance blend
	accept float64 // exact token overlap, gates acceptance
}

// sortScored orders by score descending, then name ascending for
// deterministic suggestion lists.
func sortScored(s []scoredEntry) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].score != s[j].score {
			return s[i].score > s[j].score
		}
		return s[i].entry.Name < s[j].entry.Name
	})
}

func topSuggestions(scored []scoredEntry) []Entry {
	n := len(scored)
	if n > maxSuggestions {
		n = maxSuggestions
	}
	out := make([]Entry, 0, n)
	for _, se := range scored[:n] {
		out = append(out, *se.entry)
	}
	return out
}

func derefSorted(entries []*Entry, _ []float64) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// exactTokenOverlap is the fraction of query tokens that appear verbatim
// among the entry's name tokens.
func exactTokenOverlap(queryTokens []string, e *Entry) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	entryTokens := strings.Fields(e.Normalized)
	matched := 0
	for _, qt := range queryTokens {
		for _, et := range entryTokens {
			if qt == et {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// rankScore combines whole-string edit-distance similarity with per-token
// overlap, so both "Shohei Otani" (typo) and "Harper" (surname only) rank
// high against the right entry. Token overlap is slightly discounted so a
// full-name near-match outranks a bare surname hit.
func rankScore(query string, queryTokens []string, e *Entry) float64 {
	full := similarity(query, e.Normalized)

	entryTokens := strings.Fields(e.Normalized)
	var sum float64
	for _, qt := range queryTokens {
		best := 0.0
		for _, et := range entryTokens {
			if s := similarity(qt, et); s > best {
				best = s
			}
		}
		sum += best
	}
	overlap := 0.0
	if len(queryTokens) > 0 {
		overlap = sum / float64(len(queryTokens)) * 0.95
	}

	if overlap > full {
		return overlap
	}
	return full
}

// similarity is 1 - levenshtein/maxLen, in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	d := levenshtein(a, b)
	max := la
	if lb > max {
		max = lb
	}
	return 1 - float64(d)/float64(max)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
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
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
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
