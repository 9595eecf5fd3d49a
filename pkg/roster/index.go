// Package roster maintains the per-day snapshot of teams, active players, and
// probable pitchers, and resolves free-text name tokens against it.
package roster

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind classifies a roster entry for resolution purposes. Pitchers are player
// entries; the kind only matters as a resolver hint.
type Kind string

const (
	KindPlayer  Kind = "player"
	KindPitcher Kind = "pitcher"
	KindTeam    Kind = "team"
	KindAny     Kind = ""
)

// Role is a player's roster role.
type Role string

const (
	RoleBatter  Role = "batter"
	RolePitcher Role = "pitcher"
	RoleTwoWay  Role = "two-way"
)

// Entry is one team or player active in today's slate. Entries are immutable
// once the snapshot is published.
type Entry struct {
	ID              int64
	Kind            Kind // KindPlayer or KindTeam
	Name            string
	Normalized      string
	Abbrev          string // teams only
	TeamID          int64
	TeamName        string
	Role            Role // players only
	ProbablePitcher bool
	GameID          int64
	Opponent        string
}

// Snapshot is an immutable view of one day's slate. Readers never observe a
// partially built snapshot; the Index swaps the whole pointer.
type Snapshot struct {
	Date    string // YYYY-MM-DD
	BuiltAt time.Time
	Version int64

	entries  []Entry
	byName   map[string][]*Entry
	byAbbrev map[string]*Entry
}

// NewSnapshot builds a snapshot for the given date. Entry names are
// normalized here; callers provide display names only.
func NewSnapshot(date string, version int64, entries []Entry) *Snapshot {
	s := &Snapshot{
		Date:     date,
		BuiltAt:  time.Now(),
		Version:  version,
		entries:  entries,
		byName:   make(map[string][]*Entry, len(entries)),
		byAbbrev: make(map[string]*Entry),
	}
	for i := range s.entries {
		e := &s.entries[i]
		e.Normalized = NormalizeName(e.Name)
		s.byName[e.Normalized] = append(s.byName[e.Normalized], e)
		if e.Kind == KindTeam && e.Abbrev != "" {
			s.byAbbrev[strings.ToLower(e.Abbrev)] = e
		}
	}
	return s
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int { return len(s.entries) }

// Entries returns all entries of the given kind. KindAny returns everything,
// KindPitcher returns players rostered as pitchers or two-way.
func (s *Snapshot) Entries(kind Kind) []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for i := range s.entries {
		e := &s.entries[i]
		if matchesKind(e, kind) {
			out = append(out, e)
		}
	}
	return out
}

// ProbablePitchers returns today's announced starters, for diagnostics.
func (s *Snapshot) ProbablePitchers() []Entry {
	var out []Entry
	for i := range s.entries {
		if s.entries[i].ProbablePitcher {
			out = append(out, s.entries[i])
		}
	}
	return out
}

func matchesKind(e *Entry, kind Kind) bool {
	switch kind {
	case KindAny:
		return true
	case KindTeam:
		return e.Kind == KindTeam
	case KindPitcher:
		return e.Kind == KindPlayer && (e.Role == RolePitcher || e.Role == RoleTwoWay)
	default:
		return e.Kind == KindPlayer
	}
}

// Index holds the current day's snapshot, replaced wholesale on each daily
// refresh.
type Index struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewIndex returns an empty index. Current returns nil until the first
// Replace.
func NewIndex() *Index { return &Index{} }

// Replace atomically publishes a new snapshot.
func (i *Index) Replace(snap *Snapshot) {
	i.mu.Lock()
	i.snap = snap
	i.mu.Unlock()
}

// Current returns the current snapshot, or nil before the first refresh.
func (i *Index) Current() *Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snap
}

// FreshFor reports whether the current snapshot was built for the given date.
func (i *Index) FreshFor(date string) bool {
	s := i.Current()
	return s != nil && s.Date == date
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName case-folds, strips accents and punctuation, and collapses
// whitespace so that "José Ramírez " and "jose ramirez" compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name, _, _ = transform.String(deaccent, name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '.':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
