package mlb

import "time"

// Team is an MLB team from the /teams endpoint.
type Team struct {
	ID     int64
	Name   string
	Abbrev string
	League string
}

// Player is one roster slot from /teams/{id}/roster.
type Player struct {
	ID       int64
	FullName string
	TeamID   int64
	Position string // position abbreviation, "P" for pitchers
	TwoWay   bool
	Status   string
}

// Game is one scheduled or live game from /schedule.
type Game struct {
	ID         int64
	Date       string // YYYY-MM-DD
	StartTime  time.Time
	Status     string // Scheduled, Pre-Game, In Progress, Live, Final, ...
	HomeTeamID int64
	HomeTeam   string
	AwayTeamID int64
	AwayTeam   string

	HomeProbablePitcherID   int64
	HomeProbablePitcherName string
	AwayProbablePitcherID   int64
	AwayProbablePitcherName string
}

// InProgress reports whether the game is currently being played.
func (g *Game) InProgress() bool {
	return g.Status == "In Progress" || g.Status == "Live"
}

// Final reports whether the game has completed.
func (g *Game) Final() bool {
	return g.Status == "Final" || g.Status == "Game Over" || g.Status == "Completed Early"
}

// StatLine is a subject's cumulative box-score totals at a point in time.
// All fields are running totals for the game, never deltas; out-of-order
// delivery of two lines for the same subject converges on the larger totals.
type StatLine struct {
	Hits        float64
	HomeRuns    float64
	RBIs        float64
	Runs        float64
	Walks       float64
	StolenBases float64
	TotalBases  float64
	Strikeouts  float64 // pitching: strikeouts thrown
}

// GameEvent is one observation of a live game: current inning/status plus the
// cumulative stat totals for every subject in the game. Events carry an ID so
// exact redelivery can be dropped, and a timestamp so stale observations of
// non-cumulative fields (inning, status) can be ignored.
type GameEvent struct {
	GameID    int64
	EventID   string
	Timestamp time.Time
	Inning    int
	Half      string // Top, Bottom
	Status    string
	Final     bool

	PlayerTotals map[int64]StatLine // player ID -> cumulative line
	TeamRuns     map[int64]float64  // team ID -> cumulative runs
}
