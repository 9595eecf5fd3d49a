// Package bets defines the structured bet model and the parsing/validation
// pipeline that turns free-text picks into committed bets.
package bets

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StatType identifies a market in the closed taxonomy. Anything outside this
// set is rejected at parse time.
type StatType string

const (
	StatHits        StatType = "hits"
	StatHomeRuns    StatType = "home_runs"
	StatStrikeouts  StatType = "strikeouts"
	StatRBIs        StatType = "rbis"
	StatRuns        StatType = "runs"
	StatWalks       StatType = "walks"
	StatStolenBases StatType = "stolen_bases"
	StatTotalBases  StatType = "total_bases"
	StatMoneyline   StatType = "moneyline"
	StatTeamTotal   StatType = "team_total"
)

// allStatTypes is the closed taxonomy plus the oracle spellings we accept.
var allStatTypes = map[string]StatType{
	"hits":         StatHits,
	"h":            StatHits,
	"hr":           StatHomeRuns,
	"hrs":          StatHomeRuns,
	"home runs":    StatHomeRuns,
	"home_runs":    StatHomeRuns,
	"k":            StatStrikeouts,
	"ks":           StatStrikeouts,
	"so":           StatStrikeouts,
	"strikeouts":   StatStrikeouts,
	"rbis":         StatRBIs,
	"rbi":          StatRBIs,
	"runs":         StatRuns,
	"walks":        StatWalks,
	"bb":           StatWalks,
	"sb":           StatStolenBases,
	"sbs":          StatStolenBases,
	"stolen bases": StatStolenBases,
	"stolen_bases": StatStolenBases,
	"total bases":  StatTotalBases,
	"total_bases":  StatTotalBases,
	"moneyline":    StatMoneyline,
	"ml":           StatMoneyline,
	"total":        StatTeamTotal,
	"team total":   StatTeamTotal,
	"team_total":   StatTeamTotal,
}

// CanonicalStatType maps an oracle-provided stat label to the taxonomy.
func CanonicalStatType(s string) (StatType, bool) {
	st, ok := allStatTypes[s]
	return st, ok
}

// SubjectKind classifies what a bet is on.
type SubjectKind string

const (
	KindPlayer  SubjectKind = "player"
	KindPitcher SubjectKind = "pitcher"
	KindTeam    SubjectKind = "team"
)

// SubjectKindFor derives the resolver hint from the stat type: strikeouts are
// a pitcher stat, team markets resolve against teams, everything else is a
// batter stat.
func SubjectKindFor(st StatType) SubjectKind {
	switch st {
	case StatStrikeouts:
		return KindPitcher
	case StatMoneyline, StatTeamTotal:
		return KindTeam
	default:
		return KindPlayer
	}
}

// Operator is the comparison applied against the target value.
type Operator string

const (
	OpOver      Operator = "over"
	OpUnder     Operator = "under"
	OpExactly   Operator = "exactly"
	OpMoneyline Operator = "moneyline"
)

// Binary reports whether progress for this operator is all-or-nothing.
func (o Operator) Binary() bool {
	return o == OpExactly || o == OpMoneyline
}

// Status is the bet lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusLive      Status = "Live"
	StatusWon       Status = "Won"
	StatusLost      Status = "Lost"
	StatusPush      Status = "Push"
	StatusCancelled Status = "Cancelled"
)

// Terminal reports whether the status is final. Terminal bets are immutable.
func (s Status) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusPush, StatusCancelled:
		return true
	}
	return false
}

// MilestoneThresholds are the progress percentages that fire one-time alerts,
// in ascending order.
var MilestoneThresholds = [3]int{50, 80, 100}

// Draft is the transient output of the parser, consumed once by the
// validator. It is never persisted.
type Draft struct {
	SubjectToken   string
	StatType       StatType
	Operator       Operator
	TargetValue    float64
	Odds           string
	Units          decimal.Decimal
	RawText        string
	Confidence     int
	Interpretation string
}

// Bet is a committed, validated bet. Created by the validator; after creation
// only the tracking engine mutates the progress and status fields.
type Bet struct {
	ID          string          `json:"id"`
	GameID      int64           `json:"game_id"`
	SubjectID   int64           `json:"subject_id"`
	SubjectKind SubjectKind     `json:"subject_kind"`
	SubjectName string          `json:"subject_name"`
	StatType    StatType        `json:"stat_type"`
	Operator    Operator        `json:"operator"`
	TargetValue float64         `json:"target_value"`
	Odds        string          `json:"odds"`
	DecimalOdds decimal.Decimal `json:"decimal_odds"`
	ImpliedProb decimal.Decimal `json:"implied_probability"`
	Units       decimal.Decimal `json:"units"`
	RawText     string          `json:"raw_text"`

	Status          Status          `json:"status"`
	CurrentValue    float64         `json:"current_value"`
	ProgressPct     float64         `json:"progress_percentage"`
	MilestonesFired []int           `json:"milestones_fired"`
	Payout          decimal.Decimal `json:"payout"`
	CreatedAt       time.Time       `json:"created_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
}

// MilestoneFired reports whether the threshold has already been alerted.
func (b *Bet) MilestoneFired(threshold int) bool {
	for _, m := range b.MilestonesFired {
		if m == threshold {
			return true
		}
	}
	return false
}

// MarkMilestone records a fired threshold. Thresholds are only ever added,
// never removed.
func (b *Bet) MarkMilestone(threshold int) {
	if !b.MilestoneFired(threshold) {
		b.MilestonesFired = append(b.MilestonesFired, threshold)
	}
}

func (b *Bet) String() string {
	return fmt.Sprintf("Bet{%s %s %s %s %.1f %s %su}",
		b.ID, b.SubjectName, b.StatType, b.Operator, b.TargetValue, b.Odds, b.Units)
}
