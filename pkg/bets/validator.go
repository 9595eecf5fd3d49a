package bets

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/statedge/betengine/pkg/mlb"
	"github.com/statedge/betengine/pkg/roster"
)

// ErrStaleRoster means the roster snapshot is not from today. Validation
// never runs against yesterday's slate; the caller should refresh and retry.
var ErrStaleRoster = errors.New("roster snapshot is not from today")

// GameSource looks up today's games by ID. The scheduling loop implements it
// over the daily schedule.
type GameSource interface {
	GameByID(id int64) (*mlb.Game, bool)
}

// Validator composes the parser's draft with entity resolution to produce a
// committed Bet or an actionable rejection. Pure per-request: safe for
// concurrent use, reads only the immutable roster snapshot.
type Validator struct {
	index *roster.Index
	games GameSource
	now   func() time.Time
}

// NewValidator creates a validator over the roster index and game source.
func NewValidator(index *roster.Index, games GameSource) *Validator {
	return &Validator{index: index, games: games, now: time.Now}
}

// Validate resolves the draft's subject against today's roster and binds the
// bet to the subject's game. Re-validating identical text yields independent
// bets; dedup is a caller policy.
func (v *Validator) Validate(draft *Draft) (*Bet, error) {
	today := v.now().Format("2006-01-02")
	if !v.index.FreshFor(today) {
		return nil, ErrStaleRoster
	}
	snap := v.index.Current()

	res, err := roster.ResolveIn(snap, draft.SubjectToken, resolverKind(draft.StatType))
	if err != nil {
		return nil, rejectionFor(draft, err)
	}

	entry := res.Entry
	if entry.GameID == 0 {
		return nil, &RejectionError{
			Reason: fmt.Sprintf("%s (%s) has no game today", entry.Name, entry.TeamName),
		}
	}
	game, ok := v.games.GameByID(entry.GameID)
	if !ok {
		return nil, &RejectionError{
			Reason: fmt.Sprintf("no game %d on today's schedule", entry.GameID),
		}
	}
	if game.Final() {
		return nil, &RejectionError{
			Reason: fmt.Sprintf("%s vs %s is already final", game.AwayTeam, game.HomeTeam),
		}
	}

	decimalOdds, impliedProb, err := ParseAmericanOdds(draft.Odds)
	if err != nil {
		return nil, err
	}

	status := StatusPending
	if game.InProgress() {
		status = StatusLive
	}

	return &Bet{
		ID:          uuid.New().String(),
		GameID:      game.ID,
		SubjectID:   entry.ID,
		SubjectKind: SubjectKindFor(draft.StatType),
		SubjectName: entry.Name,
		StatType:    draft.StatType,
		Operator:    draft.Operator,
		TargetValue: draft.TargetValue,
		Odds:        draft.Odds,
		DecimalOdds: decimalOdds,
		ImpliedProb: impliedProb,
		Units:       draft.Units,
		RawText:     draft.RawText,
		Status:      status,
		CreatedAt:   v.now(),
	}, nil
}

func resolverKind(st StatType) roster.Kind {
	switch SubjectKindFor(st) {
	case KindPitcher:
		return roster.KindPitcher
	case KindTeam:
		return roster.KindTeam
	default:
		return roster.KindPlayer
	}
}

// rejectionFor translates resolver outcomes into the caller-facing rejection,
// carrying the resolver's suggestion list verbatim.
func rejectionFor(draft *Draft, err error) error {
	var notFound *roster.NotFoundError
	if errors.As(err, &notFound) {
		reason := fmt.Sprintf("%q not found in today's slate", draft.SubjectToken)
		if notFound.Ambiguous {
			reason = fmt.Sprintf("%q matches more than one name in today's slate", draft.SubjectToken)
		}
		return &RejectionError{Reason: reason, Suggestions: notFound.Suggestions, Cause: err}
	}

	var ineligible *roster.IneligibleError
	if errors.As(err, &ineligible) {
		return &RejectionError{
			Reason:      fmt.Sprintf("%s is not a probable pitcher today", ineligible.Entry.Name),
			Suggestions: ineligible.ProbablePitchers,
			Cause:       err,
		}
	}

	return &RejectionError{Reason: err.Error(), Cause: err}
}
