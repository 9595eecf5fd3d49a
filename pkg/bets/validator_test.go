package bets

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/statedge/betengine/pkg/mlb"
	"github.com/statedge/betengine/pkg/roster"
)

type fakeGames map[int64]*mlb.Game

func (f fakeGames) GameByID(id int64) (*mlb.Game, bool) {
	g, ok := f[id]
	return g, ok
}

var testNow = time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)

func testValidator(t *testing.T) (*Validator, fakeGames) {
	t.Helper()

	entries := []roster.Entry{
		{ID: 1, Kind: roster.KindPlayer, Name: "Bryce Harper", Role: roster.RoleBatter, TeamID: 10, TeamName: "Philadelphia Phillies", GameID: 101},
		{ID: 2, Kind: roster.KindPlayer, Name: "Shohei Ohtani", Role: roster.RoleTwoWay, TeamID: 11, TeamName: "Los Angeles Dodgers", GameID: 102},
		{ID: 3, Kind: roster.KindPlayer, Name: "Zack Wheeler", Role: roster.RolePitcher, TeamID: 10, TeamName: "Philadelphia Phillies", ProbablePitcher: true, GameID: 101},
		{ID: 4, Kind: roster.KindPlayer, Name: "Aaron Nola", Role: roster.RolePitcher, TeamID: 10, TeamName: "Philadelphia Phillies", GameID: 101},
		{ID: 5, Kind: roster.KindPlayer, Name: "Mike Trout", Role: roster.RoleBatter, TeamID: 13, TeamName: "Los Angeles Angels", GameID: 0},
		{ID: 10, Kind: roster.KindTeam, Name: "Philadelphia Phillies", Abbrev: "PHI", TeamID: 10, GameID: 101},
	}
	index := roster.NewIndex()
	index.Replace(roster.NewSnapshot("2026-08-29", 1, entries))

	games := fakeGames{
		101: {ID: 101, Date: "2026-08-29", Status: "Scheduled", HomeTeamID: 10, HomeTeam: "Philadelphia Phillies", AwayTeamID: 14, AwayTeam: "New York Mets", StartTime: testNow.Add(4 * time.Hour)},
		102: {ID: 102, Date: "2026-08-29", Status: "In Progress", HomeTeamID: 11, HomeTeam: "Los Angeles Dodgers", AwayTeamID: 15, AwayTeam: "San Diego Padres"},
	}

	v := NewValidator(index, games)
	v.now = func() time.Time { return testNow }
	return v, games
}

func draftFor(subject string, st StatType, op Operator, target float64) *Draft {
	return &Draft{
		SubjectToken: subject,
		StatType:     st,
		Operator:     op,
		TargetValue:  target,
		Odds:         "+150",
		Units:        decimal.NewFromInt(2),
		RawText:      "test",
	}
}

func TestValidateCommitsBet(t *testing.T) {
	v, _ := testValidator(t)

	bet, err := v.Validate(draftFor("Harper", StatHits, OpOver, 1.5))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if bet.ID == "" {
		t.Error("Committed bet must have an ID")
	}
	if bet.GameID != 101 || bet.SubjectID != 1 {
		t.Errorf("Wrong binding: game %d, subject %d", bet.GameID, bet.SubjectID)
	}
	if bet.Status != StatusPending {
		t.Errorf("Scheduled game should yield Pending, got %s", bet.Status)
	}
	if !bet.DecimalOdds.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("DecimalOdds = %s, want 2.5", bet.DecimalOdds)
	}
	if !bet.ImpliedProb.Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("ImpliedProb = %s, want 0.4", bet.ImpliedProb)
	}
}

func TestValidateLiveGameStartsLive(t *testing.T) {
	v, _ := testValidator(t)

	bet, err := v.Validate(draftFor("Ohtani", StatHomeRuns, OpOver, 0.5))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if bet.Status != StatusLive {
		t.Errorf("In-progress game should yield Live, got %s", bet.Status)
	}
}

func TestValidateMisspellingRejectedWithSuggestions(t *testing.T) {
	v, _ := testValidator(t)

	_, err := v.Validate(draftFor("Shohei Otani", StatHomeRuns, OpOver, 0.5))
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("Expected RejectionError, got %v", err)
	}
	if len(rej.Suggestions) == 0 || rej.Suggestions[0].Name != "Shohei Ohtani" {
		t.Errorf("Expected Ohtani as top suggestion, got %+v", rej.Suggestions)
	}
}

func TestValidateNonProbablePitcherRejected(t *testing.T) {
	v, _ := testValidator(t)

	_, err := v.Validate(draftFor("Nola", StatStrikeouts, OpOver, 5.5))
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("Expected RejectionError, got %v", err)
	}
	if len(rej.Suggestions) != 1 || rej.Suggestions[0].Name != "Zack Wheeler" {
		t.Errorf("Expected probable pitchers as suggestions, got %+v", rej.Suggestions)
	}
}

func TestValidateProbablePitcherAccepted(t *testing.T) {
	v, _ := testValidator(t)

	bet, err := v.Validate(draftFor("Wheeler", StatStrikeouts, OpOver, 6.5))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if bet.SubjectKind != KindPitcher {
		t.Errorf("SubjectKind = %s, want pitcher", bet.SubjectKind)
	}
}

func TestValidatePlayerWithoutGameRejected(t *testing.T) {
	v, _ := testValidator(t)

	_, err := v.Validate(draftFor("Trout", StatHits, OpOver, 1.5))
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("Expected RejectionError, got %v", err)
	}
}

func TestValidateFinalGameRejected(t *testing.T) {
	v, games := testValidator(t)
	games[101].Status = "Final"

	_, err := v.Validate(draftFor("Harper", StatHits, OpOver, 1.5))
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("Expected RejectionError, got %v", err)
	}
}

func TestValidateTeamMoneyline(t *testing.T) {
	v, _ := testValidator(t)

	bet, err := v.Validate(draftFor("PHI", StatMoneyline, OpMoneyline, 0))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if bet.SubjectKind != KindTeam || bet.SubjectID != 10 {
		t.Errorf("Expected team binding, got kind %s id %d", bet.SubjectKind, bet.SubjectID)
	}
}

func TestValidateStaleRoster(t *testing.T) {
	v, _ := testValidator(t)
	v.now = func() time.Time { return testNow.Add(24 * time.Hour) }

	_, err := v.Validate(draftFor("Harper", StatHits, OpOver, 1.5))
	if !errors.Is(err, ErrStaleRoster) {
		t.Fatalf("Expected ErrStaleRoster, got %v", err)
	}
}

func TestValidateIndependentBets(t *testing.T) {
	v, _ := testValidator(t)

	d := draftFor("Harper", StatHits, OpOver, 1.5)
	b1, err1 := v.Validate(d)
	b2, err2 := v.Validate(d)
	if err1 != nil || err2 != nil {
		t.Fatalf("Validate failed: %v %v", err1, err2)
	}
	if b1.ID == b2.ID {
		t.Error("Re-validating the same draft must yield independent bets")
	}
}
