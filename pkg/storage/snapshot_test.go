package storage

import (
	"testing"
	"time"

	"github.com/statedge/betengine/pkg/mlb"
	"github.com/statedge/betengine/pkg/roster"
)

func TestSaveRosterSnapshotRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	games := []mlb.Game{
		{
			ID: 745804, Status: "Scheduled",
			StartTime:  time.Date(2026, 8, 29, 23, 5, 0, 0, time.UTC),
			HomeTeamID: 143, HomeTeam: "Philadelphia Phillies",
			AwayTeamID: 121, AwayTeam: "New York Mets",
			HomeProbablePitcherID: 554430, HomeProbablePitcherName: "Zack Wheeler",
		},
	}
	entries := []roster.Entry{
		{ID: 143, Kind: roster.KindTeam, Name: "Philadelphia Phillies", Abbrev: "PHI", TeamID: 143, TeamName: "Philadelphia Phillies", GameID: 745804, Opponent: "New York Mets"},
		{ID: 547180, Kind: roster.KindPlayer, Name: "Bryce Harper", TeamID: 143, TeamName: "Philadelphia Phillies", Role: roster.RoleBatter, GameID: 745804, Opponent: "New York Mets"},
		{ID: 554430, Kind: roster.KindPlayer, Name: "Zack Wheeler", TeamID: 143, TeamName: "Philadelphia Phillies", Role: roster.RolePitcher, ProbablePitcher: true, GameID: 745804, Opponent: "New York Mets"},
	}

	if err := s.SaveRosterSnapshot("2026-08-29", 1, games, entries); err != nil {
		t.Fatalf("SaveRosterSnapshot failed: %v", err)
	}

	gotGames, err := s.GamesForDay("2026-08-29")
	if err != nil {
		t.Fatalf("GamesForDay failed: %v", err)
	}
	if len(gotGames) != 1 {
		t.Fatalf("Expected 1 game, got %d", len(gotGames))
	}
	g := gotGames[0]
	if g.ID != 745804 || g.HomeProbablePitcherName != "Zack Wheeler" {
		t.Errorf("Game round trip mismatch: %+v", g)
	}
	if !g.StartTime.Equal(games[0].StartTime) {
		t.Errorf("StartTime mismatch: %s", g.StartTime)
	}

	gotEntries, err := s.RosterForDay("2026-08-29")
	if err != nil {
		t.Fatalf("RosterForDay failed: %v", err)
	}
	if len(gotEntries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(gotEntries))
	}
	var wheeler *roster.Entry
	for i := range gotEntries {
		if gotEntries[i].ID == 554430 {
			wheeler = &gotEntries[i]
		}
	}
	if wheeler == nil || !wheeler.ProbablePitcher || wheeler.Role != roster.RolePitcher {
		t.Errorf("Wheeler round trip mismatch: %+v", wheeler)
	}
}

func TestSaveRosterSnapshotReplacesDay(t *testing.T) {
	s := newTestStorage(t)

	day := "2026-08-29"
	first := []roster.Entry{
		{ID: 1, Kind: roster.KindPlayer, Name: "Player One", TeamID: 10, TeamName: "T"},
		{ID: 2, Kind: roster.KindPlayer, Name: "Player Two", TeamID: 10, TeamName: "T"},
	}
	if err := s.SaveRosterSnapshot(day, 1, nil, first); err != nil {
		t.Fatalf("SaveRosterSnapshot failed: %v", err)
	}

	// Second refresh of the same day replaces, never appends.
	second := []roster.Entry{
		{ID: 3, Kind: roster.KindPlayer, Name: "Player Three", TeamID: 10, TeamName: "T"},
	}
	if err := s.SaveRosterSnapshot(day, 2, nil, second); err != nil {
		t.Fatalf("SaveRosterSnapshot failed: %v", err)
	}

	got, err := s.RosterForDay(day)
	if err != nil {
		t.Fatalf("RosterForDay failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("Expected only the replacement entry, got %+v", got)
	}
}
