package mlb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(
		WithBaseURL(srv.URL),
		WithRateLimit(1000, 1000),
		WithRetries(1, time.Millisecond),
	)
	return c, srv
}

func TestTeams(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teams" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("sportId") != "1" {
			t.Error("Expected sportId=1")
		}
		w.Write([]byte(`{"teams":[
			{"id":143,"name":"Philadelphia Phillies","abbreviation":"PHI","league":{"name":"National League"}},
			{"id":119,"name":"Los Angeles Dodgers","abbreviation":"LAD","league":{"name":"National League"}}
		]}`))
	}))
	defer srv.Close()

	teams, err := c.Teams(context.Background())
	if err != nil {
		t.Fatalf("Teams failed: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("Expected 2 teams, got %d", len(teams))
	}
	if teams[0].ID != 143 || teams[0].Abbrev != "PHI" {
		t.Errorf("Unexpected team: %+v", teams[0])
	}
}

func TestRoster(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teams/119/roster" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"roster":[
			{"person":{"id":660271,"fullName":"Shohei Ohtani"},"position":{"abbreviation":"TWP"},"status":{"description":"Active"}},
			{"person":{"id":605400,"fullName":"Mookie Betts"},"position":{"abbreviation":"RF"},"status":{"description":"Active"}}
		]}`))
	}))
	defer srv.Close()

	players, err := c.Roster(context.Background(), 119)
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("Expected 2 players, got %d", len(players))
	}
	if !players[0].TwoWay {
		t.Error("TWP position should mark the player two-way")
	}
	if players[1].TwoWay {
		t.Error("RF position must not be two-way")
	}
	if players[0].TeamID != 119 {
		t.Errorf("TeamID = %d, want 119", players[0].TeamID)
	}
}

func TestSchedule(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("hydrate") != "probablePitcher" {
			t.Error("Expected probablePitcher hydration")
		}
		w.Write([]byte(`{"dates":[{"games":[{
			"gamePk":745804,
			"gameDate":"2026-08-29T23:05:00Z",
			"status":{"detailedState":"Scheduled"},
			"teams":{
				"home":{"team":{"id":143,"name":"Philadelphia Phillies"},"probablePitcher":{"id":554430,"fullName":"Zack Wheeler"}},
				"away":{"team":{"id":121,"name":"New York Mets"}}
			}
		}]}]}`))
	}))
	defer srv.Close()

	games, err := c.Schedule(context.Background(), "2026-08-29")
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("Expected 1 game, got %d", len(games))
	}
	g := games[0]
	if g.ID != 745804 || g.HomeTeamID != 143 || g.AwayTeamID != 121 {
		t.Errorf("Unexpected game: %+v", g)
	}
	if g.HomeProbablePitcherID != 554430 || g.HomeProbablePitcherName != "Zack Wheeler" {
		t.Errorf("Expected hydrated probable pitcher, got %+v", g)
	}
	if g.AwayProbablePitcherID != 0 {
		t.Errorf("Unannounced probable pitcher should be zero, got %d", g.AwayProbablePitcherID)
	}
	if g.StartTime.IsZero() {
		t.Error("Expected parsed start time")
	}
}

const liveFeedBody = `{
	"metaData":{"timeStamp":"20260829_231500"},
	"gameData":{"status":{"detailedState":"In Progress","abstractGameState":"Live"}},
	"liveData":{
		"linescore":{
			"currentInning":4,"inningState":"Top",
			"teams":{"home":{"runs":2},"away":{"runs":1}}
		},
		"boxscore":{"teams":{
			"home":{"team":{"id":143},"players":{
				"ID547180":{"person":{"id":547180},"stats":{"batting":{"hits":2,"homeRuns":1,"rbi":2,"runs":1,"baseOnBalls":0,"stolenBases":0,"totalBases":5},"pitching":{}}},
				"ID554430":{"person":{"id":554430},"stats":{"batting":{},"pitching":{"strikeOuts":6}}}
			}},
			"away":{"team":{"id":121},"players":{}}
		}}
	}
}`

func TestLiveEvents(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/game/745804/feed/live" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(liveFeedBody))
	}))
	defer srv.Close()

	events, err := c.LiveEvents(context.Background(), 745804, time.Time{})
	if err != nil {
		t.Fatalf("LiveEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.GameID != 745804 || ev.Inning != 4 || ev.Half != "Top" || ev.Final {
		t.Errorf("Unexpected event header: %+v", ev)
	}

	line := ev.PlayerTotals[547180]
	if line.Hits != 2 || line.HomeRuns != 1 || line.TotalBases != 5 {
		t.Errorf("Unexpected batting line: %+v", line)
	}
	if ev.PlayerTotals[554430].Strikeouts != 6 {
		t.Errorf("Expected 6 pitching strikeouts, got %+v", ev.PlayerTotals[554430])
	}
	if ev.TeamRuns[143] != 2 || ev.TeamRuns[121] != 1 {
		t.Errorf("Unexpected team runs: %+v", ev.TeamRuns)
	}
}

func TestLiveEventsSinceFilter(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(liveFeedBody))
	}))
	defer srv.Close()

	feedTime := time.Date(2026, 8, 29, 23, 15, 0, 0, time.UTC)
	events, err := c.LiveEvents(context.Background(), 745804, feedTime)
	if err != nil {
		t.Fatalf("LiveEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Feed not newer than since must yield no events, got %d", len(events))
	}
}

func TestLiveEventsFinal(t *testing.T) {
	body := `{
		"metaData":{"timeStamp":"20260830_021000"},
		"gameData":{"status":{"detailedState":"Final","abstractGameState":"Final"}},
		"liveData":{"linescore":{"teams":{"home":{"runs":5},"away":{"runs":3}}},
			"boxscore":{"teams":{"home":{"team":{"id":143},"players":{}},"away":{"team":{"id":121},"players":{}}}}}
	}`
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	events, err := c.LiveEvents(context.Background(), 745804, time.Time{})
	if err != nil {
		t.Fatalf("LiveEvents failed: %v", err)
	}
	if len(events) != 1 || !events[0].Final {
		t.Fatalf("Expected one final event, got %+v", events)
	}
}

func TestGetRetriesThenFails(t *testing.T) {
	var calls int
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := c.Teams(context.Background())
	if err == nil {
		t.Fatal("Expected error after retries")
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected UpstreamError, got %T", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 attempts (1 retry), got %d", calls)
	}
}

func TestGetRecoversAfterTransientError(t *testing.T) {
	var calls int
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"teams":[{"id":1,"name":"Test","abbreviation":"TST","league":{"name":"NL"}}]}`))
	}))
	defer srv.Close()

	teams, err := c.Teams(context.Background())
	if err != nil {
		t.Fatalf("Teams failed after retry: %v", err)
	}
	if len(teams) != 1 {
		t.Errorf("Expected 1 team, got %d", len(teams))
	}
}

func TestLiveEventsUnparsableTimestampDropped(t *testing.T) {
	body := `{
		"metaData":{"timeStamp":"not-a-timestamp"},
		"gameData":{"status":{"detailedState":"In Progress","abstractGameState":"Live"}},
		"liveData":{"linescore":{"teams":{"home":{"runs":1},"away":{"runs":0}}},
			"boxscore":{"teams":{"home":{"team":{"id":143},"players":{}},"away":{"team":{"id":121},"players":{}}}}}
	}`
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	events, err := c.LiveEvents(context.Background(), 745804, time.Time{})
	if err != nil {
		t.Fatalf("A malformed feed timestamp must not error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected the observation to be dropped, got %d events", len(events))
	}
}
