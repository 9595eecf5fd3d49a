// Package mlb is a client for the MLB Stats API: schedules, rosters, probable
// pitchers, and live game feeds.
package mlb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public MLB Stats API.
	DefaultBaseURL = "https://statsapi.mlb.com/api/v1"

	// The Stats API is unauthenticated; stay polite.
	defaultRateLimit = 5.0
	defaultBurst     = 3

	defaultMaxRetries   = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// UpstreamError wraps a league API failure after retries were exhausted.
// Callers treat it as a degraded-mode signal, never as fatal.
type UpstreamError struct {
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("mlb api unavailable (%s): %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client is an MLB Stats API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetries sets the retry count and initial backoff for failed requests.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
		c.backoff = backoff
	}
}

// NewClient creates a new Stats API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
		backoff:    defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Teams fetches all MLB teams.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	params := url.Values{"sportId": {"1"}}
	var payload struct {
		Teams []struct {
			ID           int64  `json:"id"`
			Name         string `json:"name"`
			Abbreviation string `json:"abbreviation"`
			League       struct {
				Name string `json:"name"`
			} `json:"league"`
		} `json:"teams"`
	}
	if err := c.get(ctx, "/teams", params, &payload); err != nil {
		return nil, err
	}
	teams := make([]Team, 0, len(payload.Teams))
	for _, t := range payload.Teams {
		teams = append(teams, Team{
			ID:     t.ID,
			Name:   t.Name,
			Abbrev: t.Abbreviation,
			League: t.League.Name,
		})
	}
	return teams, nil
}

// Roster fetches the active roster for one team.
func (c *Client) Roster(ctx context.Context, teamID int64) ([]Player, error) {
	var payload struct {
		Roster []struct {
			Person struct {
				ID       int64  `json:"id"`
				FullName string `json:"fullName"`
			} `json:"person"`
			Position struct {
				Abbreviation string `json:"abbreviation"`
			} `json:"position"`
			Status struct {
				Description string `json:"description"`
			} `json:"status"`
		} `json:"roster"`
	}
	path := fmt.Sprintf("/teams/%d/roster", teamID)
	if err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, err
	}
	players := make([]Player, 0, len(payload.Roster))
	for _, r := range payload.Roster {
		players = append(players, Player{
			ID:       r.Person.ID,
			FullName: r.Person.FullName,
			TeamID:   teamID,
			Position: r.Position.Abbreviation,
			TwoWay:   r.Position.Abbreviation == "TWP",
			Status:   r.Status.Description,
		})
	}
	return players, nil
}

// Schedule fetches the slate for a date (YYYY-MM-DD), with probable pitchers
// hydrated.
func (c *Client) Schedule(ctx context.Context, date string) ([]Game, error) {
	params := url.Values{
		"sportId": {"1"},
		"date":    {date},
		"hydrate": {"probablePitcher"},
	}
	var payload struct {
		Dates []struct {
			Games []scheduleGame `json:"games"`
		} `json:"dates"`
	}
	if err := c.get(ctx, "/schedule", params, &payload); err != nil {
		return nil, err
	}
	var games []Game
	for _, d := range payload.Dates {
		for _, g := range d.Games {
			games = append(games, g.toGame(date))
		}
	}
	return games, nil
}

type scheduleGame struct {
	GamePk   int64     `json:"gamePk"`
	GameDate time.Time `json:"gameDate"`
	Status   struct {
		DetailedState string `json:"detailedState"`
	} `json:"status"`
	Teams struct {
		Home scheduleSide `json:"home"`
		Away scheduleSide `json:"away"`
	} `json:"teams"`
}

type scheduleSide struct {
	Team struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	ProbablePitcher struct {
		ID       int64  `json:"id"`
		FullName string `json:"fullName"`
	} `json:"probablePitcher"`
}

func (g scheduleGame) toGame(date string) Game {
	return Game{
		ID:                      g.GamePk,
		Date:                    date,
		StartTime:               g.GameDate,
		Status:                  g.Status.DetailedState,
		HomeTeamID:              g.Teams.Home.Team.ID,
		HomeTeam:                g.Teams.Home.Team.Name,
		AwayTeamID:              g.Teams.Away.Team.ID,
		AwayTeam:                g.Teams.Away.Team.Name,
		HomeProbablePitcherID:   g.Teams.Home.ProbablePitcher.ID,
		HomeProbablePitcherName: g.Teams.Home.ProbablePitcher.FullName,
		AwayProbablePitcherID:   g.Teams.Away.ProbablePitcher.ID,
		AwayProbablePitcherName: g.Teams.Away.ProbablePitcher.FullName,
	}
}

// LiveEvents fetches the live feed for a game and converts it to events newer
// than since. The feed is a cumulative box score, so each poll yields at most
// one event carrying every subject's running totals.
func (c *Client) LiveEvents(ctx context.Context, gameID int64, since time.Time) ([]GameEvent, error) {
	var payload liveFeed
	path := fmt.Sprintf("/game/%d/feed/live", gameID)
	if err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, err
	}

	ev := payload.toEvent(gameID)
	if ev == nil {
		log.Printf("[mlb] game %d: unparsable feed timestamp %q, observation dropped",
			gameID, payload.MetaData.TimeStamp)
		return nil, nil
	}
	if !ev.Timestamp.After(since) {
		return nil, nil
	}
	return []GameEvent{*ev}, nil
}

type liveFeed struct {
	MetaData struct {
		TimeStamp string `json:"timeStamp"` // 20250819_182000
	} `json:"metaData"`
	GameData struct {
		Status struct {
			DetailedState     string `json:"detailedState"`
			AbstractGameState string `json:"abstractGameState"`
		} `json:"status"`
	} `json:"gameData"`
	LiveData struct {
		Linescore struct {
			CurrentInning int    `json:"currentInning"`
			InningState   string `json:"inningState"`
			Teams         struct {
				Home struct {
					Runs float64 `json:"runs"`
				} `json:"home"`
				Away struct {
					Runs float64 `json:"runs"`
				} `json:"away"`
			} `json:"teams"`
		} `json:"linescore"`
		Boxscore struct {
			Teams struct {
				Home boxsideTeam `json:"home"`
				Away boxsideTeam `json:"away"`
			} `json:"teams"`
		} `json:"boxscore"`
	} `json:"liveData"`
}

type boxsideTeam struct {
	Team struct {
		ID int64 `json:"id"`
	} `json:"team"`
	Players map[string]struct {
		Person struct {
			ID int64 `json:"id"`
		} `json:"person"`
		Stats struct {
			Batting struct {
				Hits        float64 `json:"hits"`
				HomeRuns    float64 `json:"homeRuns"`
				RBI         float64 `json:"rbi"`
				Runs        float64 `json:"runs"`
				BaseOnBalls float64 `json:"baseOnBalls"`
				StolenBases float64 `json:"stolenBases"`
				TotalBases  float64 `json:"totalBases"`
			} `json:"batting"`
			Pitching struct {
				StrikeOuts float64 `json:"strikeOuts"`
			} `json:"pitching"`
		} `json:"stats"`
	} `json:"players"`
}

func (f *liveFeed) toEvent(gameID int64) *GameEvent {
	ts, err := time.Parse("20060102_150405", f.MetaData.TimeStamp)
	if err != nil {
		return nil
	}

	ev := &GameEvent{
		GameID:       gameID,
		EventID:      fmt.Sprintf("%d-%s", gameID, f.MetaData.TimeStamp),
		Timestamp:    ts,
		Inning:       f.LiveData.Linescore.CurrentInning,
		Half:         f.LiveData.Linescore.InningState,
		Status:       f.GameData.Status.DetailedState,
		Final:        f.GameData.Status.AbstractGameState == "Final",
		PlayerTotals: make(map[int64]StatLine),
		TeamRuns:     make(map[int64]float64),
	}

	for _, side := range []boxsideTeam{f.LiveData.Boxscore.Teams.Home, f.LiveData.Boxscore.Teams.Away} {
		for _, p := range side.Players {
			ev.PlayerTotals[p.Person.ID] = StatLine{
				Hits:        p.Stats.Batting.Hits,
				HomeRuns:    p.Stats.Batting.HomeRuns,
				RBIs:        p.Stats.Batting.RBI,
				Runs:        p.Stats.Batting.Runs,
				Walks:       p.Stats.Batting.BaseOnBalls,
				StolenBases: p.Stats.Batting.StolenBases,
				TotalBases:  p.Stats.Batting.TotalBases,
				Strikeouts:  p.Stats.Pitching.StrikeOuts,
			}
		}
	}
	ev.TeamRuns[f.LiveData.Boxscore.Teams.Home.Team.ID] = f.LiveData.Linescore.Teams.Home.Runs
	ev.TeamRuns[f.LiveData.Boxscore.Teams.Away.Team.ID] = f.LiveData.Linescore.Teams.Away.Runs
	return ev
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &UpstreamError{Endpoint: path, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = c.doGet(ctx, path, params, result)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			break
		}
	}
	return &UpstreamError{Endpoint: path, Err: lastErr}
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
