package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/statedge/betengine/pkg/mlb"
	"github.com/statedge/betengine/pkg/roster"
)

// SchedulerConfig configures the polling and refresh cadence.
type SchedulerConfig struct {
	// Polling
	PollInterval       time.Duration
	MaxConcurrentPolls int

	// Active polling window, minutes from midnight local time. Both zero
	// disables the window and polls around the clock.
	WindowStartMin int
	WindowEndMin   int

	// Daily refresh
	RefreshCheckInterval time.Duration

	// Pregame alert lead times, longest first.
	PregameLeads []time.Duration
}

// DefaultSchedulerConfig returns default configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:         20 * time.Second,
		MaxConcurrentPolls:   4,
		WindowStartMin:       10 * 60,
		WindowEndMin:         23*60 + 59,
		RefreshCheckInterval: time.Minute,
		PregameLeads: []time.Duration{
			120 * time.Minute,
			30 * time.Minute,
			10 * time.Minute,
		},
	}
}

func (c *SchedulerConfig) inWindow(t time.Time) bool {
	if c.WindowStartMin == 0 && c.WindowEndMin == 0 {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	return m >= c.WindowStartMin && m <= c.WindowEndMin
}

// Scheduler drives the tracking engine: it refreshes the daily roster
// snapshot, polls live feeds for every game with open bets, and emits
// pregame reminders. At most one poll per game is in flight at any time;
// polls for distinct games run concurrently up to MaxConcurrentPolls.
type Scheduler struct {
	config *SchedulerConfig
	client *mlb.Client
	index  *roster.Index
	engine *Engine

	metrics *Metrics

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	games        map[int64]*mlb.Game
	pollInFlight map[int64]bool
	pregameSent  map[int64]map[time.Duration]bool
	version      int64

	snapshots SnapshotStore

	onAlert func(*Alert)
	onError func(error)
}

// SnapshotStore persists the daily slate alongside the in-memory index. May
// be left unset; refresh then only publishes in memory.
type SnapshotStore interface {
	SaveRosterSnapshot(date string, version int64, games []mlb.Game, entries []roster.Entry) error
}

// NewScheduler creates a scheduler. metrics may be nil.
func NewScheduler(config *SchedulerConfig, client *mlb.Client, index *roster.Index, engine *Engine, metrics *Metrics) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		config:       config,
		client:       client,
		index:        index,
		engine:       engine,
		metrics:      metrics,
		stopCh:       make(chan struct{}),
		games:        make(map[int64]*mlb.Game),
		pollInFlight: make(map[int64]bool),
		pregameSent:  make(map[int64]map[time.Duration]bool),
	}
}

// OnAlert sets the callback for pregame alerts.
func (s *Scheduler) OnAlert(fn func(*Alert)) { s.onAlert = fn }

// SetSnapshotStore enables persisting each refreshed slate.
func (s *Scheduler) SetSnapshotStore(st SnapshotStore) { s.snapshots = st }

// OnError sets the callback for background loop errors.
func (s *Scheduler) OnError(fn func(error)) { s.onError = fn }

// Start runs an initial roster refresh and starts the background loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.RefreshRosters(ctx); err != nil {
		s.handleError(fmt.Errorf("initial roster refresh failed: %w", err))
	}

	s.wg.Add(3)
	go s.pollLoop(ctx)
	go s.refreshLoop(ctx)
	go s.pregameLoop(ctx)

	return nil
}

// Stop signals the loops to exit and waits for in-flight polls to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GameByID returns a game from today's schedule.
func (s *Scheduler) GameByID(id int64) (*mlb.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	return g, ok
}

// Games returns today's schedule.
func (s *Scheduler) Games() []*mlb.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*mlb.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	return out
}

// --- Background Loops ---

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.config.inWindow(timeNow()) {
				continue
			}
			s.runPollPass(ctx)
		}
	}
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.RefreshCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			today := time.Now().Format("2006-01-02")
			if s.index.FreshFor(today) {
				continue
			}
			if err := s.RefreshRosters(ctx); err != nil {
				s.handleError(fmt.Errorf("roster refresh failed: %w", err))
			}
		}
	}
}

func (s *Scheduler) pregameLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkPregame()
		}
	}
}

// --- Polling ---

// runPollPass polls every game that still has open bets. A game already being
// polled is skipped, so passes never overlap per game; distinct games run
// concurrently behind a semaphore.
func (s *Scheduler) runPollPass(ctx context.Context) {
	gameIDs := s.engine.OpenGameIDs()
	if len(gameIDs) == 0 {
		return
	}

	sem := make(chan struct{}, s.config.MaxConcurrentPolls)
	for _, gameID := range gameIDs {
		s.mu.Lock()
		if s.pollInFlight[gameID] {
			s.mu.Unlock()
			continue
		}
		s.pollInFlight[gameID] = true
		s.mu.Unlock()

		sem <- struct{}{}
		s.wg.Add(1)
		go func(gameID int64) {
			defer s.wg.Done()
			defer func() {
				<-sem
				s.mu.Lock()
				delete(s.pollInFlight, gameID)
				s.mu.Unlock()
			}()
			s.pollGame(ctx, gameID)
		}(gameID)
	}
}

// pollGame fetches new events for one game and applies them in timestamp
// order. Upstream failures are logged and retried on the next pass; tracked
// state is never mutated on failure.
func (s *Scheduler) pollGame(ctx context.Context, gameID int64) {
	start := time.Now()

	since := s.engine.LastEventTime(gameID)
	events, err := s.client.LiveEvents(ctx, gameID, since)
	if err != nil {
		log.Printf("[scheduler] poll failed for game %d: %v", gameID, err)
		if s.metrics != nil {
			s.metrics.RecordPoll("error", time.Since(start).Seconds())
			s.metrics.RecordUpstreamError("live_events")
		}
		return
	}

	for i := range events {
		s.engine.ApplyEvent(&events[i])
	}

	if s.metrics != nil {
		s.metrics.RecordPoll("ok", time.Since(start).Seconds())
		s.metrics.OpenBetsGauge.Set(float64(len(s.engine.OpenBets())))
	}
}

// --- Daily Refresh ---

// RefreshRosters rebuilds the day's roster snapshot from the league API:
// all teams, their rosters, and today's schedule with probable pitchers.
// The snapshot is swapped atomically; resolution against the old snapshot
// finishes unaffected.
func (s *Scheduler) RefreshRosters(ctx context.Context) error {
	today := time.Now().Format("2006-01-02")
	log.Printf("[scheduler] refreshing rosters for %s", today)

	teams, err := s.client.Teams(ctx)
	if err != nil {
		return fmt.Errorf("fetch teams: %w", err)
	}
	schedule, err := s.client.Schedule(ctx, today)
	if err != nil {
		return fmt.Errorf("fetch schedule: %w", err)
	}

	gameByTeam := make(map[int64]*mlb.Game, len(schedule)*2)
	probables := make(map[int64]bool)
	games := make(map[int64]*mlb.Game, len(schedule))
	for i := range schedule {
		g := &schedule[i]
		games[g.ID] = g
		gameByTeam[g.HomeTeamID] = g
		gameByTeam[g.AwayTeamID] = g
		if g.HomeProbablePitcherID != 0 {
			probables[g.HomeProbablePitcherID] = true
		}
		if g.AwayProbablePitcherID != 0 {
			probables[g.AwayProbablePitcherID] = true
		}
	}

	var entries []roster.Entry
	teamNames := make(map[int64]string, len(teams))
	for _, t := range teams {
		teamNames[t.ID] = t.Name
	}

	for _, t := range teams {
		g := gameByTeam[t.ID]
		var gameID int64
		var opponent string
		if g != nil {
			gameID = g.ID
			if g.HomeTeamID == t.ID {
				opponent = g.AwayTeam
			} else {
				opponent = g.HomeTeam
			}
		}

		entries = append(entries, roster.Entry{
			ID:       t.ID,
			Kind:     roster.KindTeam,
			Name:     t.Name,
			Abbrev:   t.Abbrev,
			TeamID:   t.ID,
			TeamName: t.Name,
			GameID:   gameID,
			Opponent: opponent,
		})

		players, err := s.client.Roster(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("fetch roster for team %d: %w", t.ID, err)
		}
		for _, p := range players {
			role := roster.RoleBatter
			switch {
			case p.TwoWay:
				role = roster.RoleTwoWay
			case p.Position == "P":
				role = roster.RolePitcher
			}
			entries = append(entries, roster.Entry{
				ID:              p.ID,
				Kind:            roster.KindPlayer,
				Name:            p.FullName,
				TeamID:          t.ID,
				TeamName:        teamNames[t.ID],
				Role:            role,
				ProbablePitcher: probables[p.ID],
				GameID:          gameID,
				Opponent:        opponent,
			})
		}
	}

	s.mu.Lock()
	s.version++
	version := s.version
	s.games = games
	s.mu.Unlock()

	snap := roster.NewSnapshot(today, version, entries)
	s.index.Replace(snap)

	if s.snapshots != nil {
		if err := s.snapshots.SaveRosterSnapshot(today, version, schedule, entries); err != nil {
			s.handleError(fmt.Errorf("persist roster snapshot: %w", err))
		}
	}

	log.Printf("[scheduler] roster snapshot v%d ready: %d entries, %d games", version, snap.Len(), len(games))
	return nil
}

// --- Pregame Alerts ---

// checkPregame emits one reminder per game per configured lead time once the
// clock is inside that lead window. A missed window (process restart, long
// stall) fires on the next check rather than being skipped.
func (s *Scheduler) checkPregame() {
	now := timeNow()

	for _, gameID := range s.engine.OpenGameIDs() {
		s.mu.RLock()
		g := s.games[gameID]
		s.mu.RUnlock()
		if g == nil || g.StartTime.IsZero() || !g.StartTime.After(now) {
			continue
		}

		until := g.StartTime.Sub(now)
		// Only the tightest lead whose window contains the clock fires;
		// wider windows skipped over are never back-filled.
		var lead time.Duration
		for _, l := range s.config.PregameLeads {
			if until <= l && (lead == 0 || l < lead) {
				lead = l
			}
		}
		if lead == 0 {
			continue
		}
		if s.markPregameSent(gameID, lead) {
			s.emitPregame(g, lead, until)
		}
	}
}

func (s *Scheduler) markPregameSent(gameID int64, lead time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := s.pregameSent[gameID]
	if sent == nil {
		sent = make(map[time.Duration]bool)
		s.pregameSent[gameID] = sent
	}
	if sent[lead] {
		return false
	}
	sent[lead] = true
	return true
}

func (s *Scheduler) emitPregame(g *mlb.Game, lead, until time.Duration) {
	if s.onAlert == nil {
		return
	}
	for _, b := range s.engine.BetsForGame(g.ID) {
		if b.Status.Terminal() {
			continue
		}
		s.onAlert(&Alert{
			ID:           b.ID + fmt.Sprintf("-pregame-%dm", int(lead.Minutes())),
			Type:         AlertPregame,
			BetID:        b.ID,
			GameID:       g.ID,
			SubjectName:  b.SubjectName,
			StatType:     b.StatType,
			Threshold:    int(lead.Minutes()),
			Stage:        fmt.Sprintf("starts_in_%dm", int(until.Round(time.Minute).Minutes())),
			Progress:     b.ProgressPct,
			CurrentValue: b.CurrentValue,
			TargetValue:  b.TargetValue,
			Status:       b.Status,
			RawText:      b.RawText,
			Timestamp:    timeNow(),
		})
	}
}

// timeNow is stubbed in tests.
var timeNow = time.Now

func (s *Scheduler) handleError(err error) {
	log.Printf("[scheduler] %v", err)
	if s.onError != nil {
		s.onError(err)
	}
}

// SchedulerStatus is the /status view of the scheduler.
type SchedulerStatus struct {
	Running       bool   `json:"running"`
	RosterDate    string `json:"roster_date"`
	RosterVersion int64  `json:"roster_version"`
	RosterEntries int    `json:"roster_entries"`
	Games         int    `json:"games"`
	OpenBets      int    `json:"open_bets"`
}

// Status returns the current scheduler status.
func (s *Scheduler) Status() *SchedulerStatus {
	s.mu.RLock()
	running := s.running
	games := len(s.games)
	s.mu.RUnlock()

	st := &SchedulerStatus{
		Running:  running,
		Games:    games,
		OpenBets: len(s.engine.OpenBets()),
	}
	if snap := s.index.Current(); snap != nil {
		st.RosterDate = snap.Date
		st.RosterVersion = snap.Version
		st.RosterEntries = snap.Len()
	}
	return st
}
