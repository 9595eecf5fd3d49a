// Package tracker recomputes open bets against live game events, fires
// milestone alerts, and settles bets at game completion.
package tracker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/statedge/betengine/pkg/bets"
	"github.com/statedge/betengine/pkg/mlb"
)

// AlertType distinguishes the notifications the engine emits.
type AlertType string

const (
	AlertMilestone  AlertType = "milestone"
	AlertSettlement AlertType = "settlement"
	AlertPregame    AlertType = "pregame"
)

// Alert is the payload handed to the messaging collaborator. Stage is a
// phrasing hint so the message layer never recomputes progress semantics.
type Alert struct {
	ID           string          `json:"id"`
	Type         AlertType       `json:"type"`
	BetID        string          `json:"bet_id"`
	GameID       int64           `json:"game_id"`
	SubjectName  string          `json:"subject_name"`
	StatType     bets.StatType   `json:"stat_type"`
	Threshold    int             `json:"threshold,omitempty"`
	Stage        string          `json:"stage"`
	Progress     float64         `json:"progress"`
	CurrentValue float64         `json:"current_value"`
	TargetValue  float64         `json:"target_value"`
	Status       bets.Status     `json:"status"`
	Payout       decimal.Decimal `json:"payout"`
	RawText      string          `json:"raw_text"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Store persists bet mutations and applied stat observations. Implementations
// must tolerate repeated upserts of the same state.
type Store interface {
	UpsertBet(b *bets.Bet) error
	AppendStatRow(gameID, subjectID int64, stat bets.StatType, value float64, ts time.Time) error
}

// Engine holds every tracked bet and applies live game events to them.
// Callers must serialize ApplyEvent per game ID (the scheduling loop does);
// the engine's own lock only protects its maps, it does not provide event
// ordering.
type Engine struct {
	mu sync.RWMutex

	betsByID  map[string]*bets.Bet
	byGame    map[int64][]*bets.Bet
	seenEvent map[int64]map[string]struct{}
	lastEvent map[int64]time.Time

	store   Store // optional
	metrics *Metrics

	onAlert    func(*Alert)
	onProgress func(*bets.Bet)
	onSettle   func(*bets.Bet)
}

// NewEngine creates an empty tracking engine. store may be nil.
func NewEngine(store Store, metrics *Metrics) *Engine {
	return &Engine{
		betsByID:  make(map[string]*bets.Bet),
		byGame:    make(map[int64][]*bets.Bet),
		seenEvent: make(map[int64]map[string]struct{}),
		lastEvent: make(map[int64]time.Time),
		store:     store,
		metrics:   metrics,
	}
}

// OnAlert sets the callback for milestone and settlement alerts.
func (e *Engine) OnAlert(fn func(*Alert)) { e.onAlert = fn }

// OnProgress sets the callback for every progress recomputation.
func (e *Engine) OnProgress(fn func(*bets.Bet)) { e.onProgress = fn }

// OnSettle sets the callback for bets reaching a terminal status.
func (e *Engine) OnSettle(fn func(*bets.Bet)) { e.onSettle = fn }

// Track registers a committed bet. Initial progress is computed from a zero
// stat line; milestones never fire here.
func (e *Engine) Track(b *bets.Bet) error {
	if b.Status.Terminal() {
		return fmt.Errorf("bet %s is already %s", b.ID, b.Status)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.betsByID[b.ID]; exists {
		return fmt.Errorf("bet %s already tracked", b.ID)
	}
	b.ProgressPct = progressFor(b.Operator, b.CurrentValue, b.TargetValue)
	e.betsByID[b.ID] = b
	e.byGame[b.GameID] = append(e.byGame[b.GameID], b)

	if e.metrics != nil {
		e.metrics.BetsTracked.Inc()
	}
	return e.persist(b)
}

// Cancel marks a non-terminal bet as cancelled. Cancelled bets take no
// further updates and never settle.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.betsByID[id]
	if !ok {
		return fmt.Errorf("bet %s not tracked", id)
	}
	if b.Status.Terminal() {
		return fmt.Errorf("bet %s is already %s", b.ID, b.Status)
	}
	b.Status = bets.StatusCancelled
	settled := time.Now()
	b.SettledAt = &settled
	b.Payout = decimal.Zero
	if e.metrics != nil {
		e.metrics.BetsSettled.WithLabelValues(string(bets.StatusCancelled)).Inc()
	}
	return e.persist(b)
}

// Bet returns a tracked bet by ID.
func (e *Engine) Bet(id string) (*bets.Bet, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.betsByID[id]
	return b, ok
}

// OpenGameIDs returns the games that still have non-terminal bets.
func (e *Engine) OpenGameIDs() []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ids []int64
	for gameID, list := range e.byGame {
		for _, b := range list {
			if !b.Status.Terminal() {
				ids = append(ids, gameID)
				break
			}
		}
	}
	return ids
}

// OpenBets returns all bets in a non-terminal status.
func (e *Engine) OpenBets() []*bets.Bet {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*bets.Bet
	for _, b := range e.betsByID {
		if !b.Status.Terminal() {
			out = append(out, b)
		}
	}
	return out
}

// BetsForGame returns all bets tied to a game.
func (e *Engine) BetsForGame(gameID int64) []*bets.Bet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*bets.Bet(nil), e.byGame[gameID]...)
}

// LastEventTime returns the newest applied event timestamp for a game, for
// use as the poll cursor.
func (e *Engine) LastEventTime(gameID int64) time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastEvent[gameID]
}

// ApplyEvent applies one live game observation to every open bet on that
// game. Duplicate events are no-ops; out-of-order delivery converges because
// stat totals are cumulative and merged with max. Events for unknown games
// are dropped with a diagnostic, never an error.
func (e *Engine) ApplyEvent(ev *mlb.GameEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	gameBets := e.byGame[ev.GameID]
	if len(gameBets) == 0 {
		log.Printf("[engine] ignoring event for untracked game %d", ev.GameID)
		if e.metrics != nil {
			e.metrics.EventsIgnored.WithLabelValues("unknown_game").Inc()
		}
		return
	}

	seen := e.seenEvent[ev.GameID]
	if seen == nil {
		seen = make(map[string]struct{})
		e.seenEvent[ev.GameID] = seen
	}
	if _, dup := seen[ev.EventID]; dup {
		if e.metrics != nil {
			e.metrics.EventsIgnored.WithLabelValues("duplicate").Inc()
		}
		return
	}
	seen[ev.EventID] = struct{}{}
	if ev.Timestamp.After(e.lastEvent[ev.GameID]) {
		e.lastEvent[ev.GameID] = ev.Timestamp
	}

	if e.metrics != nil {
		e.metrics.EventsApplied.Inc()
	}

	for _, b := range gameBets {
		if b.Status.Terminal() {
			continue
		}
		e.applyToBet(b, ev)
	}
}

func (e *Engine) applyToBet(b *bets.Bet, ev *mlb.GameEvent) {
	value, ok := subjectValue(b, ev)
	if !ok && b.SubjectKind != bets.KindTeam {
		// Subject absent from this observation; nothing to update yet.
		if !ev.Final {
			return
		}
		value = b.CurrentValue
	}

	// Box-score totals are cumulative: merging with max makes duplicate and
	// out-of-order delivery converge on the true running total.
	if value > b.CurrentValue {
		b.CurrentValue = value
		if e.store != nil {
			if err := e.store.AppendStatRow(b.GameID, b.SubjectID, b.StatType, value, ev.Timestamp); err != nil {
				log.Printf("[engine] stat row append failed for bet %s: %v", b.ID, err)
			}
		}
	}

	if b.Status == bets.StatusPending && inProgressStatus(ev.Status) {
		b.Status = bets.StatusLive
	}

	prevProgress := b.ProgressPct
	b.ProgressPct = progressFor(b.Operator, b.CurrentValue, b.TargetValue)

	// A busted under is decided before game end.
	if b.Operator == bets.OpUnder && b.CurrentValue >= b.TargetValue {
		e.settle(b, bets.StatusLost, ev.Timestamp)
		return
	}

	e.fireMilestones(b, prevProgress)

	if ev.Final {
		e.settleAtFinal(b, ev)
		return
	}

	if e.onProgress != nil {
		e.onProgress(b)
	}
	if err := e.persist(b); err != nil {
		log.Printf("[engine] persist failed for bet %s: %v", b.ID, err)
	}
}

// fireMilestones emits one alert per threshold crossed on this update, in
// ascending order. A threshold already in MilestonesFired never re-fires.
func (e *Engine) fireMilestones(b *bets.Bet, prevProgress float64) {
	for _, threshold := range bets.MilestoneThresholds {
		t := float64(threshold)
		if b.MilestoneFired(threshold) || prevProgress >= t || b.ProgressPct < t {
			continue
		}
		b.MarkMilestone(threshold)
		if e.metrics != nil {
			e.metrics.MilestonesFired.WithLabelValues(fmt.Sprintf("%d", threshold)).Inc()
		}
		e.emitAlert(b, AlertMilestone, threshold, milestoneStage(threshold))
	}
}

func (e *Engine) settleAtFinal(b *bets.Bet, ev *mlb.GameEvent) {
	status := finalStatus(b, ev)
	e.settle(b, status, ev.Timestamp)
}

// finalStatus applies the settlement semantics per operator. Exact equality
// on an over line pushes; a busted under was already settled mid-game, so
// equality here only arises for over/exactly/moneyline.
func finalStatus(b *bets.Bet, ev *mlb.GameEvent) bets.Status {
	switch b.Operator {
	case bets.OpOver:
		switch {
		case b.CurrentValue > b.TargetValue:
			return bets.StatusWon
		case b.CurrentValue == b.TargetValue:
			return bets.StatusPush
		default:
			return bets.StatusLost
		}
	case bets.OpUnder:
		if b.CurrentValue >= b.TargetValue {
			return bets.StatusLost
		}
		return bets.StatusWon
	case bets.OpExactly:
		if b.CurrentValue == b.TargetValue {
			return bets.StatusWon
		}
		return bets.StatusLost
	case bets.OpMoneyline:
		own, opp := moneylineRuns(b.SubjectID, ev)
		switch {
		case own > opp:
			return bets.StatusWon
		case own == opp:
			return bets.StatusPush
		default:
			return bets.StatusLost
		}
	}
	return bets.StatusLost
}

// settle finalizes a bet. Terminal states are immutable; settlement of an
// already-settled bet is a no-op, so completion-event redelivery is safe.
func (e *Engine) settle(b *bets.Bet, status bets.Status, at time.Time) {
	if b.Status.Terminal() {
		return
	}

	b.Status = status
	settled := at
	b.SettledAt = &settled

	switch status {
	case bets.StatusWon:
		b.ProgressPct = 100
		b.Payout = b.Units.Mul(b.DecimalOdds)
	case bets.StatusPush:
		b.Payout = b.Units
	default:
		if b.Operator.Binary() {
			b.ProgressPct = 0
		}
		b.Payout = decimal.Zero
	}

	if e.metrics != nil {
		e.metrics.BetsSettled.WithLabelValues(string(status)).Inc()
	}
	e.emitAlert(b, AlertSettlement, 0, settlementStage(status))

	if e.onSettle != nil {
		e.onSettle(b)
	}
	if err := e.persist(b); err != nil {
		log.Printf("[engine] persist failed for settled bet %s: %v", b.ID, err)
	}
}

func (e *Engine) emitAlert(b *bets.Bet, typ AlertType, threshold int, stage string) {
	if e.onAlert == nil {
		return
	}
	e.onAlert(&Alert{
		ID:           uuid.New().String(),
		Type:         typ,
		BetID:        b.ID,
		GameID:       b.GameID,
		SubjectName:  b.SubjectName,
		StatType:     b.StatType,
		Threshold:    threshold,
		Stage:        stage,
		Progress:     b.ProgressPct,
		CurrentValue: b.CurrentValue,
		TargetValue:  b.TargetValue,
		Status:       b.Status,
		Payout:       b.Payout,
		RawText:      b.RawText,
		Timestamp:    time.Now(),
	})
}

func (e *Engine) persist(b *bets.Bet) error {
	if e.store == nil {
		return nil
	}
	return e.store.UpsertBet(b)
}

// subjectValue extracts the bet's stat from the event's cumulative totals.
func subjectValue(b *bets.Bet, ev *mlb.GameEvent) (float64, bool) {
	if b.SubjectKind == bets.KindTeam {
		runs, ok := ev.TeamRuns[b.SubjectID]
		return runs, ok
	}

	line, ok := ev.PlayerTotals[b.SubjectID]
	if !ok {
		return 0, false
	}
	switch b.StatType {
	case bets.StatHits:
		return line.Hits, true
	case bets.StatHomeRuns:
		return line.HomeRuns, true
	case bets.StatRBIs:
		return line.RBIs, true
	case bets.StatRuns:
		return line.Runs, true
	case bets.StatWalks:
		return line.Walks, true
	case bets.StatStolenBases:
		return line.StolenBases, true
	case bets.StatTotalBases:
		return line.TotalBases, true
	case bets.StatStrikeouts:
		return line.Strikeouts, true
	}
	return 0, false
}

// moneylineRuns returns the subject team's runs and its opponent's.
func moneylineRuns(teamID int64, ev *mlb.GameEvent) (own, opp float64) {
	for id, runs := range ev.TeamRuns {
		if id == teamID {
			own = runs
		} else {
			opp = runs
		}
	}
	return own, opp
}

// progressFor computes completion percentage, clamped to [0,100]. Binary
// operators (exactly, moneyline) have no partial progress.
func progressFor(op bets.Operator, current, target float64) float64 {
	switch op {
	case bets.OpOver:
		if target <= 0 {
			return 0
		}
		if current >= target {
			return 100
		}
		return clamp(100 * current / target)
	case bets.OpUnder:
		if target <= 0 {
			return 0
		}
		return clamp(100 * (target - current) / target)
	default:
		// Binary operators stay at 0 until the deciding event.
		return 0
	}
}

func clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func inProgressStatus(status string) bool {
	return status == "In Progress" || status == "Live"
}

func milestoneStage(threshold int) string {
	switch threshold {
	case 50:
		return "halfway"
	case 80:
		return "closing"
	default:
		return "target_hit"
	}
}

func settlementStage(status bets.Status) string {
	switch status {
	case bets.StatusWon:
		return "won"
	case bets.StatusPush:
		return "push"
	default:
		return "lost"
	}
}
