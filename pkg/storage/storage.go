// Package storage provides SQLite-backed persistence for bets and the stat
// observations applied to them.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/statedge/betengine/pkg/bets"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/betengine/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "betengine", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bets (
			id            TEXT PRIMARY KEY,
			game_id       INTEGER NOT NULL,
			subject_id    INTEGER NOT NULL,
			subject_kind  TEXT NOT NULL,
			subject_name  TEXT NOT NULL,
			stat_type     TEXT NOT NULL,
			operator      TEXT NOT NULL,
			target_value  REAL NOT NULL,
			odds          TEXT NOT NULL,
			decimal_odds  TEXT NOT NULL,
			implied_prob  TEXT NOT NULL,
			units         TEXT NOT NULL,
			payout        TEXT NOT NULL DEFAULT '0',
			raw_text      TEXT NOT NULL,
			status        TEXT NOT NULL,
			current_value REAL NOT NULL DEFAULT 0,
			progress_pct  REAL NOT NULL DEFAULT 0,
			milestones    TEXT NOT NULL DEFAULT '[]',
			created_at    INTEGER NOT NULL,
			settled_at    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_game ON bets(game_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_status ON bets(status)`,
		`CREATE TABLE IF NOT EXISTS stat_rows (
			game_id     INTEGER NOT NULL,
			subject_id  INTEGER NOT NULL,
			stat_type   TEXT NOT NULL,
			value       REAL NOT NULL,
			observed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stat_rows_game ON stat_rows(game_id, subject_id)`,
		`CREATE TABLE IF NOT EXISTS games (
			id               INTEGER NOT NULL,
			date             TEXT NOT NULL,
			start_time       INTEGER NOT NULL,
			status           TEXT NOT NULL,
			home_team_id     INTEGER NOT NULL,
			home_team        TEXT NOT NULL,
			away_team_id     INTEGER NOT NULL,
			away_team        TEXT NOT NULL,
			home_probable_id INTEGER NOT NULL DEFAULT 0,
			home_probable    TEXT NOT NULL DEFAULT '',
			away_probable_id INTEGER NOT NULL DEFAULT 0,
			away_probable    TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS roster_entries (
			id               INTEGER NOT NULL,
			date             TEXT NOT NULL,
			kind             TEXT NOT NULL,
			name             TEXT NOT NULL,
			abbrev           TEXT NOT NULL DEFAULT '',
			team_id          INTEGER NOT NULL,
			team_name        TEXT NOT NULL,
			role             TEXT NOT NULL DEFAULT '',
			probable_pitcher INTEGER NOT NULL DEFAULT 0,
			game_id          INTEGER NOT NULL DEFAULT 0,
			opponent         TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS roster_snapshots (
			date         TEXT PRIMARY KEY,
			version      INTEGER NOT NULL,
			entry_count  INTEGER NOT NULL,
			refreshed_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertBet writes the bet's full state, replacing any previous row.
func (s *Storage) UpsertBet(b *bets.Bet) error {
	milestones, err := json.Marshal(b.MilestonesFired)
	if err != nil {
		return fmt.Errorf("failed to marshal milestones: %w", err)
	}
	var settledAt *int64
	if b.SettledAt != nil {
		n := b.SettledAt.UnixNano()
		settledAt = &n
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO bets
			(id, game_id, subject_id, subject_kind, subject_name, stat_type, operator,
			 target_value, odds, decimal_odds, implied_prob, units, payout, raw_text,
			 status, current_value, progress_pct, milestones, created_at, settled_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.GameID, b.SubjectID, string(b.SubjectKind), b.SubjectName,
		string(b.StatType), string(b.Operator),
		b.TargetValue, b.Odds, b.DecimalOdds.String(), b.ImpliedProb.String(),
		b.Units.String(), b.Payout.String(), b.RawText,
		string(b.Status), b.CurrentValue, b.ProgressPct, string(milestones),
		b.CreatedAt.UnixNano(), settledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bet: %w", err)
	}
	return nil
}

// AppendStatRow records one applied stat observation. Rows are append-only;
// the newest row per (game, subject, stat) is the current total.
func (s *Storage) AppendStatRow(gameID, subjectID int64, stat bets.StatType, value float64, ts time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO stat_rows (game_id, subject_id, stat_type, value, observed_at)
		VALUES (?,?,?,?,?)`,
		gameID, subjectID, string(stat), value, ts.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append stat row: %w", err)
	}
	return nil
}

// GetBet loads one bet by ID.
func (s *Storage) GetBet(id string) (*bets.Bet, error) {
	row := s.db.QueryRow(`SELECT `+betCols+` FROM bets WHERE id = ?`, id)
	b, err := scanBet(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bet not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return b, nil
}

// ListActiveBets returns all bets in a non-terminal status.
func (s *Storage) ListActiveBets() ([]*bets.Bet, error) {
	return s.queryBets(`SELECT ` + betCols + ` FROM bets WHERE status IN ('Pending','Live')`)
}

// ListBets returns every stored bet, newest first.
func (s *Storage) ListBets() ([]*bets.Bet, error) {
	return s.queryBets(`SELECT ` + betCols + ` FROM bets ORDER BY created_at DESC`)
}

// ListBetsForDay returns the bets created within the given day, newest first.
func (s *Storage) ListBetsForDay(day time.Time) ([]*bets.Bet, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	return s.queryBets(`SELECT `+betCols+` FROM bets
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at DESC`,
		start.UnixNano(), end.UnixNano())
}

// CancelBet marks one active bet as cancelled. Terminal bets are untouched.
func (s *Storage) CancelBet(id string) error {
	res, err := s.db.Exec(`
		UPDATE bets SET status = ? WHERE id = ? AND status IN ('Pending','Live')`,
		string(bets.StatusCancelled), id,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel bet: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no active bet: %s", id)
	}
	return nil
}

// CancelActiveBets marks every non-terminal bet as cancelled and returns the
// count affected.
func (s *Storage) CancelActiveBets() (int64, error) {
	res, err := s.db.Exec(`
		UPDATE bets SET status = ? WHERE status IN ('Pending','Live')`,
		string(bets.StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel active bets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ExpireStalePending cancels pending bets created before cutoff; they were
// placed on games that never went live while tracked.
func (s *Storage) ExpireStalePending(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE bets SET status = ? WHERE status = 'Pending' AND created_at < ?`,
		string(bets.StatusCancelled), cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending bets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearBetsForDay deletes all bets created within the given day, along with
// that day's stat rows.
func (s *Storage) ClearBetsForDay(day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM bets WHERE created_at >= ? AND created_at < ?`,
		start.UnixNano(), end.UnixNano()); err != nil {
		return fmt.Errorf("failed to clear bets: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM stat_rows WHERE observed_at >= ? AND observed_at < ?`,
		start.UnixNano(), end.UnixNano()); err != nil {
		return fmt.Errorf("failed to clear stat rows: %w", err)
	}
	return tx.Commit()
}

func (s *Storage) queryBets(query string, args ...any) ([]*bets.Bet, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()

	var out []*bets.Bet
	for rows.Next() {
		b, err := scanBet(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		out = append(out, b)
	}
	if out == nil {
		out = []*bets.Bet{}
	}
	return out, rows.Err()
}

const betCols = `id, game_id, subject_id, subject_kind, subject_name, stat_type, operator,
	target_value, odds, decimal_odds, implied_prob, units, payout, raw_text,
	status, current_value, progress_pct, milestones, created_at, settled_at`

func scanBet(scan func(...any) error) (*bets.Bet, error) {
	var b bets.Bet
	var subjectKind, statType, operator, status string
	var decimalOdds, impliedProb, units, payout, milestones string
	var createdAtNano int64
	var settledAtNano *int64

	err := scan(
		&b.ID, &b.GameID, &b.SubjectID, &subjectKind, &b.SubjectName, &statType, &operator,
		&b.TargetValue, &b.Odds, &decimalOdds, &impliedProb, &units, &payout, &b.RawText,
		&status, &b.CurrentValue, &b.ProgressPct, &milestones,
		&createdAtNano, &settledAtNano,
	)
	if err != nil {
		return nil, err
	}

	b.SubjectKind = bets.SubjectKind(subjectKind)
	b.StatType = bets.StatType(statType)
	b.Operator = bets.Operator(operator)
	b.Status = bets.Status(status)
	if b.DecimalOdds, err = decimal.NewFromString(decimalOdds); err != nil {
		return nil, fmt.Errorf("bad decimal_odds: %w", err)
	}
	if b.ImpliedProb, err = decimal.NewFromString(impliedProb); err != nil {
		return nil, fmt.Errorf("bad implied_prob: %w", err)
	}
	if b.Units, err = decimal.NewFromString(units); err != nil {
		return nil, fmt.Errorf("bad units: %w", err)
	}
	if b.Payout, err = decimal.NewFromString(payout); err != nil {
		return nil, fmt.Errorf("bad payout: %w", err)
	}
	if err := json.Unmarshal([]byte(milestones), &b.MilestonesFired); err != nil {
		return nil, fmt.Errorf("bad milestones: %w", err)
	}
	b.CreatedAt = time.Unix(0, createdAtNano)
	if settledAtNano != nil {
		t := time.Unix(0, *settledAtNano)
		b.SettledAt = &t
	}
	return &b, nil
}
