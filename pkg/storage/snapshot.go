package storage

import (
	"fmt"
	"time"

	"github.com/statedge/betengine/pkg/mlb"
	"github.com/statedge/betengine/pkg/roster"
)

// SaveRosterSnapshot replaces the persisted slate for one day: the schedule,
// every roster entry, and a snapshot header. The whole swap runs in one
// transaction so readers never see a half-written day.
func (s *Storage) SaveRosterSnapshot(date string, version int64, games []mlb.Game, entries []roster.Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM games WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear games: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM roster_entries WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear roster entries: %w", err)
	}

	for i := range games {
		g := &games[i]
		if _, err := tx.Exec(`
			INSERT INTO games
				(id, date, start_time, status, home_team_id, home_team,
				 away_team_id, away_team, home_probable_id, home_probable,
				 away_probable_id, away_probable)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			g.ID, date, g.StartTime.UnixNano(), g.Status,
			g.HomeTeamID, g.HomeTeam, g.AwayTeamID, g.AwayTeam,
			g.HomeProbablePitcherID, g.HomeProbablePitcherName,
			g.AwayProbablePitcherID, g.AwayProbablePitcherName,
		); err != nil {
			return fmt.Errorf("failed to insert game %d: %w", g.ID, err)
		}
	}

	for i := range entries {
		e := &entries[i]
		if _, err := tx.Exec(`
			INSERT INTO roster_entries
				(id, date, kind, name, abbrev, team_id, team_name, role,
				 probable_pitcher, game_id, opponent)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			e.ID, date, string(e.Kind), e.Name, e.Abbrev, e.TeamID, e.TeamName,
			string(e.Role), e.ProbablePitcher, e.GameID, e.Opponent,
		); err != nil {
			return fmt.Errorf("failed to insert roster entry %d: %w", e.ID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO roster_snapshots (date, version, entry_count, refreshed_at)
		VALUES (?,?,?,?)`,
		date, version, len(entries), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return tx.Commit()
}

// GamesForDay loads the persisted schedule for one day.
func (s *Storage) GamesForDay(date string) ([]mlb.Game, error) {
	rows, err := s.db.Query(`
		SELECT id, start_time, status, home_team_id, home_team,
		       away_team_id, away_team, home_probable_id, home_probable,
		       away_probable_id, away_probable
		FROM games WHERE date = ? ORDER BY start_time`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var out []mlb.Game
	for rows.Next() {
		var g mlb.Game
		var startNano int64
		if err := rows.Scan(&g.ID, &startNano, &g.Status, &g.HomeTeamID, &g.HomeTeam,
			&g.AwayTeamID, &g.AwayTeam, &g.HomeProbablePitcherID, &g.HomeProbablePitcherName,
			&g.AwayProbablePitcherID, &g.AwayProbablePitcherName); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		g.Date = date
		g.StartTime = time.Unix(0, startNano)
		out = append(out, g)
	}
	return out, rows.Err()
}

// RosterForDay loads the persisted roster entries for one day.
func (s *Storage) RosterForDay(date string) ([]roster.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, name, abbrev, team_id, team_name, role,
		       probable_pitcher, game_id, opponent
		FROM roster_entries WHERE date = ? ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster entries: %w", err)
	}
	defer rows.Close()

	var out []roster.Entry
	for rows.Next() {
		var e roster.Entry
		var kind, role string
		if err := rows.Scan(&e.ID, &kind, &e.Name, &e.Abbrev, &e.TeamID, &e.TeamName,
			&role, &e.ProbablePitcher, &e.GameID, &e.Opponent); err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		e.Kind = roster.Kind(kind)
		e.Role = roster.Role(role)
		out = append(out, e)
	}
	return out, rows.Err()
}
