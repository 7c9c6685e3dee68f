package grid

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/theoremus-urban-solutions/commute-score/analyzer"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run ID has no checkpoint
var ErrRunNotFound = errors.New("grid run not found")

// Store keeps grid runs in SQLite. Each completed ring is written in one
// transaction, so a stored run always ends on a ring boundary.
type Store struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// OpenStore opens (creating if needed) a checkpoint database
func OpenStore(ctx context.Context, path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	// SQLite has a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping checkpoint store: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		log.Warn().Err(err).Msg("Failed to enable WAL on checkpoint store")
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("Opened checkpoint store")
	return &Store{conn: conn}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.conn.Close()
}

// fixed width so stored times sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveRing stores a completed ring and advances the run's ring count
func (s *Store) SaveRing(ctx context.Context, g *Grid, ring int, points []Point) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, destination_lat, destination_lon, spacing_feet, threshold_minutes, policy, rings, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET rings = excluded.rings, stop_reason = ''`,
		g.RunID, g.Destination.Lat, g.Destination.Lon, g.SpacingFeet, g.ThresholdMinutes,
		string(g.Policy), ring+1, g.Started.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO points (run_id, ring, row, col, lat, lon, status, p80, score, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		var p80, score, failure any
		if p.Score != nil {
			raw, err := json.Marshal(p.Score)
			if err != nil {
				return fmt.Errorf("encode score %s: %w", p.Cell, err)
			}
			p80, score = p.Score.P80, string(raw)
		}
		if p.Error != "" {
			failure = p.Error
		}
		if _, err := stmt.ExecContext(ctx, g.RunID, ring, p.Cell.Row, p.Cell.Col,
			p.Coordinate.Lat, p.Coordinate.Lon, string(p.Status), p80, score, failure); err != nil {
			return fmt.Errorf("insert point %s: %w", p.Cell, err)
		}
	}
	return tx.Commit()
}

// Finish records how a run ended
func (s *Store) Finish(ctx context.Context, g *Grid) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var finished any
	if !g.Finished.IsZero() {
		finished = g.Finished.Format(timeLayout)
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE runs SET stop_reason = ?, rings = ?, finished_at = ? WHERE run_id = ?`,
		string(g.StopReason), g.Rings, finished, g.RunID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", g.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, g.RunID)
	}
	return nil
}

// LatestRun returns the ID of the most recently started run
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := s.conn.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	return id, err
}

// Load rebuilds a stored run with every checkpointed ring
func (s *Store) Load(ctx context.Context, runID string) (*Grid, error) {
	g := &Grid{RunID: runID}
	var policy, reason, started string
	var finished sql.NullString
	err := s.conn.QueryRowContext(ctx, `
		SELECT destination_lat, destination_lon, spacing_feet, threshold_minutes, policy, rings, stop_reason, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID).
		Scan(&g.Destination.Lat, &g.Destination.Lon, &g.SpacingFeet, &g.ThresholdMinutes,
			&policy, &g.Rings, &reason, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	g.Policy, g.StopReason = Policy(policy), StopReason(reason)
	if g.Started, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("run %s start time: %w", runID, err)
	}
	if finished.Valid {
		if g.Finished, err = time.Parse(timeLayout, finished.String); err != nil {
			return nil, fmt.Errorf("run %s finish time: %w", runID, err)
		}
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT ring, row, col, lat, lon, status, score, error
		FROM points WHERE run_id = ? AND ring < ?
		ORDER BY ring, row, col`, runID, g.Rings)
	if err != nil {
		return nil, fmt.Errorf("load points of %s: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Point
		var status string
		var score, failure sql.NullString
		if err := rows.Scan(&p.Ring, &p.Cell.Row, &p.Cell.Col, &p.Coordinate.Lat, &p.Coordinate.Lon, &status, &score, &failure); err != nil {
			return nil, err
		}
		p.Status, p.Error = Status(status), failure.String
		if score.Valid {
			var ls analyzer.LocationScore
			if err := json.Unmarshal([]byte(score.String), &ls); err != nil {
				return nil, fmt.Errorf("decode score %s: %w", p.Cell, err)
			}
			p.Score = &ls
		}
		g.Points = append(g.Points, p)
	}
	return g, rows.Err()
}

// Within returns the stored points scoring at or under the threshold nearest
// first, for quick lookups without loading the run
func (s *Store) Within(ctx context.Context, runID string, threshold float64) ([]utils.Coordinate, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT lat, lon FROM points
		WHERE run_id = ? AND status = ? AND p80 IS NOT NULL AND p80 <= ?
		ORDER BY ring, row, col`, runID, string(StatusOK), threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []utils.Coordinate
	for rows.Next() {
		var c utils.Coordinate
		if err := rows.Scan(&c.Lat, &c.Lon); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
