package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/aolo2/desk/internal/protocol"
)

// Store is the durable home of finished strokes. It is shared by every
// room; all methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Stroke is a finished, persisted polyline with style and ownership.
type Stroke struct {
	ID     uint32
	DeskID int64
	UserID uint32
	Color  uint32
	Width  uint32
	Closed bool
	Points []protocol.Point
}

// DeskInfo summarizes one desk for the ops API.
type DeskInfo struct {
	DeskID      int64 `json:"desk_id"`
	StrokeCount int   `json:"stroke_count"`
}

func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	logrus.WithField("path", dbPath).Info("Store initialized")
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	// Two structures: the per-desk ordered index (duplicate desk_id keys,
	// insertion order via seq) and the primary stroke mapping. Every id
	// reachable from the index resolves in strokes unless undone in
	// between; undo removes it from both.
	schema := `
	CREATE TABLE IF NOT EXISTS desk_strokes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		desk_id INTEGER NOT NULL,
		stroke_id INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_desk_strokes_desk_id ON desk_strokes(desk_id);

	CREATE TABLE IF NOT EXISTS strokes (
		stroke_id INTEGER PRIMARY KEY,
		desk_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		color INTEGER NOT NULL,
		width INTEGER NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		points BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_strokes_desk_id ON strokes(desk_id);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a finished stroke under its id and records it at the end
// of the desk's ordered stroke list. Both writes commit atomically.
func (s *Store) Append(deskID int64, stroke Stroke) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO strokes (stroke_id, desk_id, user_id, color, width, closed, points) VALUES (?, ?, ?, ?, ?, ?, ?)",
		int64(stroke.ID), deskID, int64(stroke.UserID), int64(stroke.Color),
		int64(stroke.Width), stroke.Closed, protocol.PackPoints(stroke.Points),
	)
	if err != nil {
		return fmt.Errorf("insert stroke %d: %w", stroke.ID, err)
	}

	_, err = tx.Exec(
		"INSERT INTO desk_strokes (desk_id, stroke_id) VALUES (?, ?)",
		deskID, int64(stroke.ID),
	)
	if err != nil {
		return fmt.Errorf("index stroke %d: %w", stroke.ID, err)
	}

	return tx.Commit()
}

// Undo removes a stroke from both the primary mapping and the desk index.
// A stroke id that is already gone is a silent no-op.
func (s *Store) Undo(deskID int64, strokeID uint32) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM strokes WHERE stroke_id = ? AND desk_id = ?",
		int64(strokeID), deskID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"DELETE FROM desk_strokes WHERE stroke_id = ? AND desk_id = ?",
		int64(strokeID), deskID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Snapshot returns a desk's finished strokes in insertion order. Index
// entries that no longer resolve (a concurrent undo) are skipped.
func (s *Store) Snapshot(deskID int64) ([]Stroke, error) {
	rows, err := s.db.Query(`
		SELECT st.stroke_id, st.user_id, st.color, st.width, st.closed, st.points
		FROM desk_strokes ds
		INNER JOIN strokes st ON st.stroke_id = ds.stroke_id
		WHERE ds.desk_id = ?
		ORDER BY ds.seq ASC
	`, deskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strokes []Stroke
	for rows.Next() {
		var (
			strokeID, userID, color, width int64
			closed                         bool
			blob                           []byte
		)
		if err := rows.Scan(&strokeID, &userID, &color, &width, &closed, &blob); err != nil {
			return nil, err
		}
		points, err := protocol.UnpackPoints(blob)
		if err != nil {
			return nil, fmt.Errorf("stroke %d: %w", strokeID, err)
		}
		strokes = append(strokes, Stroke{
			ID:     uint32(strokeID),
			DeskID: deskID,
			UserID: uint32(userID),
			Color:  uint32(color),
			Width:  uint32(width),
			Closed: closed,
			Points: points,
		})
	}
	return strokes, rows.Err()
}

// StrokeCount returns how many strokes a desk currently holds.
func (s *Store) StrokeCount(deskID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM desk_strokes WHERE desk_id = ?",
		deskID,
	).Scan(&count)
	return count, err
}

// ListDesks returns every desk that has at least one persisted stroke,
// with its stroke count, most recently drawn-on first.
func (s *Store) ListDesks(limit, offset int) ([]DeskInfo, error) {
	rows, err := s.db.Query(`
		SELECT desk_id, COUNT(*) AS n
		FROM desk_strokes
		GROUP BY desk_id
		ORDER BY MAX(seq) DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var desks []DeskInfo
	for rows.Next() {
		var d DeskInfo
		if err := rows.Scan(&d.DeskID, &d.StrokeCount); err != nil {
			return nil, err
		}
		desks = append(desks, d)
	}
	return desks, rows.Err()
}

// Checkpoint flushes the WAL back into the main database file.
func (s *Store) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Stats

func (s *Store) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var deskCount int
	if err := s.db.QueryRow("SELECT COUNT(DISTINCT desk_id) FROM desk_strokes").Scan(&deskCount); err != nil {
		return nil, err
	}
	stats["desk_count"] = deskCount

	var strokeCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM strokes").Scan(&strokeCount); err != nil {
		return nil, err
	}
	stats["stroke_count"] = strokeCount

	return stats, nil
}
