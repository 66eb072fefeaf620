package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/maplab/internal/apperr"
	"github.com/starford/maplab/internal/checksum"
	"github.com/starford/maplab/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	room       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite implements Provider with a single snapshots table.
type SQLite struct {
	conn *sql.DB
	now  func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// List returns metadata for every stored room.
func (s *SQLite) List() ([]models.RoomMeta, error) {
	rows, err := s.conn.Query(`SELECT room, checksum, updated_at FROM snapshots ORDER BY room`)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer rows.Close()

	var out []models.RoomMeta
	for rows.Next() {
		var m models.RoomMeta
		if err := rows.Scan(&m.Room, &m.Checksum, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Read returns the stored snapshot of room.
func (s *SQLite) Read(room string) ([]byte, error) {
	if !models.ValidRoomID(room) {
		return nil, fmt.Errorf("storage: %q: %w", room, apperr.ErrInvalidRoom)
	}
	var data []byte
	err := s.conn.QueryRow(`SELECT data FROM snapshots WHERE room = ?`, room).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: read %s: %w", room, apperr.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", room, err)
	}
	return data, nil
}

// Write upserts the snapshot of room. Writing bytes identical to the stored
// snapshot leaves updated_at untouched.
func (s *SQLite) Write(room string, data []byte) error {
	if !models.ValidRoomID(room) {
		return fmt.Errorf("storage: %q: %w", room, apperr.ErrInvalidRoom)
	}
	_, err := s.conn.Exec(`
		INSERT INTO snapshots (room, data, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room) DO UPDATE SET
			data       = excluded.data,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
		WHERE snapshots.checksum <> excluded.checksum
	`, room, data, checksum.Sum(data), s.now().UTC())
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", room, err)
	}
	return nil
}

// Delete removes the snapshot of room.
func (s *SQLite) Delete(room string) error {
	if !models.ValidRoomID(room) {
		return fmt.Errorf("storage: %q: %w", room, apperr.ErrInvalidRoom)
	}
	res, err := s.conn.Exec(`DELETE FROM snapshots WHERE room = ?`, room)
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", room, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: delete %s: %w", room, apperr.ErrRoomNotFound)
	}
	return nil
}
