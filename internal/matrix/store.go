package matrix

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNoSession is returned by LoadSession when no session is stored for a user.
var ErrNoSession = errors.New("no stored session")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	user_id      TEXT PRIMARY KEY,
	homeserver   TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	access_token TEXT NOT NULL,
	next_batch   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	room_id   TEXT NOT NULL,
	event_id  TEXT NOT NULL,
	type      TEXT NOT NULL,
	sender    TEXT NOT NULL,
	msgtype   TEXT NOT NULL DEFAULT '',
	body      TEXT NOT NULL DEFAULT '',
	origin_ts INTEGER NOT NULL,
	raw       TEXT NOT NULL,
	PRIMARY KEY (room_id, event_id)
);

CREATE INDEX IF NOT EXISTS idx_events_room_ts ON events(room_id, origin_ts);
`

// Session is a stored login.
type Session struct {
	UserID      string
	Homeserver  string
	DeviceID    string
	AccessToken string
	NextBatch   string
}

// Store persists sessions and room events in sqlite.
type Store struct {
	db *sql.DB
}

// OpenStore opens, creating if needed, the database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts or replaces the session of session.UserID.
func (s *Store) SaveSession(session Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (user_id, homeserver, device_id, access_token, next_batch)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			homeserver = excluded.homeserver,
			device_id = excluded.device_id,
			access_token = excluded.access_token,
			next_batch = excluded.next_batch`,
		session.UserID, session.Homeserver, session.DeviceID, session.AccessToken, session.NextBatch)
	if err != nil {
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	return nil
}

// LoadSession returns the stored session of userID or ErrNoSession.
func (s *Store) LoadSession(userID string) (*Session, error) {
	session := &Session{UserID: userID}
	err := s.db.QueryRow(`
		SELECT homeserver, device_id, access_token, next_batch
		FROM sessions WHERE user_id = ?`, userID).
		Scan(&session.Homeserver, &session.DeviceID, &session.AccessToken, &session.NextBatch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	return session, nil
}

// DeleteSession forgets the stored session of userID.
func (s *Store) DeleteSession(userID string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// SaveEvents stores events of a room. Events already stored are kept.
func (s *Store) SaveEvents(roomID string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO events (room_id, event_id, type, sender, msgtype, body, origin_ts, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range events {
		event := &events[i]
		if event.EventID == "" {
			continue
		}
		raw, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
		}
		if _, err := stmt.Exec(roomID, event.EventID, event.Type, event.Sender,
			event.MsgType(), event.Body(), event.OriginServerTS, string(raw)); err != nil {
			return fmt.Errorf("failed to save event %s: %w", event.EventID, err)
		}
	}

	return tx.Commit()
}

// LoadEvents returns the stored events of a room, oldest first.
func (s *Store) LoadEvents(roomID string) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT raw FROM events WHERE room_id = ?
		ORDER BY origin_ts, rowid`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events of %s: %w", roomID, err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("failed to decode stored event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
