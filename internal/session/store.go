package session

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Store.Get when no document exists for the id.
var ErrNotFound = errors.New("session not found")

const storeSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Store persists whole session documents in SQLite, keyed by session id.
// Every Put is a full-document overwrite; there is no partial update.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the session database at path.
func OpenStore(path string) (*Store, error) {
	connString := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping session database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored document for a session, or ErrNotFound.
func (s *Store) Get(sessionID string) ([]byte, error) {
	var document string
	err := s.db.QueryRow(`
		SELECT document FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	return []byte(document), nil
}

// Put overwrites the whole document for a session.
func (s *Store) Put(sessionID string, document []byte) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (session_id, document, updated_at)
		VALUES (?, ?, ?)
	`, sessionID, string(document), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write session %s: %w", sessionID, err)
	}
	return nil
}

// List returns every stored document in storage enumeration order.
func (s *Store) List() ([][]byte, error) {
	rows, err := s.db.Query(`SELECT document FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var documents [][]byte
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		documents = append(documents, []byte(document))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return documents, nil
}
