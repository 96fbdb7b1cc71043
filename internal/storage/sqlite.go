package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the durable help-request log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "frontdesk.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Help requests ---

// InsertHelpRequest stores a new request with its pre-allocated id.
func (s *Store) InsertHelpRequest(r HelpRequest) error {
	_, err := s.db.Exec(`
		INSERT INTO help_requests (id, user_id, question, status, raw_answer, refined_answer, created_at)
		VALUES (?, ?, ?, ?, NULL, NULL, ?)`,
		r.ID, r.UserID, r.Question, StatusPending, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting help request %d: %w", r.ID, err)
	}
	return nil
}

// GetHelpRequest returns the request with the given id.
func (s *Store) GetHelpRequest(id int64) (HelpRequest, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, question, status, raw_answer, refined_answer, created_at, resolved_at
		FROM help_requests WHERE id = ?`, id,
	)
	return scanHelpRequest(row)
}

// ResolveHelpRequest marks a pending request resolved, records the raw
// supervisor answer, and returns the updated row. The status guard makes
// the transition one-way: resolving an unknown, deleted, or
// already-resolved id reports ErrNotFound. Update and read-back share a
// transaction so a concurrent delete cannot split a successful resolution
// from its row.
func (s *Store) ResolveHelpRequest(id int64, rawAnswer string, at time.Time) (HelpRequest, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return HelpRequest{}, fmt.Errorf("resolving help request %d: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE help_requests SET status = ?, raw_answer = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		StatusResolved, rawAnswer, at.UTC().Format(time.RFC3339), id, StatusPending,
	)
	if err != nil {
		return HelpRequest{}, fmt.Errorf("resolving help request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return HelpRequest{}, err
	}
	if n == 0 {
		return HelpRequest{}, ErrNotFound
	}

	row := tx.QueryRow(`
		SELECT id, user_id, question, status, raw_answer, refined_answer, created_at, resolved_at
		FROM help_requests WHERE id = ?`, id,
	)
	r, err := scanHelpRequest(row)
	if err != nil {
		return HelpRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return HelpRequest{}, fmt.Errorf("resolving help request %d: %w", id, err)
	}
	return r, nil
}

// SetRefinedAnswer attaches the polished answer to an already-resolved request.
func (s *Store) SetRefinedAnswer(id int64, refined string) error {
	res, err := s.db.Exec(`
		UPDATE help_requests SET refined_answer = ? WHERE id = ? AND status = ?`,
		refined, id, StatusResolved,
	)
	if err != nil {
		return fmt.Errorf("setting refined answer for request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHelpRequests returns requests with the given status in ascending id order.
func (s *Store) ListHelpRequests(status string) ([]HelpRequest, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, question, status, raw_answer, refined_answer, created_at, resolved_at
		FROM help_requests WHERE status = ? ORDER BY id ASC`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("listing help requests: %w", err)
	}
	defer rows.Close()

	var results []HelpRequest
	for rows.Next() {
		r, err := scanHelpRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteHelpRequest removes a request regardless of status.
func (s *Store) DeleteHelpRequest(id int64) error {
	res, err := s.db.Exec("DELETE FROM help_requests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting help request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HighestIssuedHelpRequestID returns the highest id ever inserted, or 0
// for an empty log. AUTOINCREMENT tracks it in sqlite_sequence, so deleted
// rows do not lower it and the registry re-seeds from it on start without
// reissuing ids.
func (s *Store) HighestIssuedHelpRequestID() (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRow("SELECT seq FROM sqlite_sequence WHERE name = 'help_requests'").Scan(&seq)
	if err == sql.ErrNoRows {
		// No row until the first insert.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading issued help request id: %w", err)
	}
	return seq.Int64, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanHelpRequest(row rowScanner) (HelpRequest, error) {
	var r HelpRequest
	var rawAnswer, refinedAnswer, resolvedAt sql.NullString
	var createdAt string
	err := row.Scan(&r.ID, &r.UserID, &r.Question, &r.Status, &rawAnswer, &refinedAnswer, &createdAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return HelpRequest{}, ErrNotFound
	}
	if err != nil {
		return HelpRequest{}, fmt.Errorf("scanning help request: %w", err)
	}
	r.RawAnswer = rawAnswer.String
	r.RefinedAnswer = refinedAnswer.String

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return HelpRequest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t

	if resolvedAt.Valid && resolvedAt.String != "" {
		t, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err != nil {
			return HelpRequest{}, fmt.Errorf("parsing resolved_at: %w", err)
		}
		r.ResolvedAt = t
	}
	return r, nil
}
