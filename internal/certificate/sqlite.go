package certificate

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// Configuration keys held in the configuration table.
const (
	ConfigCheckDomain  = "check_domain"
	ConfigCheckToEmail = "check_to_email"
)

// Credential keys for the control API.
const (
	CredentialKillKey    = "kill_switch_api_key"
	CredentialRestartKey = "kill_restart_api_key"
)

// schema is applied in order by Init. Timestamps are unix nanoseconds.
var schema = []struct {
	table string
	ddl   string
}{
	{"configuration", `CREATE TABLE IF NOT EXISTS configuration (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`},
	{"credentials", `CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`},
	{"scheduler_status", `CREATE TABLE IF NOT EXISTS scheduler_status (
		id INTEGER PRIMARY KEY,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_updated INTEGER NOT NULL
	)`},
	{"kill_switch_attempts", `CREATE TABLE IF NOT EXISTS kill_switch_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_type TEXT NOT NULL,
		attempted_at INTEGER NOT NULL
	)`},
}

// SqliteStore keeps the check target, control API credentials and kill
// switch state. Check results are not persisted.
type SqliteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SqliteStore{db: db, clock: clockwork.NewRealClock()}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return store, nil
}

func (s *SqliteStore) Init() error {
	for _, t := range schema {
		if _, err := s.db.Exec(t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.table, err)
		}
	}

	// scheduled checks start enabled; an existing row keeps its state
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO scheduler_status (id, is_active, last_updated) VALUES (1, 1, ?)",
		s.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler status: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// GetConfigValue retrieves a configuration value, empty when unset.
func (s *SqliteStore) GetConfigValue(key string) (string, error) {
	return s.lookup("configuration", key)
}

// SetConfigValue sets a configuration value.
func (s *SqliteStore) SetConfigValue(key, value string) error {
	return s.upsert("configuration", key, value)
}

// GetConfigValues returns the whole configuration table.
func (s *SqliteStore) GetConfigValues() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM configuration ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to query configuration: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close configuration query", "err", closeErr)
		}
	}()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan configuration row: %w", err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// GetCredential retrieves a stored key hash, empty when unset.
func (s *SqliteStore) GetCredential(key string) (string, error) {
	return s.lookup("credentials", key)
}

// SetCredential stores a key hash.
func (s *SqliteStore) SetCredential(key, value string) error {
	return s.upsert("credentials", key, value)
}

// table is always one of the constant names above, never user input.
func (s *SqliteStore) lookup(table, key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM "+table+" WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s value for key %s: %w", table, key, err)
	}
	return value, nil
}

func (s *SqliteStore) upsert(table, key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO "+table+" (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s value for key %s: %w", table, key, err)
	}
	return nil
}

// GetSchedulerStatus reports whether scheduled checks are enabled.
func (s *SqliteStore) GetSchedulerStatus() (bool, error) {
	var isActive bool
	err := s.db.QueryRow("SELECT is_active FROM scheduler_status WHERE id = 1").Scan(&isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get scheduler status: %w", err)
	}
	return isActive, nil
}

// SetSchedulerStatus enables or pauses scheduled checks.
func (s *SqliteStore) SetSchedulerStatus(isActive bool) error {
	_, err := s.db.Exec("UPDATE scheduler_status SET is_active = ?, last_updated = ? WHERE id = 1",
		isActive, s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set scheduler status: %w", err)
	}
	return nil
}

// RecordKillSwitchAttempt logs an authenticated kill or restart request.
func (s *SqliteStore) RecordKillSwitchAttempt(attemptType string) error {
	_, err := s.db.Exec("INSERT INTO kill_switch_attempts (attempt_type, attempted_at) VALUES (?, ?)",
		attemptType, s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record %s attempt: %w", attemptType, err)
	}
	return nil
}

// GetRecentKillSwitchAttempts counts attempts of a type made within window.
func (s *SqliteStore) GetRecentKillSwitchAttempts(attemptType string, window time.Duration) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM kill_switch_attempts WHERE attempt_type = ? AND attempted_at >= ?",
		attemptType, s.clock.Now().Add(-window).UnixNano(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent %s attempts: %w", attemptType, err)
	}
	return count, nil
}

// CleanupOldKillSwitchAttempts removes attempts older than olderThan.
func (s *SqliteStore) CleanupOldKillSwitchAttempts(olderThan time.Duration) error {
	_, err := s.db.Exec("DELETE FROM kill_switch_attempts WHERE attempted_at < ?",
		s.clock.Now().Add(-olderThan).UnixNano())
	if err != nil {
		return fmt.Errorf("failed to cleanup old kill switch attempts: %w", err)
	}
	return nil
}
