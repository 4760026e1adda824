package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tokenwarden/tokenwarden/internal/errors"
	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/models"
)

// SQLiteStore provides SQLite-backed credential storage with WAL mode.
// It is thread-safe and supports concurrent access.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.NewLogger(),
	}, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS credentials (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					platform TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					fields BLOB NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (user_id, platform)
				);

				CREATE INDEX IF NOT EXISTS idx_credentials_platform ON credentials(platform);
				CREATE INDEX IF NOT EXISTS idx_credentials_status ON credentials(status);
			`,
		},
		{
			version: 2,
			up: `
				ALTER TABLE credentials ADD COLUMN metadata TEXT;
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// DB exposes the underlying database handle for maintenance tasks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const credentialColumns = "id, user_id, platform, status, fields, metadata, created_at, updated_at"

func scanCredential(row interface{ Scan(...interface{}) error }) (*models.Credential, error) {
	var cred models.Credential
	var metadataJSON sql.NullString

	err := row.Scan(&cred.ID, &cred.UserID, &cred.Platform, &cred.Status, &cred.EncryptedFields, &metadataJSON, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &cred.Metadata); err != nil {
			return nil, err
		}
	}
	return &cred, nil
}

// Get retrieves a credential by ID.
func (s *SQLiteStore) Get(id string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+credentialColumns+" FROM credentials WHERE id = ?", id)
	cred, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrCredentialNotFound{}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get credential", Err: err}
	}
	return cred, nil
}

// GetByUserPlatform retrieves the credential for a (user, platform) pair.
func (s *SQLiteStore) GetByUserPlatform(userID string, platform models.Platform) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+credentialColumns+" FROM credentials WHERE user_id = ? AND platform = ?", userID, platform)
	cred, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrCredentialNotFound{UserID: userID, Platform: string(platform)}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get credential by user", Err: err}
	}
	return cred, nil
}

// ListActive returns all active credentials for a platform.
func (s *SQLiteStore) ListActive(platform models.Platform) (models.CredentialSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT "+credentialColumns+" FROM credentials WHERE platform = ? AND status = ?", platform, models.StatusActive)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list active credentials", Err: err}
	}
	defer rows.Close()

	var creds models.CredentialSlice
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable credential row", "error", err.Error())
			continue
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list active credentials", Err: err}
	}

	return creds, nil
}

// List returns all credentials.
func (s *SQLiteStore) List() (models.CredentialSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT " + credentialColumns + " FROM credentials ORDER BY platform, user_id")
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list credentials", Err: err}
	}
	defer rows.Close()

	var creds models.CredentialSlice
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable credential row", "error", err.Error())
			continue
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list credentials", Err: err}
	}

	return creds, nil
}

// Upsert stores or replaces a credential row.
func (s *SQLiteStore) Upsert(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON interface{}
	if len(cred.Metadata) > 0 {
		data, err := json.Marshal(cred.Metadata)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "encode metadata", Err: err}
		}
		metadataJSON = string(data)
	}

	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO credentials (id, user_id, platform, status, fields, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			platform = excluded.platform,
			status = excluded.status,
			fields = excluded.fields,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, cred.ID, cred.UserID, cred.Platform, cred.Status, cred.EncryptedFields, metadataJSON, cred.CreatedAt, cred.UpdatedAt)

	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert credential", Err: err}
	}
	return nil
}

// UpdateEncryptedFields replaces the sealed field payload of one credential.
func (s *SQLiteStore) UpdateEncryptedFields(id string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("UPDATE credentials SET fields = ?, updated_at = ? WHERE id = ?", blob, time.Now().UTC(), id)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "update credential fields", Err: err}
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.ErrCredentialNotFound{}
	}
	return nil
}

// MarkDisconnected transitions a credential to disconnected status.
func (s *SQLiteStore) MarkDisconnected(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("UPDATE credentials SET status = ?, updated_at = ? WHERE id = ?", models.StatusDisconnected, time.Now().UTC(), id)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "mark disconnected", Err: err}
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &errors.ErrCredentialNotFound{}
	}
	return nil
}

// Delete removes a credential row.
func (s *SQLiteStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return false
	}
	rows, _ := result.RowsAffected()
	return rows > 0
}

// Stats returns statistics about the store
func (s *SQLiteStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats StoreStats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&stats.CredentialCount); err != nil {
		s.logger.Error("failed to count credentials", "error", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM credentials WHERE status = ?", models.StatusActive).Scan(&stats.ActiveCount); err != nil {
		s.logger.Error("failed to count active credentials", "error", err.Error())
	}
	stats.DisconnectedCount = stats.CredentialCount - stats.ActiveCount
	return stats
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
