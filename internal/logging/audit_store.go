package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// AuditStore persists audit events
type AuditStore interface {
	SaveEvent(event *AuditEvent) error
	SaveEventAsync(event *AuditEvent)
	QueryEvents(ctx context.Context, filters AuditQueryFilters) ([]*AuditEvent, error)
	CountEvents(ctx context.Context, filters AuditQueryFilters) (int, error)
	GetEventByID(ctx context.Context, id string) (*AuditEvent, error)
	Close() error
}

// AuditQueryFilters narrows audit event queries. Zero values match everything.
type AuditQueryFilters struct {
	EventType string
	Action    string
	Status    string
	Resource  string
	UserID    string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
	OrderBy   string
	OrderDesc bool
}

// SQLiteAuditStore is a SQLite-backed audit store with WAL mode and
// optional retention-based cleanup.
type SQLiteAuditStore struct {
	db        *sql.DB
	logger    *Logger
	retention time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// DefaultAuditRetention is the default audit event retention period
const DefaultAuditRetention = 30 * 24 * time.Hour

// NewSQLiteAuditStore opens an audit store with the default retention
func NewSQLiteAuditStore(dbPath string) (*SQLiteAuditStore, error) {
	return NewSQLiteAuditStoreWithRetention(dbPath, DefaultAuditRetention)
}

// NewSQLiteAuditStoreWithRetention opens an audit store. A retention of 0
// keeps events forever.
func NewSQLiteAuditStoreWithRetention(dbPath string, retention time.Duration) (*SQLiteAuditStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open audit database %s: %w", dbPath, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT,
			user_id TEXT,
			ip_address TEXT,
			action TEXT NOT NULL,
			resource TEXT,
			status TEXT NOT NULL,
			details TEXT,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	return &SQLiteAuditStore{
		db:        db,
		logger:    NewLogger(),
		retention: retention,
	}, nil
}

// SaveEvent persists an audit event synchronously
func (s *SQLiteAuditStore) SaveEvent(event *AuditEvent) error {
	if event == nil {
		return fmt.Errorf("audit event is nil")
	}

	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, timestamp, event_type, severity, user_id, ip_address, action, resource, status, details, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.Timestamp.UTC(), string(event.EventType), string(event.Severity),
		event.UserID, event.IPAddress, event.Action, event.Resource, string(event.Status),
		string(details), event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}

	s.cleanupExpired()
	return nil
}

// SaveEventAsync persists an audit event without blocking the caller.
// Errors are logged; audit writes never fail the audited request.
func (s *SQLiteAuditStore) SaveEventAsync(event *AuditEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.SaveEvent(event); err != nil {
			s.logger.Error("failed to save audit event", "error", err.Error())
		}
	}()
}

func (s *SQLiteAuditStore) cleanupExpired() {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	if _, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", cutoff); err != nil {
		s.logger.Warn("failed to prune expired audit events", "error", err.Error())
	}
}

func buildAuditWhere(filters AuditQueryFilters) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	if filters.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, filters.EventType)
	}
	if filters.Action != "" {
		clauses = append(clauses, "action LIKE ?")
		args = append(args, filters.Action+"%")
	}
	if filters.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.Resource != "" {
		clauses = append(clauses, "resource = ?")
		args = append(args, filters.Resource)
	}
	if filters.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filters.UserID)
	}
	if !filters.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filters.Since.UTC())
	}
	if !filters.Until.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filters.Until.UTC())
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryEvents returns matching audit events
func (s *SQLiteAuditStore) QueryEvents(ctx context.Context, filters AuditQueryFilters) ([]*AuditEvent, error) {
	where, args := buildAuditWhere(filters)

	orderBy := "timestamp"
	if filters.OrderBy == "event_type" || filters.OrderBy == "action" {
		orderBy = filters.OrderBy
	}
	direction := "ASC"
	if filters.OrderDesc {
		direction = "DESC"
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		"SELECT id, timestamp, event_type, severity, user_id, ip_address, action, resource, status, details, error_message FROM audit_events%s ORDER BY %s %s LIMIT ? OFFSET ?",
		where, orderBy, direction,
	)
	args = append(args, limit, filters.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []*AuditEvent{}
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountEvents returns the number of matching audit events
func (s *SQLiteAuditStore) CountEvents(ctx context.Context, filters AuditQueryFilters) (int, error) {
	where, args := buildAuditWhere(filters)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// GetEventByID returns one audit event, or nil when missing
func (s *SQLiteAuditStore) GetEventByID(ctx context.Context, id string) (*AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, event_type, severity, user_id, ip_address, action, resource, status, details, error_message FROM audit_events WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanAuditEvent(rows)
}

func scanAuditEvent(rows *sql.Rows) (*AuditEvent, error) {
	var event AuditEvent
	var eventType, severity, status, details string
	if err := rows.Scan(
		&event.ID, &event.Timestamp, &eventType, &severity,
		&event.UserID, &event.IPAddress, &event.Action, &event.Resource,
		&status, &details, &event.ErrorMessage,
	); err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	event.EventType = AuditEventType(eventType)
	event.Severity = AuditSeverity(severity)
	event.Status = AuditStatus(status)
	if details != "" {
		if err := json.Unmarshal([]byte(details), &event.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
		}
	}
	return &event, nil
}

// Close waits for pending async writes and closes the database
func (s *SQLiteAuditStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}
