// Package sqlite provides the SQLite implementation of the durable entry store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-host deployments. Payloads are stored as JSON strings in TEXT
// fields. This is the default backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ainautilus/trademem-go/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient creates a new SQLite store client.
//
// Parameters:
//   - cfg: Configuration containing the database file path
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db}

	// Initialize table structure
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
//
// Entries live in one table keyed by (category, entry_key); events carry
// their own table with a processed flag for the reconciliation path.
func (c *Client) initTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS entries (
			category TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			payload TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			ttl_seconds INTEGER,
			confidence REAL,
			PRIMARY KEY (category, entry_key)
		)
	`
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0
		)
	`
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_entries_category_created ON entries(category, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_target_processed ON events(target, processed)`,
	}
	for _, indexQuery := range indexes {
		if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// Put inserts or overwrites an entry.
//
// INSERT OR REPLACE gives last-writer-wins semantics on (category, entry_key)
// in a single statement.
func (c *Client) Put(ctx context.Context, entry *storage.Entry) error {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO entries
		(category, entry_key, payload, source, created_at, ttl_seconds, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		entry.Category,
		entry.Key,
		string(payloadJSON),
		entry.Source,
		entry.CreatedAt,
		ttlSecondsValue(entry.TTL),
		confidenceValue(entry.Confidence),
	)
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}

	return nil
}

// Get retrieves an entry by category and key.
func (c *Client) Get(ctx context.Context, category, key string) (*storage.Entry, error) {
	query := `
		SELECT category, entry_key, payload, source, created_at, ttl_seconds, confidence
		FROM entries
		WHERE category = ? AND entry_key = ?
	`

	row := c.db.QueryRowContext(ctx, query, category, key)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return entry, nil
}

// List retrieves entries of a category, newest first.
func (c *Client) List(ctx context.Context, category string, opts *storage.ListOptions) ([]*storage.Entry, error) {
	if opts == nil {
		opts = &storage.ListOptions{}
	}

	whereClause, args := buildEntryWhere(category, opts)

	query := fmt.Sprintf(`
		SELECT category, entry_key, payload, source, created_at, ttl_seconds, confidence
		FROM entries
		%s
		ORDER BY created_at DESC, entry_key DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	args = append(args, normalizeLimit(opts.Limit), normalizeOffset(opts.Offset))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*storage.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	return entries, nil
}

// Delete removes an entry by category and key.
func (c *Client) Delete(ctx context.Context, category, key string) error {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM entries WHERE category = ? AND entry_key = ?`, category, key)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Delete: %w", storage.ErrNotFound)
	}

	return nil
}

// PutEvent appends an event to the audit trail.
func (c *Client) PutEvent(ctx context.Context, event *storage.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("PutEvent: %w", err)
	}

	query := `
		INSERT INTO events (id, event_type, event_data, source, target, created_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		string(dataJSON),
		event.Source,
		event.Target,
		event.CreatedAt,
		boolToInt(event.Processed),
	)
	if err != nil {
		return fmt.Errorf("PutEvent: %w", err)
	}

	return nil
}

// ListEvents retrieves events matching the given options.
func (c *Client) ListEvents(ctx context.Context, opts *storage.EventOptions) ([]*storage.Event, error) {
	if opts == nil {
		opts = &storage.EventOptions{}
	}

	whereClause, args := buildEventWhere(opts)

	// Unprocessed events are consumed oldest first, the audit view newest first.
	orderClause := "ORDER BY created_at DESC, id DESC"
	if opts.UnprocessedOnly {
		orderClause = "ORDER BY created_at ASC, id ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, event_type, event_data, source, target, created_at, processed
		FROM events
		%s
		%s
		LIMIT ?
	`, whereClause, orderClause)

	args = append(args, normalizeLimit(opts.Limit))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*storage.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListEvents: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}

	return events, nil
}

// MarkEventProcessed flags an event as handled.
func (c *Client) MarkEventProcessed(ctx context.Context, id int64) error {
	result, err := c.db.ExecContext(ctx,
		`UPDATE events SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("MarkEventProcessed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkEventProcessed: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("MarkEventProcessed: %w", storage.ErrNotFound)
	}

	return nil
}

// Sweep removes entries and processed events older than the policy horizons.
func (c *Client) Sweep(ctx context.Context, policy *storage.RetentionPolicy) (int64, error) {
	if policy == nil {
		policy = storage.DefaultRetention()
	}

	now := time.Now()
	var removed int64

	explicit := make([]string, 0, len(policy.EntryMaxAge))
	for category, maxAge := range policy.EntryMaxAge {
		if maxAge <= 0 {
			continue
		}
		result, err := c.db.ExecContext(ctx,
			`DELETE FROM entries WHERE category = ? AND created_at < ?`,
			category, now.Add(-maxAge))
		if err != nil {
			return removed, fmt.Errorf("Sweep: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("Sweep: %w", err)
		}
		removed += n
		explicit = append(explicit, category)
	}

	if policy.DefaultEntryMaxAge > 0 {
		query := `DELETE FROM entries WHERE created_at < ?`
		args := []interface{}{now.Add(-policy.DefaultEntryMaxAge)}
		if len(explicit) > 0 {
			query += ` AND category NOT IN (` + placeholders(len(explicit)) + `)`
			for _, category := range explicit {
				args = append(args, category)
			}
		}
		result, err := c.db.ExecContext(ctx, query, args...)
		if err != nil {
			return removed, fmt.Errorf("Sweep: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("Sweep: %w", err)
		}
		removed += n
	}

	if policy.ProcessedEventMaxAge > 0 {
		result, err := c.db.ExecContext(ctx,
			`DELETE FROM events WHERE processed = 1 AND created_at < ?`,
			now.Add(-policy.ProcessedEventMaxAge))
		if err != nil {
			return removed, fmt.Errorf("Sweep: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("Sweep: %w", err)
		}
		removed += n
	}

	return removed, nil
}

// Stats reports per-category entry counts, the event count, and the database
// size from the SQLite page pragmas.
func (c *Client) Stats(ctx context.Context) (*storage.StoreStats, error) {
	stats := &storage.StoreStats{
		EntryCounts: make(map[string]int64),
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM entries GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("Stats: %w", err)
		}
		stats.EntryCounts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events`).Scan(&stats.EventCount); err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	if err := c.db.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`).Scan(&stats.SizeBytes); err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	return stats, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// scanEntry scans an entry from a database row or rows.
func scanEntry(scanner interface{}) (*storage.Entry, error) {
	var entry storage.Entry
	var payloadStr string
	var ttlSeconds sql.NullInt64
	var confidence sql.NullFloat64

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(
			&entry.Category,
			&entry.Key,
			&payloadStr,
			&entry.Source,
			&entry.CreatedAt,
			&ttlSeconds,
			&confidence,
		)
	case *sql.Rows:
		err = s.Scan(
			&entry.Category,
			&entry.Key,
			&payloadStr,
			&entry.Source,
			&entry.CreatedAt,
			&ttlSeconds,
			&confidence,
		)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}

	if err != nil {
		return nil, err
	}

	if payloadStr != "" {
		if err := json.Unmarshal([]byte(payloadStr), &entry.Payload); err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}
	}

	if ttlSeconds.Valid {
		entry.TTL = time.Duration(ttlSeconds.Int64) * time.Second
	}
	if confidence.Valid {
		entry.Confidence = confidence.Float64
	}

	return &entry, nil
}

// scanEvent scans an event from database rows.
func scanEvent(rows *sql.Rows) (*storage.Event, error) {
	var event storage.Event
	var dataStr string
	var processed int

	err := rows.Scan(
		&event.ID,
		&event.Type,
		&dataStr,
		&event.Source,
		&event.Target,
		&event.CreatedAt,
		&processed,
	)
	if err != nil {
		return nil, err
	}

	if dataStr != "" {
		if err := json.Unmarshal([]byte(dataStr), &event.Data); err != nil {
			return nil, fmt.Errorf("parse event data: %w", err)
		}
	}
	event.Processed = processed != 0

	return &event, nil
}

// ttlSecondsValue converts a TTL to its nullable column value.
func ttlSecondsValue(ttl time.Duration) interface{} {
	if ttl <= 0 {
		return nil
	}
	return int64(ttl / time.Second)
}

// confidenceValue converts a confidence score to its nullable column value.
// Zero means unset.
func confidenceValue(confidence float64) interface{} {
	if confidence <= 0 {
		return nil
	}
	return confidence
}

// boolToInt converts a bool to its SQLite integer form.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
