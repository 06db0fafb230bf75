// Package requestlog keeps an optional audit trail of /predict calls in
// SQLite or Postgres. Input texts are never stored: an entry carries the
// SHA-256 of the text and its length so repeated inputs can be correlated.
package requestlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers for Open.
const (
	DriverNone     = ""
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Entry is one recorded prediction request.
type Entry struct {
	ID           int64     `json:"id"`
	TraceID      string    `json:"trace_id"`
	TextHash     string    `json:"text_hash"`
	TextLength   int       `json:"text_length"`
	Label        string    `json:"label,omitempty"`
	Confidence   float64   `json:"confidence"`
	Status       int       `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// HashText returns the hex SHA-256 digest stored in Entry.TextHash.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Query filters List results. Zero values mean "no filter".
type Query struct {
	Limit  int
	Offset int
	Label  string
	Status int
	Since  *time.Time
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Data  []Entry `json:"data"`
	Total int     `json:"total"`
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// Close is a no-op.
func (NoopWriter) Close() error { return nil }

// WriteCloser is a Writer that holds resources.
type WriteCloser interface {
	Writer
	Close() error
}

// Open returns the writer for driver. An empty driver disables the log.
func Open(driver, dsn string) (WriteCloser, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverNone, "none":
		return NoopWriter{}, nil
	case DriverSQLite:
		return NewSQLiteWriter(dsn)
	case DriverPostgres:
		return NewPostgresWriter(dsn)
	default:
		return nil, fmt.Errorf("unsupported request log driver %q: use sqlite or postgres", driver)
	}
}

// SQLWriter persists entries to SQLite/Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteWriter opens (and creates if needed) a SQLite prediction log.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "ferroinfer-predictions.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite prediction log: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	w := &SQLWriter{db: db, dialect: DriverSQLite}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter connects to a Postgres prediction log.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres prediction log: %w", err)
	}
	w := &SQLWriter{db: db, dialect: DriverPostgres}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s prediction log: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS prediction_logs (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	text_hash TEXT NOT NULL,
	text_length INTEGER NOT NULL,
	label TEXT,
	confidence REAL NOT NULL,
	status INTEGER NOT NULL,
	error_message TEXT,
	latency_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == DriverPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS prediction_logs (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	text_hash TEXT NOT NULL,
	text_length INTEGER NOT NULL,
	label TEXT,
	confidence DOUBLE PRECISION NOT NULL,
	status INTEGER NOT NULL,
	error_message TEXT,
	latency_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize prediction log schema: %w", err)
	}
	if _, err := w.db.Exec(`CREATE INDEX IF NOT EXISTS idx_prediction_logs_created_at ON prediction_logs(created_at)`); err != nil {
		return fmt.Errorf("initialize prediction log index: %w", err)
	}
	return nil
}

// placeholder returns the n-th (1-based) bind parameter for the dialect.
func (w *SQLWriter) placeholder(n int) string {
	if w.dialect == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ph := make([]string, 9)
	for i := range ph {
		ph[i] = w.placeholder(i + 1)
	}
	query := `INSERT INTO prediction_logs(trace_id, text_hash, text_length, label, confidence, status, error_message, latency_ms, created_at)
	VALUES(` + strings.Join(ph, ", ") + `)`

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.TextHash,
		entry.TextLength,
		entry.Label,
		entry.Confidence,
		entry.Status,
		entry.ErrorMessage,
		entry.LatencyMs,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write prediction log: %w", err)
	}
	return nil
}

// List returns entries matching q, newest first.
func (w *SQLWriter) List(ctx context.Context, q Query) (*ListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, clause+" "+w.placeholder(len(args)))
	}
	if q.Label != "" {
		add("label =", q.Label)
	}
	if q.Status != 0 {
		add("status =", q.Status)
	}
	if q.Since != nil {
		add("created_at >=", q.Since.UTC())
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prediction_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count prediction logs: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), q.Limit, q.Offset)
	query := `SELECT id, trace_id, text_hash, text_length, label, confidence, status, error_message, latency_ms, created_at
	FROM prediction_logs` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ` + w.placeholder(len(args)+1) + ` OFFSET ` + w.placeholder(len(args)+2)

	rows, err := w.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("list prediction logs: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Data: []Entry{}, Total: total}
	for rows.Next() {
		var (
			e        Entry
			traceID  sql.NullString
			label    sql.NullString
			errorMsg sql.NullString
		)
		if err := rows.Scan(&e.ID, &traceID, &e.TextHash, &e.TextLength, &label, &e.Confidence, &e.Status, &errorMsg, &e.LatencyMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction log: %w", err)
		}
		e.TraceID = traceID.String
		e.Label = label.String
		e.ErrorMessage = errorMsg.String
		result.Data = append(result.Data, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prediction logs: %w", err)
	}
	return result, nil
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
