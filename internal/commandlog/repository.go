package commandlog

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timestampLayout sorts lexically in time order, unlike RFC3339Nano.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

const entryColumns = `entry_id, started_at, host, service, action, duration_ms, succeeded, error, status_code, fault_code`

// Repository handles database operations for command log entries.
// Uses separate reader/writer connections for optimal SQLite concurrency.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new command log Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Insert stores entry under a fresh UUID and returns the stored copy.
func (r *Repository) Insert(entry Entry) (*Entry, error) {
	entry.EntryID = uuid.New().String()
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}
	entry.StartedAt = entry.StartedAt.UTC()

	_, err := r.writer.Exec(`
		INSERT INTO command_log (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.EntryID, entry.StartedAt.Format(timestampLayout), entry.Host, entry.Service, entry.Action,
		entry.DurationMs, entry.Succeeded, entry.Error, entry.StatusCode, entry.FaultCode)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// Get retrieves a single entry by ID.
// Returns nil, nil if not found.
func (r *Repository) Get(entryID string) (*Entry, error) {
	row := r.reader.QueryRow(`SELECT `+entryColumns+` FROM command_log WHERE entry_id = ?`, entryID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// Query returns entries matching filters, newest first.
func (r *Repository) Query(filters QueryFilters) ([]Entry, error) {
	conditions := []string{}
	args := []any{}

	if filters.Host != nil {
		conditions = append(conditions, "host = ?")
		args = append(args, *filters.Host)
	}
	if filters.FailedOnly {
		conditions = append(conditions, "succeeded = 0")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rows, err := r.reader.Query(`
		SELECT `+entryColumns+`
		FROM command_log
		`+whereClause+`
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Prune deletes entries started before cutoff.
// Returns number of rows deleted.
func (r *Repository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`
		DELETE FROM command_log
		WHERE started_at < ?
	`, cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var entry Entry
	var startedAt string
	var errText sql.NullString
	var statusCode sql.NullInt64
	var faultCode sql.NullString

	err := row.Scan(
		&entry.EntryID,
		&startedAt,
		&entry.Host,
		&entry.Service,
		&entry.Action,
		&entry.DurationMs,
		&entry.Succeeded,
		&errText,
		&statusCode,
		&faultCode,
	)
	if err != nil {
		return nil, err
	}

	entry.StartedAt, err = time.Parse(timestampLayout, startedAt)
	if err != nil {
		entry.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	}
	if errText.Valid {
		entry.Error = &errText.String
	}
	if statusCode.Valid {
		code := int(statusCode.Int64)
		entry.StatusCode = &code
	}
	if faultCode.Valid {
		entry.FaultCode = &faultCode.String
	}

	return &entry, nil
}
