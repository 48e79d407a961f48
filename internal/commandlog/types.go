// Package commandlog journals every SOAP action sent to a player so failures
// can be inspected after the fact through the status API.
package commandlog

import (
	"database/sql"
	"time"
)

// Entry is one recorded device command.
type Entry struct {
	EntryID    string    `json:"entry_id"`
	StartedAt  time.Time `json:"started_at"`
	Host       string    `json:"host"`
	Service    string    `json:"service"`
	Action     string    `json:"action"`
	DurationMs int64     `json:"duration_ms"`
	Succeeded  bool      `json:"succeeded"`
	Error      *string   `json:"error,omitempty"`
	StatusCode *int      `json:"status_code,omitempty"`
	FaultCode  *string   `json:"fault_code,omitempty"`
}

// QueryFilters narrows a query. A nil Host matches every host.
type QueryFilters struct {
	Host       *string
	FailedOnly bool
	Limit      int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}
