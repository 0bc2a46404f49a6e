// Package journal keeps a history of the commands the gateway processed.
//
// The journal is write-mostly and advisory: it is never read back to
// rebuild the device registry, and a failing write never affects an
// acknowledgement.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/wemo-gateway/internal/dispatch"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ErrInvalidEntry is returned by Record for an entry missing its
// reference number, type or outcome.
var ErrInvalidEntry = errors.New("journal: invalid entry")

// Entry is one journalled command.
type Entry struct {
	ID         string    `json:"id"`
	Ref        string    `json:"ref"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Name       string    `json:"name,omitempty"`
	Address    string    `json:"address,omitempty"`
	State      string    `json:"state,omitempty"`
	Outcome    string    `json:"outcome"`
	AckType    string    `json:"ack_type"`
	AckPayload string    `json:"ack_payload,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type    string
	Name    string
	Outcome string
	Limit   int // default 50, max 500
	Offset  int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores journal entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository is the Repository backed by the command_journal table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts e, generating its ID and CreatedAt when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.Ref == "" || e.Type == "" || e.Outcome == "" {
		return fmt.Errorf("%w: ref, type and outcome are required", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal
		   (id, ref, type, source, name, address, state, outcome, ack_type, ack_payload, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Ref, e.Type, e.Source,
		nullable(e.Name), nullable(e.Address), nullable(e.State),
		e.Outcome, e.AckType, nullable(e.AckPayload),
		e.DurationMS, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"type", filter.Type},
		{"name", filter.Name},
		{"outcome", filter.Outcome},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_journal " + where //nolint:gosec // columns are fixed, values are parameters
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := `SELECT id, ref, type, source, name, address, state, outcome, ack_type, ack_payload, duration_ms, created_at
	          FROM command_journal ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // as above
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var name, address, state, ackPayload sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Ref, &e.Type, &e.Source, &name, &address, &state,
			&e.Outcome, &e.AckType, &ackPayload, &e.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Name, e.Address, e.State, e.AckPayload = name.String, address.String, state.String, ackPayload.String

		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Observer records every dispatcher event in a Repository.
type Observer struct {
	repo Repository
}

var _ dispatch.Observer = (*Observer)(nil)

// NewObserver creates a dispatch.Observer writing to repo.
func NewObserver(repo Repository) *Observer {
	return &Observer{repo: repo}
}

// Observe implements dispatch.Observer.
func (o *Observer) Observe(ctx context.Context, ev dispatch.Event) error {
	return o.repo.Record(ctx, &Entry{
		Ref:        ev.Ref,
		Type:       ev.Type,
		Source:     ev.Source,
		Name:       ev.Name,
		Address:    ev.Address,
		State:      ev.State,
		Outcome:    string(ev.Outcome),
		AckType:    ev.AckType,
		AckPayload: ev.AckPayload,
		DurationMS: float64(ev.Duration) / float64(time.Millisecond),
		CreatedAt:  ev.Time,
	})
}
