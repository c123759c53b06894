// Package audit records destructive operations on datacenter data:
// metadata imports that replace a datacenter and series deletions.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riahtu/energy-saving/internal/infrastructure/database"
)

// Actions recorded in the audit trail.
const (
	ActionImport = "import"
	ActionDelete = "delete"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is a single audit trail entry.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action     string // optional: import, delete
	EntityType string // optional: datacenter, series
	EntityID   string // optional: a datacenter name
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores audit entries in the audit_logs table.
type Repository struct {
	db     *database.DB
	source string
}

// NewRepository creates a repository. Source names the process writing
// entries, e.g. "cli" or "ingest".
func NewRepository(db *database.DB, source string) *Repository {
	return &Repository{db: db, source: source}
}

// Record stores an entry built from its parts.
func (r *Repository) Record(ctx context.Context, action, entityType, entityID string, details map[string]any) error {
	return r.Create(ctx, &Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	})
}

// Create inserts an entry. ID, Source and CreatedAt are filled in when empty.
func (r *Repository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()
	}
	if e.Source == "" {
		e.Source = r.source
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.EntityType, nullable(e.EntityID), e.Source, details,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// List returns entries matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from fixed conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := "SELECT id, action, entity_type, entity_id, source, details, created_at FROM audit_logs " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var entityID, details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &e.Source, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.EntityID = entityID.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decoding audit details of %s: %w", e.ID, err)
			}
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
