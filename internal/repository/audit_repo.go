package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/deskpro/signaling-server/internal/model"
)

// AuditRepository provides data access for the session audit journal.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an event to the journal and sets its ID.
func (r *AuditRepository) Insert(ctx context.Context, event *model.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO session_events (session_id, conn_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.SessionID,
		nullString(event.ConnID),
		string(event.Kind),
		nullString(event.Detail),
		event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read audit event id: %w", err)
	}
	event.ID = id

	return nil
}

// ListRecent returns the newest events across all sessions, newest first.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	query := `
		SELECT id, session_id, conn_id, kind, detail, created_at
		FROM session_events
		ORDER BY id DESC
		LIMIT ?
	`
	return r.query(ctx, query, limit)
}

// ListBySession returns the events of one session in the order they happened.
func (r *AuditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*model.AuditEvent, error) {
	query := `
		SELECT id, session_id, conn_id, kind, detail, created_at
		FROM session_events
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ?
	`
	return r.query(ctx, query, sessionID, limit)
}

// CountBySession returns the number of journaled events for a session.
func (r *AuditRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_events WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

func (r *AuditRepository) query(ctx context.Context, query string, args ...any) ([]*model.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		event := &model.AuditEvent{}
		var connID, detail sql.NullString
		var kind string

		if err := rows.Scan(&event.ID, &event.SessionID, &connID, &kind, &detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		event.Kind = model.AuditKind(kind)
		if connID.Valid {
			event.ConnID = connID.String
		}
		if detail.Valid {
			event.Detail = detail.String
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
