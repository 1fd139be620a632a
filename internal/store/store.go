// Package store persists notification requests and their lifecycle status.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/notification"
)

// Store is the Postgres persistence collaborator for the dispatch pipeline.
// A request's row is only ever mutated through the engine handling it.
// At-most-once dispatch rests on two rules: engine-created rows insert as
// sending, and the claim query is the only pending-to-sending transition.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// priorityRankSQL orders rows by the priority enumeration; keep in sync with
// notification.Priority.Rank.
const priorityRankSQL = `CASE priority
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	ELSE 1 END`

// Save inserts the request and returns its id, assigning one when absent.
// Rows the engine creates are born in sending: the insert itself is the
// claim, so a concurrent sweep can never select them. Only externally
// queued rows ever sit in pending. scheduled_at defaults to now.
func (s *Store) Save(ctx context.Context, req *notification.Request) (string, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.ScheduledAt == nil {
		now := time.Now().UTC()
		req.ScheduledAt = &now
	}

	data, err := json.Marshal(req.Data)
	if err != nil {
		return "", fmt.Errorf("encode data: %w", err)
	}
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	const query = `
		INSERT INTO notifications
			(id, tenant_id, recipient_id, type, channel, priority, template_id,
			 data, scheduled_at, expires_at, metadata, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'sending', NOW(), NOW())`

	if _, err := s.db.ExecContext(ctx, query,
		req.ID, req.TenantID, req.RecipientID, string(req.Type), string(req.Channel),
		string(req.Priority), req.TemplateID, data, req.ScheduledAt, req.ExpiresAt, metadata,
	); err != nil {
		return "", apperrors.NewQueryExecutionFailedError("save", err)
	}
	return req.ID, nil
}

// UpdateStatus records a dispatch outcome against the request row.
func (s *Store) UpdateStatus(ctx context.Context, id string, resp *notification.Response) error {
	const query = `
		UPDATE notifications SET
			status = $2,
			error = NULLIF($3, ''),
			message_id = NULLIF($4, ''),
			tracking_id = NULLIF($5, ''),
			sent_at = COALESCE($6, sent_at),
			delivered_at = COALESCE($7, delivered_at),
			failed_at = COALESCE($8, failed_at),
			updated_at = NOW()
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		id, string(resp.Status), resp.Error, resp.MessageID, resp.TrackingID,
		resp.SentAt, resp.DeliveredAt, resp.FailedAt,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("updateStatus", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return apperrors.NewNotificationNotFoundError(id)
	}
	return nil
}

// ClaimDue atomically transitions up to limit due pending rows to sending
// and returns them ordered by priority descending, then scheduled time
// ascending. Rows another claimer holds are skipped, so overlapping sweeps
// and concurrent direct dispatches can never double-deliver one request.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]*notification.Request, error) {
	query := fmt.Sprintf(`
		UPDATE notifications SET status = 'sending', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending'
			  AND scheduled_at <= NOW()
			  AND (expires_at IS NULL OR expires_at > NOW())
			ORDER BY %s DESC, scheduled_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, recipient_id, type, channel, priority,
		          template_id, data, scheduled_at, expires_at, metadata`, priorityRankSQL)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("claimDue", err)
	}
	defer rows.Close()

	var claimed []*notification.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("claimDue", err)
	}

	// UPDATE ... RETURNING does not guarantee row order; restore the claim
	// ordering before handing the page to the batch controller.
	sort.SliceStable(claimed, func(i, j int) bool {
		ri, rj := claimed[i].Priority.Rank(), claimed[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return claimed[i].ScheduledAt.Before(*claimed[j].ScheduledAt)
	})
	return claimed, nil
}

// GetByID loads one request row.
func (s *Store) GetByID(ctx context.Context, id string) (*notification.Request, error) {
	const query = `
		SELECT id, tenant_id, recipient_id, type, channel, priority,
		       template_id, data, scheduled_at, expires_at, metadata
		FROM notifications WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotificationNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// MarkDelivered promotes a sent notification to delivered; the open-tracking
// callback is the only caller. Rows in any other state are left untouched.
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	const query = `
		UPDATE notifications
		SET status = 'delivered', delivered_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'sent'`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return apperrors.NewQueryExecutionFailedError("markDelivered", err)
	}
	return nil
}

// TenantMetrics aggregates dispatch outcomes over a trailing window.
type TenantMetrics struct {
	TenantID  string         `json:"tenantId"`
	Days      int            `json:"days"`
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"byStatus"`
	ByChannel map[string]int `json:"byChannel"`
}

// Metrics returns per-tenant aggregate counts for the last days days.
func (s *Store) Metrics(ctx context.Context, tenantID string, days int) (*TenantMetrics, error) {
	const query = `
		SELECT status, channel, COUNT(*)
		FROM notifications
		WHERE tenant_id = $1 AND created_at >= NOW() - ($2 || ' days')::interval
		GROUP BY status, channel`

	rows, err := s.db.QueryContext(ctx, query, tenantID, days)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("metrics", err)
	}
	defer rows.Close()

	m := &TenantMetrics{
		TenantID:  tenantID,
		Days:      days,
		ByStatus:  map[string]int{},
		ByChannel: map[string]int{},
	}
	for rows.Next() {
		var status, channel string
		var count int
		if err := rows.Scan(&status, &channel, &count); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("metrics", err)
		}
		m.ByStatus[status] += count
		m.ByChannel[channel] += count
		m.Total += count
	}
	return m, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row scanner) (*notification.Request, error) {
	var (
		req      notification.Request
		reqType  string
		channel  string
		priority string
		data     []byte
		metadata []byte
	)

	err := row.Scan(
		&req.ID, &req.TenantID, &req.RecipientID, &reqType, &channel,
		&priority, &req.TemplateID, &data, &req.ScheduledAt, &req.ExpiresAt, &metadata,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("scan", err)
	}

	req.Type = notification.Type(reqType)
	req.Channel = notification.Channel(channel)
	req.Priority = notification.Priority(priority)

	if len(data) > 0 {
		if err := json.Unmarshal(data, &req.Data); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &req.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &req, nil
}
