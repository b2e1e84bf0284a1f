package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/domain"
)

// SyncLogRepository persists SyncLog rows, the per-attempt audit trail
// behind the failure counter and status surfaced in §4.9/§4.10.
type SyncLogRepository struct {
	*BaseRepository
}

// NewSyncLogRepository creates a new SyncLogRepository.
func NewSyncLogRepository(db *sql.DB, log zerolog.Logger) *SyncLogRepository {
	return &SyncLogRepository{BaseRepository: NewBase(db, log.With().Str("repo", "sync_logs").Logger())}
}

// Start inserts a running SyncLog row and returns its ID.
func (r *SyncLogRepository) Start(ctx context.Context, userID *string, institution, method string) (string, error) {
	id := uuid.NewString()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO sync_logs (id, user_id, institution, method, status, transactions_added, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?, NULL)`,
		id, userID, institution, method, domain.SyncRunning, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("start sync log: %w", err)
	}
	return id, nil
}

// Complete finalizes a SyncLog row with its outcome.
func (r *SyncLogRepository) Complete(ctx context.Context, id string, status domain.SyncStatus, added int, errMsg string) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE sync_logs SET status = ?, transactions_added = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		status, added, errMsg, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("complete sync log: %w", err)
	}
	return nil
}

// RecentForInstitution returns the most recent log rows for an institution
// across all users, newest first, used by the OFX failure-counter logic.
func (r *SyncLogRepository) RecentForInstitution(ctx context.Context, institution string, limit int) ([]*domain.SyncLog, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, institution, method, status, transactions_added, error_message, started_at, completed_at
		FROM sync_logs WHERE institution = ? ORDER BY started_at DESC LIMIT ?`, institution, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.SyncLog
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListForUser returns sync logs for userID, newest first.
func (r *SyncLogRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*domain.SyncLog, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, institution, method, status, transactions_added, error_message, started_at, completed_at
		FROM sync_logs WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync logs for user: %w", err)
	}
	defer rows.Close()

	var out []*domain.SyncLog
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanSyncLog(row rowScanner) (*domain.SyncLog, error) {
	var l domain.SyncLog
	var userID sql.NullString
	var startedAt string
	var completedAt sql.NullString

	err := row.Scan(&l.ID, &userID, &l.Institution, &l.Method, &l.Status, &l.TransactionsAdded,
		&l.ErrorMessage, &startedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("scan sync log: %w", err)
	}
	if userID.Valid {
		v := userID.String
		l.UserID = &v
	}
	l.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		l.CompletedAt = &t
	}
	return &l, nil
}
