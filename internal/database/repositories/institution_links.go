package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/domain"
)

// InstitutionLinkRepository persists InstitutionLink rows.
type InstitutionLinkRepository struct {
	*BaseRepository
}

// NewInstitutionLinkRepository creates a new InstitutionLinkRepository.
func NewInstitutionLinkRepository(db *sql.DB, log zerolog.Logger) *InstitutionLinkRepository {
	return &InstitutionLinkRepository{BaseRepository: NewBase(db, log.With().Str("repo", "institution_links").Logger())}
}

// Create inserts a new institution link.
func (r *InstitutionLinkRepository) Create(ctx context.Context, l *domain.InstitutionLink) (*domain.InstitutionLink, error) {
	l.ID = uuid.NewString()
	l.CreatedAt = time.Now().UTC()
	if l.Status == "" {
		l.Status = domain.LinkStatusGood
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO institution_links (
			id, user_id, source_kind, institution_id, institution_name, credential_encrypted,
			sync_cursor, status, last_error_code, last_error_message, last_synced_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		l.ID, l.UserID, l.SourceKind, l.InstitutionID, l.InstitutionName, l.CredentialEncrypted,
		l.SyncCursor, l.Status, l.LastErrorCode, l.LastErrorMessage, l.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert institution link: %w", err)
	}
	return l, nil
}

// GetByID fetches a link scoped to userID.
func (r *InstitutionLinkRepository) GetByID(ctx context.Context, userID, id string) (*domain.InstitutionLink, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, user_id, source_kind, institution_id, institution_name, credential_encrypted,
		       sync_cursor, status, last_error_code, last_error_message, last_synced_at, created_at
		FROM institution_links WHERE id = ? AND user_id = ?`, id, userID)

	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return l, err
}

// ListByUser returns every link for userID.
func (r *InstitutionLinkRepository) ListByUser(ctx context.Context, userID string) ([]*domain.InstitutionLink, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, source_kind, institution_id, institution_name, credential_encrypted,
		       sync_cursor, status, last_error_code, last_error_message, last_synced_at, created_at
		FROM institution_links WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list institution links: %w", err)
	}
	defer rows.Close()

	var out []*domain.InstitutionLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListBySourceKind returns every link of the given kind, across all users —
// used by the scheduler's OFX-maintenance and aggregator-wide jobs (§4.9).
func (r *InstitutionLinkRepository) ListBySourceKind(ctx context.Context, kind domain.SourceKind) ([]*domain.InstitutionLink, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, source_kind, institution_id, institution_name, credential_encrypted,
		       sync_cursor, status, last_error_code, last_error_message, last_synced_at, created_at
		FROM institution_links WHERE source_kind = ?`, kind)
	if err != nil {
		return nil, fmt.Errorf("list institution links by kind: %w", err)
	}
	defer rows.Close()

	var out []*domain.InstitutionLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// FindByInstitutionID looks up the aggregator-sourced link carrying
// institutionID as its external item id, across all users. Webhooks arrive
// keyed by item id with no user context (§4.4 "webhook handling").
func (r *InstitutionLinkRepository) FindByInstitutionID(ctx context.Context, institutionID string) (*domain.InstitutionLink, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, user_id, source_kind, institution_id, institution_name, credential_encrypted,
		       sync_cursor, status, last_error_code, last_error_message, last_synced_at, created_at
		FROM institution_links WHERE institution_id = ? AND source_kind = ?`,
		institutionID, domain.SourceAggregator)

	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return l, err
}

// UpdateCursor persists a new sync cursor after a successful delta sync.
func (r *InstitutionLinkRepository) UpdateCursor(ctx context.Context, id, cursor string) error {
	_, err := r.DB().ExecContext(ctx, `UPDATE institution_links SET sync_cursor = ? WHERE id = ?`, cursor, id)
	if err != nil {
		return fmt.Errorf("update sync cursor: %w", err)
	}
	return nil
}

// UpdateStatus records the outcome of a sync attempt.
func (r *InstitutionLinkRepository) UpdateStatus(ctx context.Context, id string, status domain.LinkStatus, errCode, errMsg string, syncedAt time.Time) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE institution_links
		SET status = ?, last_error_code = ?, last_error_message = ?, last_synced_at = ?
		WHERE id = ?`,
		status, errCode, errMsg, syncedAt.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update link status: %w", err)
	}
	return nil
}

// Delete removes a link scoped to userID.
func (r *InstitutionLinkRepository) Delete(ctx context.Context, userID, id string) error {
	_, err := r.DB().ExecContext(ctx, `DELETE FROM institution_links WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete institution link: %w", err)
	}
	return nil
}

func scanLink(row rowScanner) (*domain.InstitutionLink, error) {
	var l domain.InstitutionLink
	var createdAt string
	var lastSyncedAt sql.NullString

	err := row.Scan(&l.ID, &l.UserID, &l.SourceKind, &l.InstitutionID, &l.InstitutionName, &l.CredentialEncrypted,
		&l.SyncCursor, &l.Status, &l.LastErrorCode, &l.LastErrorMessage, &lastSyncedAt, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan institution link: %w", err)
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastSyncedAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastSyncedAt.String)
		l.LastSyncedAt = &t
	}
	return &l, nil
}
