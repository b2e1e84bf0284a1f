package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/domain"
)

// AlertRepository persists AlertRule and AlertHistory rows (§4.8).
type AlertRepository struct {
	*BaseRepository
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *sql.DB, log zerolog.Logger) *AlertRepository {
	return &AlertRepository{BaseRepository: NewBase(db, log.With().Str("repo", "alerts").Logger())}
}

// RulesForEvent loads every enabled rule matching ruleType that is either
// global (userID == "") or scoped to userID, mirroring the evaluation
// predicate in §4.8.
func (r *AlertRepository) RulesForEvent(ctx context.Context, ruleType, userID string) ([]*domain.AlertRule, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, rule_type, threshold, filter, severity, enabled, notify_push, created_at
		FROM alert_rules
		WHERE rule_type = ? AND enabled = 1 AND (? = '' OR user_id = ?)`,
		ruleType, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var out []*domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var createdAt string
		var enabled, notifyPush int
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.RuleType, &rule.Threshold, &rule.Filter,
			&rule.Severity, &enabled, &notifyPush, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		rule.Enabled = enabled != 0
		rule.NotifyPush = notifyPush != 0
		rule.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &rule)
	}
	return out, rows.Err()
}

// CreateRule inserts a new alert rule.
func (r *AlertRepository) CreateRule(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error) {
	rule.ID = uuid.NewString()
	rule.CreatedAt = time.Now().UTC()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO alert_rules (id, user_id, rule_type, threshold, filter, severity, enabled, notify_push, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.RuleType, rule.Threshold, rule.Filter, rule.Severity,
		boolToInt(rule.Enabled), boolToInt(rule.NotifyPush), rule.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert alert rule: %w", err)
	}
	return rule, nil
}

// CreateHistory writes one AlertHistory row.
func (r *AlertRepository) CreateHistory(ctx context.Context, h *domain.AlertHistory) error {
	h.ID = uuid.NewString()
	if h.SentAt.IsZero() {
		h.SentAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(h.Metadata)
	if err != nil {
		return fmt.Errorf("marshal alert metadata: %w", err)
	}
	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO alert_history (id, user_id, rule_type, severity, title, message, metadata, sent_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		h.ID, h.UserID, h.RuleType, h.Severity, h.Title, h.Message, string(metadata),
		h.SentAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert alert history: %w", err)
	}
	return nil
}

// ListForUser returns alert history rows for userID, optionally filtered to
// unread-only and/or a severity.
func (r *AlertRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, severity string) ([]*domain.AlertHistory, error) {
	query := `SELECT id, user_id, rule_type, severity, title, message, metadata, sent_at, read_at
		FROM alert_history WHERE user_id = ?`
	args := []interface{}{userID}
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY sent_at DESC`

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert history: %w", err)
	}
	defer rows.Close()

	var out []*domain.AlertHistory
	for rows.Next() {
		h, err := scanAlertHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// MarkRead sets read_at for one alert, scoped to userID.
func (r *AlertRepository) MarkRead(ctx context.Context, userID, id string) error {
	_, err := r.DB().ExecContext(ctx,
		`UPDATE alert_history SET read_at = ? WHERE id = ? AND user_id = ?`,
		time.Now().UTC().Format(time.RFC3339), id, userID)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	return nil
}

// Delete removes one alert, scoped to userID.
func (r *AlertRepository) Delete(ctx context.Context, userID, id string) error {
	_, err := r.DB().ExecContext(ctx, `DELETE FROM alert_history WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

func scanAlertHistory(row rowScanner) (*domain.AlertHistory, error) {
	var h domain.AlertHistory
	var metadata string
	var sentAt string
	var readAt sql.NullString

	err := row.Scan(&h.ID, &h.UserID, &h.RuleType, &h.Severity, &h.Title, &h.Message, &metadata, &sentAt, &readAt)
	if err != nil {
		return nil, fmt.Errorf("scan alert history: %w", err)
	}
	_ = json.Unmarshal([]byte(metadata), &h.Metadata)
	h.SentAt, _ = time.Parse(time.RFC3339, sentAt)
	if readAt.Valid {
		t, _ := time.Parse(time.RFC3339, readAt.String)
		h.ReadAt = &t
	}
	return &h, nil
}
