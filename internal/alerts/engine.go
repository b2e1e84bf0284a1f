// Package alerts implements the alert engine (§4.8): rule evaluation against
// an incoming event, severity/priority derivation, and best-effort delivery.
package alerts

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
)

// Engine evaluates alert rules against incoming events and delivers
// triggered alerts.
type Engine struct {
	rules  *repositories.AlertRepository
	push   *PushClient
	events *events.Manager
	log    zerolog.Logger
}

// NewEngine creates a new alert Engine. emitter may be nil, in which case
// incoming events are evaluated but not separately logged.
func NewEngine(rules *repositories.AlertRepository, push *PushClient, emitter *events.Manager, log zerolog.Logger) *Engine {
	return &Engine{rules: rules, push: push, events: emitter, log: log.With().Str("component", "alert_engine").Logger()}
}

// Evaluate logs the incoming event, loads every enabled rule matching its
// type (global or scoped to the event's user), and fires each whose
// predicate matches. Errors loading rules are returned; everything past
// that point is best-effort and logged, never returned, matching
// createAlert's contract.
func (e *Engine) Evaluate(ctx context.Context, ev events.Event) error {
	if e.events != nil {
		e.events.Emit(ev)
	}

	rules, err := e.rules.RulesForEvent(ctx, string(ev.Type), ev.UserID)
	if err != nil {
		return fmt.Errorf("load alert rules: %w", err)
	}

	for _, rule := range rules {
		if !matches(ev.Type, rule, ev) {
			continue
		}
		title, message := render(ev.Type, ev, rule)
		severity := severityFor(ev.Type, rule)

		h := &domain.AlertHistory{
			UserID:   rule.UserID,
			RuleType: string(ev.Type),
			Severity: severity,
			Title:    title,
			Message:  message,
			Metadata: ev.Metadata,
		}
		e.createAlert(ctx, h, rule.NotifyPush)
	}
	return nil
}

// createAlert writes the AlertHistory row and, if sendPush, posts a push
// notification. Both actions are independently best-effort: the push fires
// even if the DB write failed (§4.8).
func (e *Engine) createAlert(ctx context.Context, h *domain.AlertHistory, sendPush bool) {
	if err := e.rules.CreateHistory(ctx, h); err != nil {
		e.log.Error().Err(err).Str("rule_type", h.RuleType).Msg("failed to persist alert")
	}
	if sendPush {
		e.push.Send(ctx, h.Title, h.Message, priorityFor(h.Severity), []string{string(h.Severity), h.RuleType})
	}
}

func matches(t events.Type, rule *domain.AlertRule, ev events.Event) bool {
	switch t {
	case events.LowBalance:
		if ev.Balance == nil || rule.Threshold == nil {
			return false
		}
		return *ev.Balance < *rule.Threshold
	case events.LargeTransaction:
		if ev.Amount == nil || rule.Threshold == nil {
			return false
		}
		return math.Abs(*ev.Amount) > *rule.Threshold
	default:
		return true
	}
}

func render(t events.Type, ev events.Event, rule *domain.AlertRule) (title, message string) {
	switch t {
	case events.LowBalance:
		balance := 0.0
		if ev.Balance != nil {
			balance = *ev.Balance
		}
		threshold := 0.0
		if rule.Threshold != nil {
			threshold = *rule.Threshold
		}
		return "⚠️ Low Balance Alert", fmt.Sprintf("%s: $%.2f (below $%.2f)", ev.AccountName, balance, threshold)
	case events.LargeTransaction:
		amount := 0.0
		if ev.Amount != nil {
			amount = math.Abs(*ev.Amount)
		}
		return "💸 Large Transaction", fmt.Sprintf("$%.2f — %s", amount, ev.Description)
	case events.SyncFailure:
		return "🔴 Sync Failed", fmt.Sprintf("%s: %s", ev.Institution, ev.Description)
	case events.NewSubscription:
		amountStr := "?"
		if ev.Amount != nil {
			amountStr = fmt.Sprintf("%.2f", *ev.Amount)
		}
		return "🔔 New Subscription Detected", fmt.Sprintf("%s — $%s/mo", ev.Description, amountStr)
	case events.AssetValueChange:
		return "🏠 Property Value Update", ev.Description
	case events.NetWorthMilestone:
		return "🎯 Net Worth Milestone!", ev.Description
	case events.Anomaly:
		return "🚨 Unusual Transaction", ev.Description
	default:
		return string(t), ev.Description
	}
}

func severityFor(t events.Type, rule *domain.AlertRule) domain.AlertSeverity {
	switch t {
	case events.LowBalance:
		return domain.SeverityHigh
	case events.LargeTransaction:
		return domain.SeverityMedium
	case events.SyncFailure:
		return domain.SeverityCritical
	default:
		if rule.Severity != "" {
			return rule.Severity
		}
		return domain.SeverityMedium
	}
}

func priorityFor(severity domain.AlertSeverity) string {
	switch severity {
	case domain.SeverityCritical:
		return "max"
	case domain.SeverityHigh:
		return "high"
	default:
		return "default"
	}
}
