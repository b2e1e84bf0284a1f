// Package events defines the alert event schema (§4.8) and a thin logging
// emitter every producer (sync jobs, snapshot job, anomaly detection) calls
// through before handing the same Event to the alert engine for evaluation.
package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Type is one of the alert rule types evaluated by §4.8's predicate table.
type Type string

const (
	LowBalance        Type = "low_balance"
	LargeTransaction  Type = "large_transaction"
	SyncFailure       Type = "sync_failure"
	NewSubscription   Type = "new_subscription"
	AssetValueChange  Type = "asset_value_change"
	NetWorthMilestone Type = "net_worth_milestone"
	Anomaly           Type = "anomaly"
)

// Event is the payload every producer builds. Which fields are populated
// depends on Type; see §4.8's predicate table.
type Event struct {
	Type        Type
	UserID      string
	Institution string
	AccountName string
	Amount      *float64
	Balance     *float64
	Description string
	Metadata    map[string]interface{}
	Timestamp   time.Time
}

// Manager logs every event as it passes through. It does not evaluate alert
// rules — that is alerts.Engine.Evaluate's job — producers call both.
type Manager struct {
	log zerolog.Logger
}

// NewManager creates a new event manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log.With().Str("component", "events").Logger()}
}

// Emit logs the event.
func (m *Manager) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	entry := m.log.Info().
		Str("event_type", string(e.Type)).
		Str("institution", e.Institution).
		Str("description", e.Description)
	if e.UserID != "" {
		entry = entry.Str("user_id", e.UserID)
	}
	if e.Amount != nil {
		entry = entry.Float64("amount", *e.Amount)
	}
	if e.Balance != nil {
		entry = entry.Float64("balance", *e.Balance)
	}
	entry.Msg("event emitted")
}
