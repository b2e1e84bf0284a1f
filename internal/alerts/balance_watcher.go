package alerts

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/ledger"
)

// BalanceWatcher scans ledger account balances and evaluates low_balance
// events against the alert rule table, the quarter-hourly job in §4.9's
// table ("refreshBalances: ledger scan -> low_balance events").
type BalanceWatcher struct {
	ledger *ledger.Client
	engine *Engine
	log    zerolog.Logger
}

// NewBalanceWatcher builds a BalanceWatcher.
func NewBalanceWatcher(ledgerClient *ledger.Client, engine *Engine, log zerolog.Logger) *BalanceWatcher {
	return &BalanceWatcher{ledger: ledgerClient, engine: engine, log: log.With().Str("component", "balance_watcher").Logger()}
}

// RunForUser evaluates every asset-type ledger account's balance as a
// low_balance candidate event for userID. The alert rule table (not this
// watcher) decides whether any rule actually fires.
func (w *BalanceWatcher) RunForUser(ctx context.Context, userID string) {
	accounts, err := w.ledger.ListAccounts(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to list ledger accounts for balance scan")
		return
	}

	for _, acct := range accounts {
		if acct.Type == "liabilities" || acct.Type == "expense" {
			continue
		}
		balance := acct.Balance
		if err := w.engine.Evaluate(ctx, events.Event{
			Type:        events.LowBalance,
			UserID:      userID,
			AccountName: acct.Name,
			Balance:     &balance,
		}); err != nil {
			w.log.Error().Err(err).Str("account", acct.Name).Msg("failed to evaluate low balance alert")
		}
	}
}
