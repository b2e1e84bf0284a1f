package repositories

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

// testSchema is a trimmed copy of internal/database/schema.sql sufficient
// for repository-level tests, kept here instead of applying database.Schema().
const testSchema = `
CREATE TABLE users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    plan TEXT NOT NULL DEFAULT 'free',
    subscription_status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE refresh_tokens (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    token_hash TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE ledger_account_map (
    id TEXT PRIMARY KEY,
    institution TEXT NOT NULL,
    external_account_id TEXT NOT NULL,
    ledger_account_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(institution, external_account_id)
);

CREATE TABLE imported_txn_keys (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL,
    institution TEXT NOT NULL,
    ledger_transaction_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(external_id, institution)
);

CREATE TABLE institution_links (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    source_kind TEXT NOT NULL,
    institution_id TEXT NOT NULL,
    institution_name TEXT NOT NULL,
    credential_encrypted BLOB,
    sync_cursor TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'good',
    last_error_code TEXT,
    last_error_message TEXT,
    last_synced_at TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE source_accounts (
    id TEXT PRIMARY KEY,
    link_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    external_account_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    subtype TEXT NOT NULL DEFAULT '',
    current_balance REAL NOT NULL DEFAULT 0,
    available_balance REAL,
    credit_limit REAL,
    currency TEXT NOT NULL DEFAULT 'USD',
    hidden INTEGER NOT NULL DEFAULT 0,
    UNIQUE(link_id, external_account_id)
);

CREATE TABLE note_payments (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL,
    payment_date TEXT NOT NULL,
    amount REAL NOT NULL,
    principal_portion REAL NOT NULL,
    interest_portion REAL NOT NULL,
    balance_after REAL NOT NULL
);

CREATE TABLE forecast_snapshots (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    horizon_months INTEGER NOT NULL,
    scenarios TEXT NOT NULL,
    summary TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE manual_assets (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    current_value REAL NOT NULL DEFAULT 0,
    valuation_source TEXT NOT NULL DEFAULT 'manual',
    value_as_of TEXT,
    principal REAL,
    annual_rate REAL,
    start_date TEXT,
    term_months INTEGER,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE asset_value_history (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL,
    recorded_date TEXT NOT NULL,
    value REAL NOT NULL,
    source TEXT NOT NULL DEFAULT 'manual',
    UNIQUE(asset_id, recorded_date)
);

CREATE TABLE net_worth_snapshots (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    snapshot_date TEXT NOT NULL,
    total_assets REAL NOT NULL,
    total_liabilities REAL NOT NULL,
    net_worth REAL NOT NULL,
    breakdown TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(user_id, snapshot_date)
);

CREATE TABLE merchant_history (
    id TEXT PRIMARY KEY,
    merchant TEXT NOT NULL,
    amount REAL NOT NULL,
    txn_date TEXT NOT NULL
);

CREATE TABLE merchant_categories (
    merchant TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'rule'
);

CREATE TABLE alert_rules (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    rule_type TEXT NOT NULL,
    threshold REAL,
    filter TEXT,
    severity TEXT NOT NULL DEFAULT 'medium',
    enabled INTEGER NOT NULL DEFAULT 1,
    notify_push INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);

CREATE TABLE alert_history (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    rule_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    metadata TEXT,
    sent_at TEXT NOT NULL,
    read_at TEXT
);

CREATE TABLE sync_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    institution TEXT NOT NULL,
    method TEXT NOT NULL,
    status TEXT NOT NULL,
    transactions_added INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    started_at TEXT NOT NULL,
    completed_at TEXT
);
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}
