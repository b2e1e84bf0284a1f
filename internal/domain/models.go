// Package domain holds the entity types from spec §3: the shapes every
// repository, service, and handler in this system passes around. Storage
// layout lives in internal/database/schema.sql; these are the in-memory
// representations.
package domain

import "time"

// Plan is a user's billing tier.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanLifetime Plan = "lifetime"
)

// User is an account holder.
type User struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	Plan                Plan      `json:"plan"`
	SubscriptionStatus  string    `json:"subscription_status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RefreshToken is a server-side record of an issued long-lived token. The
// plaintext token is never stored, only SHA-256(token).
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceKind is the kind of external source behind an InstitutionLink.
type SourceKind string

const (
	SourceAggregator SourceKind = "aggregator"
	SourceOFX        SourceKind = "ofx"
	SourceUpload     SourceKind = "upload"
)

// LinkStatus is the health of an InstitutionLink.
type LinkStatus string

const (
	LinkStatusGood          LinkStatus = "good"
	LinkStatusError         LinkStatus = "error"
	LinkStatusLoginRequired LinkStatus = "login_required"
)

// InstitutionLink is one connected external source.
type InstitutionLink struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	SourceKind          SourceKind `json:"source_kind"`
	InstitutionID       string     `json:"institution_id"`
	InstitutionName     string     `json:"institution_name"`
	CredentialEncrypted []byte     `json:"-"`
	SyncCursor          string     `json:"-"`
	Status              LinkStatus `json:"status"`
	LastErrorCode       string     `json:"last_error_code,omitempty"`
	LastErrorMessage    string     `json:"last_error_message,omitempty"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// AccountKind is whether a SourceAccount is an asset or a liability.
type AccountKind string

const (
	AccountAsset     AccountKind = "asset"
	AccountLiability AccountKind = "liability"
)

// SourceAccount is one account under an InstitutionLink.
type SourceAccount struct {
	ID                string      `json:"id"`
	LinkID            string      `json:"link_id"`
	UserID            string      `json:"user_id"`
	ExternalAccountID string      `json:"external_account_id"`
	Name              string      `json:"name"`
	Type              AccountKind `json:"type"`
	Subtype           string      `json:"subtype"`
	CurrentBalance    float64     `json:"current_balance"`
	AvailableBalance  *float64    `json:"available_balance,omitempty"`
	CreditLimit       *float64    `json:"credit_limit,omitempty"`
	Currency          string      `json:"currency"`
	Hidden            bool        `json:"hidden"`
}

// LedgerAccountMap maps (institution, external account id) to a ledger
// account id. Exactly one row per pair.
type LedgerAccountMap struct {
	ID                string
	Institution       string
	ExternalAccountID string
	LedgerAccountID   string
	CreatedAt         time.Time
}

// ImportedTxnKey records that (externalID, institution) has already been
// written to the ledger. This is the sole duplicate-suppression mechanism
// at the ingestion boundary (§4.3.2).
type ImportedTxnKey struct {
	ID                  string
	ExternalID          string
	Institution         string
	LedgerTransactionID string
	CreatedAt           time.Time
}

// ManualAsset is a user-declared asset (real estate, vehicle, private
// note, etc).
type ManualAsset struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Type            string     `json:"type"`
	Name            string     `json:"name"`
	CurrentValue    float64    `json:"current_value"`
	ValuationSource string     `json:"valuation_source"`
	ValueAsOf       *string    `json:"value_as_of,omitempty"`
	Principal       *float64   `json:"principal,omitempty"`
	AnnualRate      *float64   `json:"annual_rate,omitempty"`
	StartDate       *string    `json:"start_date,omitempty"`
	TermMonths      *int       `json:"term_months,omitempty"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsNote reports whether the asset is a note receivable/payable requiring
// amortization to derive its current value.
func (a *ManualAsset) IsNote() bool {
	return a.Type == "note_receivable" || a.Type == "note_payable"
}

// HasCompleteNoteSchedule reports whether all fields needed to run the
// amortization engine are present.
func (a *ManualAsset) HasCompleteNoteSchedule() bool {
	return a.Principal != nil && a.AnnualRate != nil && a.StartDate != nil && a.TermMonths != nil
}

// IlliquidCategories are the ManualAsset types excluded from liquid net
// worth (§4.7 step 4, glossary "Liquid net worth").
var IlliquidCategories = map[string]bool{
	"real_estate":      true,
	"vehicle":          true,
	"note_receivable":  true,
	"note_payable":     true,
	"business":         true,
}

// ValueHistory is (asset id, recorded date, value, source), unique on
// (asset, date).
type ValueHistory struct {
	ID           string
	AssetID      string
	RecordedDate string
	Value        float64
	Source       string
}

// NotePayment is one amortization payment applied to a note asset.
type NotePayment struct {
	ID                string
	AssetID           string
	Date              string
	Amount            float64
	PrincipalPortion  float64
	InterestPortion   float64
	BalanceAfter      float64
}

// NetWorthSnapshot is a per-user daily aggregate.
type NetWorthSnapshot struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	Date              string             `json:"date"`
	TotalAssets       float64            `json:"total_assets"`
	TotalLiabilities  float64            `json:"total_liabilities"`
	NetWorth          float64            `json:"net_worth"`
	Breakdown         map[string]float64 `json:"breakdown"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ForecastSnapshot is a per-user forecast with Monte Carlo scenarios.
type ForecastSnapshot struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	HorizonMonths int                    `json:"horizon_months"`
	Scenarios     map[string]interface{} `json:"scenarios"`
	Summary       map[string]interface{} `json:"summary"`
	CreatedAt     time.Time              `json:"created_at"`
}

// MerchantHistory is one (merchant, date, amount) sample used to build the
// 90-day baseline for anomaly detection.
type MerchantHistory struct {
	ID       string
	Merchant string
	Amount   float64
	Date     string
}

// CategorySource records whether a merchant's category came from the rule
// table or an LLM classification.
type CategorySource string

const (
	CategorySourceRule CategorySource = "rule"
	CategorySourceAI   CategorySource = "ai"
)

// MerchantCategory is a cached (merchant -> category) decision.
type MerchantCategory struct {
	Merchant string
	Category string
	Source   CategorySource
}

// AlertSeverity is the severity ladder for AlertRule/AlertHistory.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertRule is a user-configured alert condition.
type AlertRule struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	RuleType   string        `json:"rule_type"`
	Threshold  *float64      `json:"threshold,omitempty"`
	Filter     string        `json:"filter,omitempty"`
	Severity   AlertSeverity `json:"severity"`
	Enabled    bool          `json:"enabled"`
	NotifyPush bool          `json:"notify_push"`
	CreatedAt  time.Time     `json:"created_at"`
}

// AlertHistory is one delivered alert.
type AlertHistory struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	RuleType  string                 `json:"rule_type"`
	Severity  AlertSeverity          `json:"severity"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	SentAt    time.Time              `json:"sent_at"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
}

// SyncStatus is the lifecycle of a SyncLog row.
type SyncStatus string

const (
	SyncRunning SyncStatus = "running"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// SyncLog is one row per sync attempt.
type SyncLog struct {
	ID                 string     `json:"id"`
	UserID             *string    `json:"user_id,omitempty"`
	Institution        string     `json:"institution"`
	Method             string     `json:"method"`
	Status             SyncStatus `json:"status"`
	TransactionsAdded  int        `json:"transactions_added"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}
