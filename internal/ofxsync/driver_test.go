package ofxsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/anomaly"
	"github.com/aristath/finhub/internal/categorize"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/ledger"
)

const sampleOFX = `
<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<BANKACCTFROM>
<ACCTID>acc-1
</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20260110120000
<TRNAMT>-45.99
<FITID>1001
<NAME>AMAZON MARKETPLACE
</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func newTestDriver(t *testing.T, downloadDir string) (*Driver, *repositories.InstitutionLinkRepository, *repositories.SourceAccountRepository) {
	driver, links, accounts, _ := newTestDriverWithAlerts(t, downloadDir)
	return driver, links, accounts
}

func newTestDriverWithAlerts(t *testing.T, downloadDir string) (*Driver, *repositories.InstitutionLinkRepository, *repositories.SourceAccountRepository, *repositories.AlertRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	links := repositories.NewInstitutionLinkRepository(db, zerolog.Nop())
	accounts := repositories.NewSourceAccountRepository(db, zerolog.Nop())
	syncLogs := repositories.NewSyncLogRepository(db, zerolog.Nop())
	merchants := repositories.NewMerchantRepository(db, zerolog.Nop())
	mapping := repositories.NewLedgerMappingRepository(db, zerolog.Nop())
	keys := repositories.NewImportedTxnKeyRepository(db, zerolog.Nop())
	alertRepo := repositories.NewAlertRepository(db, zerolog.Nop())

	ledgerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/accounts" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]ledger.Account{})
		case r.URL.Path == "/accounts" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(ledger.Account{ID: "ledger-1"})
		case r.URL.Path == "/transactions":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ledgerSrv.Close)

	ledgerClient := ledger.NewClient(ledgerSrv.URL, "", zerolog.Nop())
	adapter := ledger.NewAdapter(ledgerClient, mapping, keys, zerolog.Nop())
	anomalies := anomaly.New(merchants, zerolog.Nop())
	alertEngine := alerts.NewEngine(alertRepo, alerts.NewPushClient("", "", zerolog.Nop()), events.NewManager(zerolog.Nop()), zerolog.Nop())
	categorizer := categorize.New(merchants, nil, zerolog.Nop())

	driver := New(links, accounts, syncLogs, adapter, anomalies, alertEngine, categorizer, NewDirDownloader(downloadDir), zerolog.Nop())
	return driver, links, accounts, alertRepo
}

func TestRunProcessesFileAndMarksDone(t *testing.T) {
	dir := t.TempDir()
	instDir := filepath.Join(dir, "chase")
	require.NoError(t, os.MkdirAll(instDir, 0o755))
	stmtPath := filepath.Join(instDir, "statement.ofx")
	require.NoError(t, os.WriteFile(stmtPath, []byte(sampleOFX), 0o644))

	driver, links, accounts := newTestDriver(t, dir)
	ctx := context.Background()

	link, err := links.Create(ctx, &domain.InstitutionLink{
		UserID: "u1", SourceKind: domain.SourceOFX, InstitutionID: "chase", InstitutionName: "Chase",
	})
	require.NoError(t, err)
	_, err = accounts.Upsert(ctx, &domain.SourceAccount{
		LinkID: link.ID, UserID: "u1", ExternalAccountID: "acc-1", Name: "Checking", Type: domain.AccountAsset, Currency: "USD",
	})
	require.NoError(t, err)

	driver.Run(ctx)

	_, err = os.Stat(stmtPath + ".done")
	assert.NoError(t, err, "processed file should be renamed with .done suffix")
	_, err = os.Stat(stmtPath)
	assert.True(t, os.IsNotExist(err), "original file should no longer exist")
}

func TestRunEscalatesAfterThreeConsecutiveDownloadFailures(t *testing.T) {
	driver, links, _, alertRepo := newTestDriverWithAlerts(t, filepath.Join(t.TempDir(), "missing-root-that-errors-on-read"))
	ctx := context.Background()

	link, err := links.Create(ctx, &domain.InstitutionLink{
		UserID: "u1", SourceKind: domain.SourceOFX, InstitutionID: "wells", InstitutionName: "Wells Fargo",
	})
	require.NoError(t, err)
	_, err = alertRepo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "sync_failure", Severity: domain.SeverityCritical, Enabled: true,
	})
	require.NoError(t, err)

	driver.downloader = failingDownloader{}

	driver.runInstitution(ctx, link)
	driver.runInstitution(ctx, link)
	driver.runInstitution(ctx, link)

	updated, err := links.GetByID(ctx, "u1", link.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LinkStatusError, updated.Status)

	history, err := alertRepo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	assert.Len(t, history, 1, "third consecutive failure should fire exactly one sync_failure alert")
}

// TestRunDoesNotRefireSyncFailureAlertOnFourthConsecutiveFailure pins the
// edge-triggered behavior of recordDownloadFailure: the alert fires once on
// the third consecutive failure and must not refire on the fourth, fifth,
// etc. while the streak continues.
func TestRunDoesNotRefireSyncFailureAlertOnFourthConsecutiveFailure(t *testing.T) {
	driver, links, _, alertRepo := newTestDriverWithAlerts(t, filepath.Join(t.TempDir(), "missing-root-that-errors-on-read"))
	ctx := context.Background()

	link, err := links.Create(ctx, &domain.InstitutionLink{
		UserID: "u1", SourceKind: domain.SourceOFX, InstitutionID: "wells", InstitutionName: "Wells Fargo",
	})
	require.NoError(t, err)
	_, err = alertRepo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "sync_failure", Severity: domain.SeverityCritical, Enabled: true,
	})
	require.NoError(t, err)

	driver.downloader = failingDownloader{}

	driver.runInstitution(ctx, link)
	driver.runInstitution(ctx, link)
	driver.runInstitution(ctx, link)
	driver.runInstitution(ctx, link)

	history, err := alertRepo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	assert.Len(t, history, 1, "fourth consecutive failure must not refire the sync_failure alert")
}

type failingDownloader struct{}

func (failingDownloader) Fetch(_ context.Context, _ string) ([]string, error) {
	return nil, assertErr
}

var assertErr = assertError("download failed")

type assertError string

func (e assertError) Error() string { return string(e) }
