// Package ofxsync implements the OFX download-and-import driver (§4.10):
// per institution, download pending statement files, parse and bridge them
// to the ledger, and track consecutive download failures in an in-memory
// counter that escalates to a sync_failure alert on the third miss.
package ofxsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/anomaly"
	"github.com/aristath/finhub/internal/categorize"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/ledger"
	"github.com/aristath/finhub/internal/parsers"
)

// failureThreshold is the consecutive-failure count that escalates to a
// sync_failure alert (§4.10 step 2).
const failureThreshold = 3

// Downloader fetches pending statement files for an institution. The
// default implementation scans a per-institution subdirectory of the
// configured download directory for files without a .done suffix.
type Downloader interface {
	Fetch(ctx context.Context, institution string) ([]string, error)
}

// DirDownloader is the filesystem-backed Downloader: files live under
// <downloadDir>/<institution>/*.ofx|*.qfx, and successfully processed files
// are renamed with a .done suffix by the Driver (§4.10 step 3).
type DirDownloader struct {
	downloadDir string
}

// NewDirDownloader builds a DirDownloader rooted at downloadDir.
func NewDirDownloader(downloadDir string) *DirDownloader {
	return &DirDownloader{downloadDir: downloadDir}
}

// Fetch lists unprocessed .ofx/.qfx files for institution.
func (d *DirDownloader) Fetch(_ context.Context, institution string) ([]string, error) {
	dir := filepath.Join(d.downloadDir, institution)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read download dir %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".ofx" && ext != ".qfx" {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// Driver runs the per-institution OFX import described in §4.10.
type Driver struct {
	links      *repositories.InstitutionLinkRepository
	accounts   *repositories.SourceAccountRepository
	syncLogs   *repositories.SyncLogRepository
	ledger     *ledger.Adapter
	anomalies  *anomaly.Detector
	alerts     *alerts.Engine
	categorizer *categorize.Categorizer
	downloader Downloader
	log        zerolog.Logger

	mu           sync.Mutex
	failureCount map[string]int
}

// New builds an OFX sync Driver.
func New(
	links *repositories.InstitutionLinkRepository,
	accounts *repositories.SourceAccountRepository,
	syncLogs *repositories.SyncLogRepository,
	ledgerAdapter *ledger.Adapter,
	anomalies *anomaly.Detector,
	alertEngine *alerts.Engine,
	categorizer *categorize.Categorizer,
	downloader Downloader,
	log zerolog.Logger,
) *Driver {
	return &Driver{
		links:        links,
		accounts:     accounts,
		syncLogs:     syncLogs,
		ledger:       ledgerAdapter,
		anomalies:    anomalies,
		alerts:       alertEngine,
		categorizer:  categorizer,
		downloader:   downloader,
		log:          log.With().Str("component", "ofx_sync").Logger(),
		failureCount: make(map[string]int),
	}
}

// Run processes every OFX-sourced InstitutionLink. Each institution's
// failure is independent and never aborts the others (§4.10, §7).
func (d *Driver) Run(ctx context.Context) {
	links, err := d.links.ListBySourceKind(ctx, domain.SourceOFX)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to list ofx links")
		return
	}
	for _, link := range links {
		d.runInstitution(ctx, link)
	}
}

func (d *Driver) runInstitution(ctx context.Context, link *domain.InstitutionLink) {
	log := d.log.With().Str("institution", link.InstitutionID).Logger()
	userID := link.UserID
	logID, err := d.syncLogs.Start(ctx, &userID, link.InstitutionID, "ofx")
	if err != nil {
		log.Error().Err(err).Msg("failed to open sync log")
		return
	}

	paths, err := d.downloader.Fetch(ctx, link.InstitutionID)
	if err != nil {
		d.recordDownloadFailure(ctx, link, log)
		_ = d.syncLogs.Complete(ctx, logID, domain.SyncError, 0, err.Error())
		return
	}
	if len(paths) == 0 {
		_ = d.syncLogs.Complete(ctx, logID, domain.SyncSuccess, 0, "")
		return
	}

	d.resetFailures(link.InstitutionID)

	sourceAccounts, err := d.accounts.ListByLink(ctx, link.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list source accounts")
		_ = d.syncLogs.Complete(ctx, logID, domain.SyncError, 0, err.Error())
		return
	}
	byExternalID := map[string]*domain.SourceAccount{}
	for _, a := range sourceAccounts {
		byExternalID[a.ExternalAccountID] = a
	}

	var totalAdded int
	for _, path := range paths {
		added := d.processFile(ctx, link, path, byExternalID, log)
		totalAdded += added
	}

	_ = d.syncLogs.Complete(ctx, logID, domain.SyncSuccess, totalAdded, "")
}

// processFile parses one statement file, bridges it to the ledger, runs the
// anomaly check over the slice that was actually added, and renames the
// file with a .done suffix on success (§4.10 step 3).
func (d *Driver) processFile(
	ctx context.Context,
	link *domain.InstitutionLink,
	path string,
	byExternalID map[string]*domain.SourceAccount,
	log zerolog.Logger,
) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to read statement file")
		return 0
	}

	txns, meta := parsers.ParseOFX(string(raw))
	acct, ok := byExternalID[meta.AccountID]
	if !ok {
		log.Warn().Str("account_id", meta.AccountID).Msg("no local source account for statement, skipping file")
		return 0
	}

	ledgerAccountID, err := d.ledger.UpsertAccount(ctx, link.InstitutionID, acct.ExternalAccountID, acct.Name, string(acct.Type), acct.Currency, &acct.CurrentBalance)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve ledger account")
		return 0
	}

	result := d.ledger.UpsertTransactions(ctx, link.InstitutionID, ledgerAccountID, txns)

	added := txns
	if result.Added < len(txns) {
		added = txns[:result.Added]
	}
	if d.categorizer != nil && len(added) > 0 {
		inputs := make([]categorize.Input, 0, len(added))
		for _, t := range added {
			inputs = append(inputs, categorize.Input{ID: t.ID, Description: t.Name})
		}
		d.categorizer.Categorize(ctx, inputs)
	}

	anomalyTxns := make([]anomaly.Txn, 0, len(added))
	for _, t := range added {
		anomalyTxns = append(anomalyTxns, anomaly.Txn{Merchant: t.Name, Amount: t.Amount, Date: t.Date})
	}
	findings := d.anomalies.Check(ctx, anomalyTxns)
	for _, f := range findings {
		if err := d.alerts.Evaluate(ctx, events.Event{
			Type:        events.Anomaly,
			UserID:      link.UserID,
			Institution: link.InstitutionID,
			Description: f.Message,
			Amount:      &f.Amount,
		}); err != nil {
			log.Error().Err(err).Msg("failed to evaluate anomaly alert")
		}
	}

	if err := os.Rename(path, path+".done"); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to mark statement file done")
	}

	return result.Added
}

func (d *Driver) recordDownloadFailure(ctx context.Context, link *domain.InstitutionLink, log zerolog.Logger) {
	d.mu.Lock()
	d.failureCount[link.InstitutionID]++
	count := d.failureCount[link.InstitutionID]
	d.mu.Unlock()

	log.Warn().Int("failure_count", count).Msg("ofx download failed")
	if count != failureThreshold {
		return
	}

	if err := d.alerts.Evaluate(ctx, events.Event{
		Type:        events.SyncFailure,
		UserID:      link.UserID,
		Institution: link.InstitutionID,
		Description: fmt.Sprintf("OFX download for %s has failed %d times in a row", link.InstitutionID, count),
	}); err != nil {
		log.Error().Err(err).Msg("failed to evaluate sync failure alert")
	}
	_ = d.links.UpdateStatus(ctx, link.ID, domain.LinkStatusError, "download_failed", "repeated ofx download failure", time.Now().UTC())
}

func (d *Driver) resetFailures(institution string) {
	d.mu.Lock()
	d.failureCount[institution] = 0
	d.mu.Unlock()
}
