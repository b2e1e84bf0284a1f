package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/aggregator"
	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/anomaly"
	"github.com/aristath/finhub/internal/backup"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/forecast"
	"github.com/aristath/finhub/internal/insights"
	"github.com/aristath/finhub/internal/networth"
	"github.com/aristath/finhub/internal/ofxsync"
	"github.com/aristath/finhub/internal/subscriptions"
	"github.com/aristath/finhub/internal/valuation"
)

// forEachUser runs fn once per registered user id. With no users configured
// (single-tenant deployments seeded before multi-tenancy existed) fn runs
// exactly once with an empty user id, matching the legacy single-tenant
// fallback from §4.9. Individual user failures are logged and never abort
// the remaining users.
func forEachUser(ctx context.Context, users *repositories.UserRepository, log zerolog.Logger, jobName string, fn func(ctx context.Context, userID string)) error {
	ids, err := users.ListIDs(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fn(ctx, "")
		return nil
	}

	for _, id := range ids {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("job", jobName).Str("user_id", id).Msg("job panicked for user")
				}
			}()
			fn(ctx, id)
		}()
	}
	return nil
}

// refreshBalancesJob implements §4.9's "*/15 * * * *" row: ledger scan ->
// low_balance events.
type refreshBalancesJob struct {
	users   *repositories.UserRepository
	watcher *alerts.BalanceWatcher
	log     zerolog.Logger
}

func NewRefreshBalancesJob(users *repositories.UserRepository, watcher *alerts.BalanceWatcher, log zerolog.Logger) Job {
	return &refreshBalancesJob{users: users, watcher: watcher, log: log.With().Str("job", "refreshBalances").Logger()}
}

func (j *refreshBalancesJob) Name() string { return "refreshBalances" }

func (j *refreshBalancesJob) Run() error {
	ctx := context.Background()
	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		j.watcher.RunForUser(ctx, userID)
	})
}

// syncOFXJob implements §4.9's "0 6,12,18 * * *" row: OFX directory scan
// followed by a net-worth snapshot for every affected user.
type syncOFXJob struct {
	users   *repositories.UserRepository
	driver  *ofxsync.Driver
	snap    *networth.Snapshotter
	log     zerolog.Logger
}

func NewSyncOFXJob(users *repositories.UserRepository, driver *ofxsync.Driver, snap *networth.Snapshotter, log zerolog.Logger) Job {
	return &syncOFXJob{users: users, driver: driver, snap: snap, log: log.With().Str("job", "syncOFX").Logger()}
}

func (j *syncOFXJob) Name() string { return "syncOFX" }

func (j *syncOFXJob) Run() error {
	ctx := context.Background()
	j.driver.Run(ctx)
	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		j.snap.RunForUser(ctx, userID)
	})
}

// aggregatorScrapeJob implements §4.9's "0 7 * * *" row: a full aggregator
// delta sync across every non-login_required link, followed by a
// per-user net-worth snapshot.
type aggregatorScrapeJob struct {
	users   *repositories.UserRepository
	links   *repositories.InstitutionLinkRepository
	service *aggregator.Service
	snap    *networth.Snapshotter
	log     zerolog.Logger
}

func NewAggregatorScrapeJob(users *repositories.UserRepository, links *repositories.InstitutionLinkRepository, service *aggregator.Service, snap *networth.Snapshotter, log zerolog.Logger) Job {
	return &aggregatorScrapeJob{users: users, links: links, service: service, snap: snap, log: log.With().Str("job", "aggregatorScrape").Logger()}
}

func (j *aggregatorScrapeJob) Name() string { return "aggregatorScrape" }

func (j *aggregatorScrapeJob) Run() error {
	ctx := context.Background()
	syncAllLinks(ctx, j.links, j.service, j.log)
	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		j.snap.RunForUser(ctx, userID)
	})
}

// aggregatorDeltaSyncJob implements §4.9's "0 */4 * * *" row: a delta sync
// of every non-login_required aggregator link, with no snapshot step.
type aggregatorDeltaSyncJob struct {
	links   *repositories.InstitutionLinkRepository
	service *aggregator.Service
	log     zerolog.Logger
}

func NewAggregatorDeltaSyncJob(links *repositories.InstitutionLinkRepository, service *aggregator.Service, log zerolog.Logger) Job {
	return &aggregatorDeltaSyncJob{links: links, service: service, log: log.With().Str("job", "aggregatorDeltaSync").Logger()}
}

func (j *aggregatorDeltaSyncJob) Name() string { return "aggregatorDeltaSync" }

func (j *aggregatorDeltaSyncJob) Run() error {
	syncAllLinks(context.Background(), j.links, j.service, j.log)
	return nil
}

func syncAllLinks(ctx context.Context, links *repositories.InstitutionLinkRepository, service *aggregator.Service, log zerolog.Logger) {
	list, err := links.ListBySourceKind(ctx, domain.SourceAggregator)
	if err != nil {
		log.Error().Err(err).Msg("failed to list aggregator links")
		return
	}
	for _, link := range list {
		if link.Status == domain.LinkStatusLoginRequired {
			continue
		}
		if err := service.SyncLink(ctx, link); err != nil {
			log.Error().Err(err).Str("link_id", link.ID).Msg("aggregator sync failed")
		}
	}
}

// aggregatorBalanceRefreshJob implements §4.9's "*/30 * * * *" row: an
// account-balance refresh for every status-good aggregator link.
type aggregatorBalanceRefreshJob struct {
	links   *repositories.InstitutionLinkRepository
	service *aggregator.Service
	log     zerolog.Logger
}

func NewAggregatorBalanceRefreshJob(links *repositories.InstitutionLinkRepository, service *aggregator.Service, log zerolog.Logger) Job {
	return &aggregatorBalanceRefreshJob{links: links, service: service, log: log.With().Str("job", "aggregatorBalanceRefresh").Logger()}
}

func (j *aggregatorBalanceRefreshJob) Name() string { return "aggregatorBalanceRefresh" }

func (j *aggregatorBalanceRefreshJob) Run() error {
	ctx := context.Background()
	list, err := j.links.ListBySourceKind(ctx, domain.SourceAggregator)
	if err != nil {
		j.log.Error().Err(err).Msg("failed to list aggregator links")
		return nil
	}
	for _, link := range list {
		if link.Status != domain.LinkStatusGood {
			continue
		}
		if err := j.service.RefreshBalances(ctx, link); err != nil {
			j.log.Error().Err(err).Str("link_id", link.ID).Msg("aggregator balance refresh failed")
		}
	}
	return nil
}

// snapshotJob implements §4.9's "0 0 * * *" row: the daily net-worth
// snapshot, independent of any sync activity.
type snapshotJob struct {
	users *repositories.UserRepository
	snap  *networth.Snapshotter
	log   zerolog.Logger
}

func NewSnapshotJob(users *repositories.UserRepository, snap *networth.Snapshotter, log zerolog.Logger) Job {
	return &snapshotJob{users: users, snap: snap, log: log.With().Str("job", "snapshot").Logger()}
}

func (j *snapshotJob) Name() string { return "snapshot" }

func (j *snapshotJob) Run() error {
	ctx := context.Background()
	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		j.snap.RunForUser(ctx, userID)
	})
}

// monthlyInsightsJob implements §4.9's "0 1 1 * *" row: insight generation
// for the month that just closed.
type monthlyInsightsJob struct {
	users     *repositories.UserRepository
	generator *insights.Generator
	log       zerolog.Logger
}

func NewMonthlyInsightsJob(users *repositories.UserRepository, generator *insights.Generator, log zerolog.Logger) Job {
	return &monthlyInsightsJob{users: users, generator: generator, log: log.With().Str("job", "monthlyInsights").Logger()}
}

func (j *monthlyInsightsJob) Name() string { return "monthlyInsights" }

func (j *monthlyInsightsJob) Run() error {
	ctx := context.Background()
	prevMonth := time.Now().UTC().AddDate(0, -1, 0)
	year, month := prevMonth.Year(), int(prevMonth.Month())

	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		if _, err := j.generator.GenerateForMonth(ctx, userID, year, month); err != nil {
			j.log.Error().Err(err).Str("user_id", userID).Msg("failed to generate monthly insights")
		}
	})
}

// forecastJob implements §4.9's "0 3 * * 0" row: a 12-month and a 60-month
// forecast for every user, weekly.
type forecastJob struct {
	users      *repositories.UserRepository
	forecaster *forecast.Forecaster
	log        zerolog.Logger
}

func NewForecastJob(users *repositories.UserRepository, forecaster *forecast.Forecaster, log zerolog.Logger) Job {
	return &forecastJob{users: users, forecaster: forecaster, log: log.With().Str("job", "forecast").Logger()}
}

func (j *forecastJob) Name() string { return "forecast" }

func (j *forecastJob) Run() error {
	ctx := context.Background()
	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		for _, horizon := range []int{12, 60} {
			if _, err := j.forecaster.Run(ctx, userID, forecast.Input{HorizonMonths: horizon}); err != nil {
				j.log.Error().Err(err).Str("user_id", userID).Int("horizon", horizon).Msg("forecast run failed")
			}
		}
	})
}

// propertyValuationsJob implements §4.9's "0 4 * * 0" row: weekly
// real_estate asset revaluation.
type propertyValuationsJob struct {
	users     *repositories.UserRepository
	refresher *valuation.Refresher
	log       zerolog.Logger
}

func NewPropertyValuationsJob(users *repositories.UserRepository, refresher *valuation.Refresher, log zerolog.Logger) Job {
	return &propertyValuationsJob{users: users, refresher: refresher, log: log.With().Str("job", "propertyValuations").Logger()}
}

func (j *propertyValuationsJob) Name() string { return "propertyValuations" }

func (j *propertyValuationsJob) Run() error {
	ctx := context.Background()
	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		j.refresher.RunForUser(ctx, userID)
	})
}

// subscriptionDetectionJob implements §4.9's "0 8 * * 1" row: weekly
// recurring-charge detection.
type subscriptionDetectionJob struct {
	users    *repositories.UserRepository
	detector *subscriptions.Detector
	log      zerolog.Logger
}

func NewSubscriptionDetectionJob(users *repositories.UserRepository, detector *subscriptions.Detector, log zerolog.Logger) Job {
	return &subscriptionDetectionJob{users: users, detector: detector, log: log.With().Str("job", "subscriptionDetection").Logger()}
}

func (j *subscriptionDetectionJob) Name() string { return "subscriptionDetection" }

func (j *subscriptionDetectionJob) Run() error {
	ctx := context.Background()
	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		j.detector.Run(ctx, userID)
	})
}

// anomalyCheckJob implements §4.9's "0 9 * * *" row: a daily re-check of
// each user's transactions synced over the previous day, catching
// anomalies in aggregator-sourced data that never passed through the OFX
// driver's per-file check.
type anomalyCheckJob struct {
	users   *repositories.UserRepository
	recent  *repositories.AggregatorTransactionRepository
	detector *anomaly.Detector
	alerts  *alerts.Engine
	log     zerolog.Logger
}

func NewAnomalyCheckJob(users *repositories.UserRepository, recent *repositories.AggregatorTransactionRepository, detector *anomaly.Detector, alertEngine *alerts.Engine, log zerolog.Logger) Job {
	return &anomalyCheckJob{users: users, recent: recent, detector: detector, alerts: alertEngine, log: log.With().Str("job", "anomalyCheck").Logger()}
}

func (j *anomalyCheckJob) Name() string { return "anomalyCheck" }

func (j *anomalyCheckJob) Run() error {
	ctx := context.Background()
	since := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	return forEachUser(ctx, j.users, j.log, j.Name(), func(ctx context.Context, userID string) {
		if userID == "" {
			return
		}
		rows, err := j.recent.RecentForUser(ctx, userID, since)
		if err != nil {
			j.log.Error().Err(err).Str("user_id", userID).Msg("failed to list recent transactions for anomaly check")
			return
		}

		txns := make([]anomaly.Txn, 0, len(rows))
		for _, r := range rows {
			txns = append(txns, anomaly.Txn{Merchant: r.Merchant, Amount: r.Amount, Date: r.Date})
		}

		for _, finding := range j.detector.Check(ctx, txns) {
			amount := finding.Amount
			ev := events.Event{
				Type:        events.Anomaly,
				UserID:      userID,
				Description: finding.Message,
				Amount:      &amount,
			}
			if err := j.alerts.Evaluate(ctx, ev); err != nil {
				j.log.Error().Err(err).Str("user_id", userID).Str("merchant", finding.Merchant).Msg("failed to evaluate anomaly alert")
			}
		}
	})
}

// backupJob implements §7's nightly encrypted off-site backup of the sqlite
// file. It runs independent of every user-scoped job above; a failed backup
// never blocks the rest of the schedule.
type backupJob struct {
	service *backup.Service
	log     zerolog.Logger
}

func NewBackupJob(service *backup.Service, log zerolog.Logger) Job {
	return &backupJob{service: service, log: log.With().Str("job", "backup").Logger()}
}

func (j *backupJob) Name() string { return "backup" }

func (j *backupJob) Run() error {
	return j.service.Run(context.Background())
}
