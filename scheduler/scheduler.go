// Package scheduler owns the background cadence: periodic incremental
// syncs per source, one reconciliation pass per day, and the one-off
// historical bootstrap when the ledger is empty.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/recon"
	"bitbucket.org/mmdatafocus/recon_backend/syncer"
)

const moduleName = "scheduler"

type Store interface {
	CountTransactions(ctx context.Context) (int64, error)
}

type Scheduler struct {
	store  Store
	engine *syncer.Engine
	recon  *recon.Engine
	wg     sync.WaitGroup
}

func New(store Store, engine *syncer.Engine, reconEngine *recon.Engine) *Scheduler {
	return &Scheduler{store: store, engine: engine, recon: reconEngine}
}

// Start launches all background loops. They stop when ctx is
// cancelled; Wait blocks until they have drained.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.bootstrap(ctx)
	}()

	if _, ok := s.engine.Connector(models.SourceVima); ok {
		s.startSyncLoop(ctx, models.SourceVima, config.VimaSyncInterval())
	}
	if _, ok := s.engine.Connector(models.SourcePayShack); ok {
		s.startSyncLoop(ctx, models.SourcePayShack, config.PayShackSyncInterval())
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reconLoop(ctx)
	}()
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// bootstrap backfills history once when the ledger is empty, so a
// fresh deployment reconciles past days instead of starting blind.
func (s *Scheduler) bootstrap(ctx context.Context) {
	count, err := s.store.CountTransactions(ctx)
	if err != nil {
		config.LogError(config.GetLogger(), moduleName, "bootstrap", "count transactions", nil, err)
		return
	}
	if count > 0 {
		return
	}

	days := config.InitialSyncDays()
	config.GetLogger().WithFields(logrus.Fields{
		"module": moduleName,
		"days":   days,
	}).Info("empty ledger, starting historical bootstrap")

	for _, source := range s.engine.Sources() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.engine.HistoricalSync(ctx, source, days); err != nil && err != syncer.ErrSyncAlreadyRunning {
			config.LogError(config.GetLogger(), moduleName, "bootstrap", "historical sync", source, err)
		}
	}
}

func (s *Scheduler) startSyncLoop(ctx context.Context, source string, interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := s.engine.Sync(ctx, source, syncer.Options{TriggeredBy: models.SyncTriggeredScheduler})
				if err != nil && err != syncer.ErrSyncAlreadyRunning {
					config.LogError(config.GetLogger(), moduleName, "startSyncLoop", "scheduled sync", source, err)
				}
			}
		}
	}()
}

// reconLoop reconciles the previous UTC day once per day at the
// configured hour. Skips dates that already completed, so restarts do
// not double-run.
func (s *Scheduler) reconLoop(ctx context.Context) {
	for {
		next := nextReconTime(time.Now().UTC(), config.ReconciliationHourUTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		day := time.Now().UTC().AddDate(0, 0, -1)
		if _, err := s.recon.RunForDate(ctx, day, false); err != nil {
			config.LogError(config.GetLogger(), moduleName, "reconLoop", "daily reconciliation", day.Format("2006-01-02"), err)
		}
	}
}

func nextReconTime(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
