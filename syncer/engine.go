// Package syncer drives connector ingestion: it owns the single-flight
// guard, the page loop, cursor persistence and failure bookkeeping, so
// connectors only know how to fetch and normalize.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/provider"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

const moduleName = "syncer"

// ErrSyncAlreadyRunning is returned when another run holds the
// single-flight guard for the source.
var ErrSyncAlreadyRunning = errors.New("sync already running for source")

const (
	eventSyncStarted     = "sync_started"
	eventSyncProgress    = "sync_progress"
	eventSyncCompleted   = "sync_completed"
	eventSyncFailed      = "sync_failed"
	eventNewTransactions = "new_transactions"
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetOrCreateSyncState(ctx context.Context, source string) (*models.SyncState, error)
	BeginSync(ctx context.Context, source string, force bool) (bool, error)
	AdvanceCursor(ctx context.Context, source string, createCursor, updateCursor *string, records int) error
	FinishSync(ctx context.Context, source string) error
	FailSync(ctx context.Context, source string, syncErr error) error
	UpsertTransactions(ctx context.Context, batch []*models.Transaction) (int, error)
}

// Events receives fire-and-forget progress notifications.
type Events interface {
	Publish(evtType, source string, payload interface{})
}

type Options struct {
	// Force takes over a stuck running state, for recovery after a
	// crash left the flag set.
	Force bool
	// FullSync ignores saved cursors and the incremental date window.
	FullSync    bool
	TriggeredBy string
}

type Result struct {
	Source         string   `json:"source"`
	RecordsSynced  int      `json:"records_synced"`
	NewRecords     int      `json:"new_records"`
	Pages          int      `json:"pages"`
	SkippedRecords int      `json:"skipped_records"`
	Errors         []string `json:"errors,omitempty"`
	ElapsedMs      int64    `json:"elapsed_ms"`
}

type progressPayload struct {
	Stream    string `json:"stream"`
	Page      int    `json:"page"`
	Processed int    `json:"processed"`
	Total     int    `json:"total,omitempty"`
}

type newRecordsPayload struct {
	Count int `json:"count"`
}

type Engine struct {
	store      Store
	events     Events
	locker     *redislock.Client
	connectors map[string]provider.Connector
}

func NewEngine(store Store, events Events, locker *redislock.Client, connectors ...provider.Connector) *Engine {
	byName := make(map[string]provider.Connector, len(connectors))
	for _, c := range connectors {
		byName[c.Source()] = c
	}
	return &Engine{store: store, events: events, locker: locker, connectors: byName}
}

// publish tolerates a nil Events so one-shot callers can skip the
// notifier, matching the reconciliation engine.
func (e *Engine) publish(evtType, source string, payload interface{}) {
	if e.events != nil {
		e.events.Publish(evtType, source, payload)
	}
}

func (e *Engine) Connector(source string) (provider.Connector, bool) {
	c, ok := e.connectors[source]
	return c, ok
}

func (e *Engine) Sources() []string {
	sources := make([]string, 0, len(e.connectors))
	for source := range e.connectors {
		sources = append(sources, source)
	}
	return sources
}

// Sync runs one incremental pass for the source. Exactly one run per
// source is admitted at a time; concurrent callers get
// ErrSyncAlreadyRunning.
func (e *Engine) Sync(ctx context.Context, source string, opts Options) (*Result, error) {
	conn, ok := e.connectors[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	state, err := e.store.GetOrCreateSyncState(ctx, source)
	if err != nil {
		return nil, err
	}

	admitted, err := e.store.BeginSync(ctx, source, opts.Force)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, ErrSyncAlreadyRunning
	}

	// The DB flag is authoritative; the redis lock is a best-effort
	// second fence across deployments sharing one database.
	if lock := e.obtainLock(ctx, source); lock != nil {
		defer lock.Release(context.Background())
	}

	e.publish(eventSyncStarted, source, map[string]string{"triggered_by": opts.TriggeredBy})

	start := time.Now()
	result := &Result{Source: source}

	filters := provider.Filters{}
	if !opts.FullSync && state.LastSuccessfulSync != nil {
		// Refetch one extra day so late status flips are not missed.
		from := state.LastSuccessfulSync.Add(-24 * time.Hour)
		filters.DateFrom = &from
	}

	var runErr error
	for _, stream := range conn.Streams() {
		if runErr = e.runStream(ctx, conn, stream, state, filters, opts.FullSync, result); runErr != nil {
			break
		}
	}

	result.ElapsedMs = time.Since(start).Milliseconds()

	if runErr != nil {
		if err := e.store.FailSync(ctx, source, runErr); err != nil {
			config.LogError(config.GetLogger(), moduleName, "Sync", "persist failure", source, err)
		}
		e.publish(eventSyncFailed, source, map[string]string{"error": utils.Truncate(runErr.Error(), models.ErrorMessageLimit)})
		return result, runErr
	}

	if err := e.store.FinishSync(ctx, source); err != nil {
		return result, err
	}

	e.publish(eventSyncCompleted, source, result)
	if result.NewRecords > 0 {
		e.publish(eventNewTransactions, source, newRecordsPayload{Count: result.NewRecords})
	}

	config.GetLogger().WithFields(logrus.Fields{
		"module":      moduleName,
		"source":      source,
		"records":     result.RecordsSynced,
		"new":         result.NewRecords,
		"pages":       result.Pages,
		"skipped":     result.SkippedRecords,
		"elapsed_ms":  result.ElapsedMs,
		"triggeredBy": opts.TriggeredBy,
	}).Info("sync completed")

	return result, nil
}

func (e *Engine) runStream(
	ctx context.Context,
	conn provider.Connector,
	stream provider.Stream,
	state *models.SyncState,
	filters provider.Filters,
	fullSync bool,
	result *Result,
) error {
	cursor := ""
	// Full and historical passes page from scratch with run-local
	// cursors; only plain incremental runs touch the saved one.
	persistent := conn.CursorPersistent() && len(conn.Streams()) == 1 && !fullSync
	if persistent && state.LastCreateCursor != nil {
		cursor = *state.LastCreateCursor
	}

	maxPages := conn.MaxPages()
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		fetched, err := stream.Fetch(ctx, cursor, filters)
		if err != nil {
			return fmt.Errorf("%s/%s page %d: %w", conn.Source(), stream.Name, page, err)
		}
		result.Pages++

		batch := make([]*models.Transaction, 0, len(fetched.Records))
		for _, raw := range fetched.Records {
			txn, err := stream.Normalize(ctx, raw)
			if err != nil {
				result.SkippedRecords++
				if len(result.Errors) < 10 {
					result.Errors = append(result.Errors, err.Error())
				}
				config.LogError(config.GetLogger(), moduleName, "runStream", "normalize record", stream.Name, err)
				continue
			}
			batch = append(batch, txn)
		}

		if len(batch) > 0 {
			inserted, err := e.store.UpsertTransactions(ctx, batch)
			if err != nil {
				return fmt.Errorf("%s/%s upsert page %d: %w", conn.Source(), stream.Name, page, err)
			}
			result.RecordsSynced += len(batch)
			result.NewRecords += inserted
		}

		// Commit the cursor after the page landed, so a crash resumes
		// from data already written.
		var persistCursor *string
		if persistent && fetched.NextCursor != "" {
			persistCursor = &fetched.NextCursor
		}
		if err := e.store.AdvanceCursor(ctx, conn.Source(), persistCursor, nil, len(batch)); err != nil {
			return err
		}

		e.publish(eventSyncProgress, conn.Source(), progressPayload{
			Stream:    stream.Name,
			Page:      page,
			Processed: result.RecordsSynced,
			Total:     fetched.Total,
		})

		if fetched.Done {
			break
		}
		cursor = fetched.NextCursor
	}
	return nil
}

// HistoricalSync backfills day by day, oldest first, so a partial
// backfill leaves a contiguous ledger prefix.
func (e *Engine) HistoricalSync(ctx context.Context, source string, days int) (*Result, error) {
	conn, ok := e.connectors[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	if days < 1 {
		days = config.InitialSyncDays()
	}

	admitted, err := e.store.BeginSync(ctx, source, false)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, ErrSyncAlreadyRunning
	}
	if lock := e.obtainLock(ctx, source); lock != nil {
		defer lock.Release(context.Background())
	}

	e.publish(eventSyncStarted, source, map[string]interface{}{"historical_days": days})

	start := time.Now()
	result := &Result{Source: source}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var runErr error
dayLoop:
	for offset := days; offset >= 0; offset-- {
		dayStart := today.AddDate(0, 0, -offset)
		dayEnd := dayStart.AddDate(0, 0, 1)
		filters := provider.Filters{DateFrom: &dayStart, DateTo: &dayEnd}

		for _, stream := range conn.Streams() {
			// Day windows always page from the start; the persisted
			// incremental cursor is left untouched.
			dayState := &models.SyncState{Source: source}
			if runErr = e.runStream(ctx, conn, stream, dayState, filters, true, result); runErr != nil {
				break dayLoop
			}
		}
	}

	result.ElapsedMs = time.Since(start).Milliseconds()

	if runErr != nil {
		if err := e.store.FailSync(ctx, source, runErr); err != nil {
			config.LogError(config.GetLogger(), moduleName, "HistoricalSync", "persist failure", source, err)
		}
		e.publish(eventSyncFailed, source, map[string]string{"error": utils.Truncate(runErr.Error(), models.ErrorMessageLimit)})
		return result, runErr
	}

	if err := e.store.FinishSync(ctx, source); err != nil {
		return result, err
	}
	e.publish(eventSyncCompleted, source, result)
	if result.NewRecords > 0 {
		e.publish(eventNewTransactions, source, newRecordsPayload{Count: result.NewRecords})
	}
	return result, nil
}

func (e *Engine) obtainLock(ctx context.Context, source string) *redislock.Lock {
	if e.locker == nil {
		return nil
	}
	lock, err := e.locker.Obtain(ctx, "recon:sync:"+source, 30*time.Minute, nil)
	if err != nil {
		if err != redislock.ErrNotObtained {
			config.LogError(config.GetLogger(), moduleName, "obtainLock", "obtain redis lock", source, err)
		}
		return nil
	}
	return lock
}
