package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// SyncState tracks per-source ingestion progress. Exactly one row per
// source; SyncStatus doubles as the single-flight guard.
type SyncState struct {
	ID                 uint       `gorm:"primary_key" json:"id"`
	Source             string     `gorm:"size:20;uniqueIndex;not null" json:"source"`
	LastCreateCursor   *string    `gorm:"size:100" json:"last_create_cursor"`
	LastUpdateCursor   *string    `gorm:"size:100" json:"last_update_cursor"`
	LastSyncAt         *time.Time `json:"last_sync_at"`
	LastSuccessfulSync *time.Time `json:"last_successful_sync"`
	SyncStatus         string     `gorm:"size:20;not null;default:idle" json:"sync_status"`
	ErrorMessage       string     `gorm:"type:text" json:"error_message"`
	RecordsSynced      int        `gorm:"not null;default:0" json:"records_synced"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Store) GetOrCreateSyncState(ctx context.Context, source string) (*SyncState, error) {
	var state SyncState
	err := s.db.WithContext(ctx).Where("source = ?", source).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	state = SyncState{Source: source, SyncStatus: SyncStatusIdle}
	if err := s.db.WithContext(ctx).Create(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// BeginSync atomically flips the state to running. Returns false when a
// run is already in flight, unless force is set, which takes over the
// row regardless (crash recovery).
func (s *Store) BeginSync(ctx context.Context, source string, force bool) (bool, error) {
	if _, err := s.GetOrCreateSyncState(ctx, source); err != nil {
		return false, err
	}

	q := s.db.WithContext(ctx).
		Model(&SyncState{}).
		Where("source = ?", source)
	if !force {
		q = q.Where("sync_status <> ?", SyncStatusRunning)
	}
	res := q.Updates(map[string]interface{}{
		"sync_status":   SyncStatusRunning,
		"error_message": "",
		"last_sync_at":  time.Now().UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AdvanceCursor commits cursor progress mid-run so a crash resumes from
// the last committed page, not from scratch. Nil cursors are left alone.
func (s *Store) AdvanceCursor(ctx context.Context, source string, createCursor, updateCursor *string, records int) error {
	updates := map[string]interface{}{
		"records_synced": gorm.Expr("records_synced + ?", records),
	}
	if createCursor != nil {
		updates["last_create_cursor"] = *createCursor
	}
	if updateCursor != nil {
		updates["last_update_cursor"] = *updateCursor
	}
	return s.db.WithContext(ctx).
		Model(&SyncState{}).
		Where("source = ?", source).
		Updates(updates).Error
}

func (s *Store) FinishSync(ctx context.Context, source string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&SyncState{}).
		Where("source = ?", source).
		Updates(map[string]interface{}{
			"sync_status":          SyncStatusIdle,
			"last_successful_sync": now,
			"error_message":        "",
		}).Error
}

func (s *Store) FailSync(ctx context.Context, source string, syncErr error) error {
	msg := ""
	if syncErr != nil {
		msg = utils.Truncate(syncErr.Error(), ErrorMessageLimit)
	}
	return s.db.WithContext(ctx).
		Model(&SyncState{}).
		Where("source = ?", source).
		Updates(map[string]interface{}{
			"sync_status":   SyncStatusFailed,
			"error_message": msg,
		}).Error
}

func (s *Store) ListSyncStates(ctx context.Context) ([]SyncState, error) {
	var states []SyncState
	err := s.db.WithContext(ctx).Order("source").Find(&states).Error
	return states, err
}
