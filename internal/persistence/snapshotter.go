package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const engineSnapshotName = "engine"

// SnapshotRecord stores the serialized messaging state.
type SnapshotRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:64;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName exposes the table backing engine snapshots.
func (SnapshotRecord) TableName() string {
	return "engine_snapshots"
}

// Engine is the slice of the messaging engine the snapshotter needs.
type Engine interface {
	Snapshot() messaging.Snapshot
	Restore(messaging.Snapshot) error
	OnMutation(func(messaging.MutationEvent))
}

// SnapshotterConfig describes the snapshotter's collaborators. When Scheduler
// and Schedule are set, dirty state is flushed on that cron schedule.
type SnapshotterConfig struct {
	Database  *gorm.DB
	Engine    Engine
	Scheduler *messaging.Scheduler
	Schedule  string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Snapshotter persists engine state after mutations.
type Snapshotter struct {
	db      *gorm.DB
	engine  Engine
	clock   func() time.Time
	logger  *zap.Logger
	dirty   atomic.Bool
	flushMu sync.Mutex
}

// NewSnapshotter subscribes to engine mutations and registers the flush job.
func NewSnapshotter(cfg SnapshotterConfig) (*Snapshotter, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("persistence: database connection required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("persistence: engine required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	snapshotter := &Snapshotter{
		db:     cfg.Database,
		engine: cfg.Engine,
		clock:  clock,
		logger: logger,
	}
	cfg.Engine.OnMutation(func(messaging.MutationEvent) {
		snapshotter.dirty.Store(true)
	})
	if cfg.Scheduler != nil && cfg.Schedule != "" {
		err := cfg.Scheduler.Every(cfg.Schedule, "persistence-flush", func() {
			if err := snapshotter.FlushIfDirty(context.Background()); err != nil {
				snapshotter.logger.Error("snapshot flush failed", zap.Error(err))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("persistence: invalid flush schedule: %w", err)
		}
	}
	return snapshotter, nil
}

// Dirty reports whether mutations happened since the last flush.
func (s *Snapshotter) Dirty() bool {
	return s.dirty.Load()
}

// FlushIfDirty writes a snapshot only when state changed.
func (s *Snapshotter) FlushIfDirty(ctx context.Context) error {
	if !s.dirty.Load() {
		return nil
	}
	return s.Flush(ctx)
}

// Flush writes the current state unconditionally.
func (s *Snapshotter) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.dirty.Store(false)
	snapshot := s.engine.Snapshot()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		s.dirty.Store(true)
		return err
	}
	record := SnapshotRecord{
		Name:             engineSnapshotName,
		PayloadJSON:      string(payload),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).
		Error
	if err != nil {
		s.dirty.Store(true)
		return err
	}
	s.logger.Debug("snapshot flushed",
		zap.Int("conversations", len(snapshot.Conversations)),
		zap.Int("notifications", len(snapshot.Notifications)))
	return nil
}

// Load restores the stored snapshot. It reports false when nothing was stored.
func (s *Snapshotter) Load(ctx context.Context) (bool, error) {
	var record SnapshotRecord
	err := s.db.WithContext(ctx).Where("name = ?", engineSnapshotName).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var snapshot messaging.Snapshot
	if err := json.Unmarshal([]byte(record.PayloadJSON), &snapshot); err != nil {
		return false, fmt.Errorf("persistence: decode snapshot: %w", err)
	}
	if err := s.engine.Restore(snapshot); err != nil {
		return false, err
	}
	s.dirty.Store(false)
	s.logger.Info("snapshot restored",
		zap.Int("conversations", len(snapshot.Conversations)),
		zap.Int("notifications", len(snapshot.Notifications)),
		zap.Int64("saved_at", record.UpdatedAtSeconds))
	return true, nil
}
