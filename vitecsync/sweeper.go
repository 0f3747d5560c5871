package vitecsync

import (
	"context"
	"time"

	"github.com/proaktivadmin/dokumenthub_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sweeper periodically flips overdue pending sessions to expired. Reads
// already expire lazily, so the sweeper only keeps the table tidy for
// sessions nobody looks at again; it is safe to run on every instance
// because the guarded update makes the transition race-free.
type Sweeper struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Clock  Clock

	PollInterval time.Duration
	BatchSize    int
}

func NewSweeper(db *gorm.DB, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		DB:           db,
		Logger:       logger,
		Clock:        SystemClock{},
		PollInterval: 5 * time.Minute,
		BatchSize:    200,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.PollInterval):
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if s.DB == nil {
		return
	}
	now := s.Clock.Now()

	var ids []string
	if err := s.DB.WithContext(ctx).
		Model(&models.SyncSession{}).
		Where("status = ? AND expires_at < ?", models.SyncSessionStatusPending, now).
		Order("expires_at").
		Limit(s.BatchSize).
		Pluck("id", &ids).Error; err != nil {
		if s.Logger != nil {
			s.Logger.Warn("session sweep query failed: " + err.Error())
		}
		return
	}
	if len(ids) == 0 {
		return
	}

	result := s.DB.WithContext(ctx).
		Model(&models.SyncSession{}).
		Where("id IN ? AND status = ?", ids, models.SyncSessionStatusPending).
		Updates(map[string]interface{}{
			"status":       models.SyncSessionStatusExpired,
			"finalized_at": now,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		if s.Logger != nil {
			s.Logger.Warn("session sweep update failed: " + result.Error.Error())
		}
		return
	}
	if s.Logger != nil && result.RowsAffected > 0 {
		s.Logger.WithFields(logrus.Fields{
			"expired": result.RowsAffected,
		}).Info("expired overdue sync sessions")
	}
}
