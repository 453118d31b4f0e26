package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"sitetrack/internal/config"
	"sitetrack/internal/events"
	"sitetrack/internal/metrics"
)

const cleanupBatchSize = 1000

// CleanupJob removes heartbeat events past the retention period. Heartbeats
// only feed presence, so nothing downstream needs them once they are stale.
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config, m *metrics.Metrics) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		metrics:   m,
		now:       time.Now,
	}
}

// Run deletes heartbeats older than the configured retention.
func (j *CleanupJob) Run(ctx context.Context) error {
	retention := j.cfg.HeartbeatRetention()
	cutoff := j.now().UTC().Add(-retention)

	j.logger.Debug("Starting heartbeat cleanup",
		slog.Duration("retention", retention),
		slog.Time("cutoff", cutoff))

	deleted, err := events.PurgeHeartbeats(ctx, j.dbManager.GetConnection(), j.logger, cutoff, cleanupBatchSize)
	j.metrics.AddHeartbeatsPurged(deleted)
	if err != nil {
		j.logger.Error("Failed to purge heartbeats",
			slog.Any("error", err),
			slog.Int64("deleted_so_far", deleted))
		return err
	}

	if deleted > 0 {
		j.logger.Info("Cleaned up old heartbeats",
			slog.Int64("deleted_count", deleted),
			slog.Int("retention_days", j.cfg.HeartbeatRetentionDays))
	}
	return nil
}
