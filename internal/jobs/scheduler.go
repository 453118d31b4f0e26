package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"sitetrack/internal/config"
	"sitetrack/internal/metrics"
)

// Scheduler runs the periodic maintenance jobs.
// Implements cartridge.BackgroundWorker.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Config
	enabled   bool
	isRunning bool

	// Serialises job executions
	processingMutex sync.Mutex
	isProcessing    bool

	cleanupJob *CleanupJob
	geoLiteJob *GeoLiteUpdaterJob

	cleanupTicker *time.Ticker
	geoLiteTicker *time.Ticker
	wg            sync.WaitGroup
}

// NewScheduler wires the retention and GeoLite jobs.
func NewScheduler(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		enabled:    true,
		cleanupJob: NewCleanupJob(dbManager, logger, cfg, metrics.Default()),
		geoLiteJob: NewGeoLiteUpdaterJob(logger, cfg),
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func(ctx context.Context) error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.cleanupTicker = s.startJob("heartbeat_cleanup", interval, s.cleanupJob.Run)
	s.geoLiteTicker = s.startJob("geolite_updater", 24*time.Hour, s.geoLiteJob.Run)

	s.logger.Info("Background jobs started", slog.Duration("cleanup_interval", interval))
	return nil
}

func (s *Scheduler) startJob(name string, interval time.Duration, run func(ctx context.Context) error) *time.Ticker {
	ticker := time.NewTicker(interval)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.executeJobSafely(name, run)

		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(name, run)
			case <-s.ctx.Done():
				s.logger.Info("Background job stopped", slog.String("job", name))
				return
			}
		}
	}()
	return ticker
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	if s.geoLiteTicker != nil {
		s.geoLiteTicker.Stop()
	}

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
