package analytics

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"sitetrack/internal/events"
	"sitetrack/internal/metrics"
	"sitetrack/internal/pkg/async"
	"sitetrack/internal/sessions"
	"sitetrack/internal/timeframe"
)

// Report is the full analytics answer for one website and range.
type Report struct {
	Pageviews []events.Pageview  `json:"pageviews"`
	Events    []events.Event     `json:"events"`
	Sessions  []sessions.Session `json:"sessions"`
	MetricsSummary
	Breakdowns Breakdowns `json:"breakdowns"`
}

// Service loads matched records and builds reports from them.
type Service struct {
	db      *gorm.DB
	logger  *slog.Logger
	pool    *async.Pool
	metrics *metrics.Metrics
}

// NewService creates a Service. m may be nil.
func NewService(db *gorm.DB, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		db:      db,
		logger:  logger,
		pool:    async.NewPool(3),
		metrics: m,
	}
}

type recordSet struct {
	pageviews []events.Pageview
	events    []events.Event
	sessions  []sessions.Session
}

// load fetches pageviews, events and sessions concurrently. Any failure
// fails the whole load.
func (s *Service) load(ctx context.Context, websiteID string, r timeframe.Range) (*recordSet, error) {
	tasks := []async.Task{
		{
			Name: "pageviews",
			Execute: func(ctx context.Context) (interface{}, error) {
				return events.ListPageviews(ctx, s.db, websiteID, r)
			},
		},
		{
			Name: "events",
			Execute: func(ctx context.Context) (interface{}, error) {
				return events.ListEvents(ctx, s.db, websiteID, r)
			},
		},
		{
			Name: "sessions",
			Execute: func(ctx context.Context) (interface{}, error) {
				return sessions.List(ctx, s.db, websiteID, r)
			},
		},
	}

	results := s.pool.Execute(ctx, tasks)
	if err := async.FirstError(results); err != nil {
		s.logger.Error("Failed to load analytics records",
			slog.String("website_id", websiteID),
			slog.Any("error", err))
		return nil, err
	}

	return &recordSet{
		pageviews: results["pageviews"].Data.([]events.Pageview),
		events:    results["events"].Data.([]events.Event),
		sessions:  results["sessions"].Data.([]sessions.Session),
	}, nil
}

// ComputeMetrics returns the headline numbers for a website and range.
func (s *Service) ComputeMetrics(ctx context.Context, websiteID string, r timeframe.Range) (MetricsSummary, error) {
	set, err := s.load(ctx, websiteID, r)
	if err != nil {
		return MetricsSummary{}, err
	}
	return Summarize(set.pageviews, set.sessions, set.events), nil
}

// BuildReport returns raw records, metrics and breakdowns for a website and range.
func (s *Service) BuildReport(ctx context.Context, websiteID string, r timeframe.Range) (*Report, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveAnalytics(time.Since(started).Seconds())
	}()

	set, err := s.load(ctx, websiteID, r)
	if err != nil {
		return nil, err
	}

	return &Report{
		Pageviews:      set.pageviews,
		Events:         set.events,
		Sessions:       set.sessions,
		MetricsSummary: Summarize(set.pageviews, set.sessions, set.events),
		Breakdowns:     Breakdown(set.pageviews, DefaultLimit),
	}, nil
}
