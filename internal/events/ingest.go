package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"sitetrack/internal/metrics"
	"sitetrack/internal/models"
	"sitetrack/internal/pkg/geoip"
	"sitetrack/internal/pkg/user_agent"
	"sitetrack/internal/sessions"
	"sitetrack/internal/visitors"
)

// PageviewSignal is the payload of a pageview as sent by the tracker.
type PageviewSignal struct {
	WebsiteID    string  `json:"website_id" validate:"required,max=128"`
	SessionID    string  `json:"session_id" validate:"max=128"`
	VisitorID    string  `json:"visitor_id" validate:"max=128"`
	URL          string  `json:"url" validate:"required,max=2048"`
	Referrer     *string `json:"referrer" validate:"omitempty,max=2048"`
	IsNewVisitor bool    `json:"is_new_visitor"`

	UserAgent        *string `json:"user_agent" validate:"omitempty,max=1024"`
	ScreenResolution *string `json:"screen_resolution" validate:"omitempty,max=32"`
	Language         *string `json:"language" validate:"omitempty,max=64"`
	DeviceType       *string `json:"device_type" validate:"omitempty,max=32"`
	BrowserName      *string `json:"browser_name" validate:"omitempty,max=64"`
	BrowserVersion   *string `json:"browser_version" validate:"omitempty,max=64"`
	OSName           *string `json:"os_name" validate:"omitempty,max=64"`
	OSVersion        *string `json:"os_version" validate:"omitempty,max=64"`
	IsMobile         *bool   `json:"is_mobile"`
	Timezone         *string `json:"timezone" validate:"omitempty,max=64"`

	UTMSource   *string `json:"utm_source" validate:"omitempty,max=255"`
	UTMMedium   *string `json:"utm_medium" validate:"omitempty,max=255"`
	UTMCampaign *string `json:"utm_campaign" validate:"omitempty,max=255"`
	UTMTerm     *string `json:"utm_term" validate:"omitempty,max=255"`
	UTMContent  *string `json:"utm_content" validate:"omitempty,max=255"`

	PageLoadTime *float64 `json:"page_load_time" validate:"omitempty,gte=0"`
	TTFB         *float64 `json:"ttfb" validate:"omitempty,gte=0"`
	FCP          *float64 `json:"fcp" validate:"omitempty,gte=0"`
	LCP          *float64 `json:"lcp" validate:"omitempty,gte=0"`

	Timestamp *time.Time `json:"timestamp"`

	// Filled from the HTTP request, never from the body.
	ClientIP         string `json:"-"`
	RequestUserAgent string `json:"-"`
}

// EventSignal is the payload of a named event as sent by the tracker.
type EventSignal struct {
	WebsiteID string          `json:"website_id" validate:"required,max=128"`
	SessionID string          `json:"session_id" validate:"max=128"`
	VisitorID string          `json:"visitor_id" validate:"max=128"`
	EventName string          `json:"event_name" validate:"required,max=255"`
	EventData json.RawMessage `json:"event_data"`
	URL       string          `json:"url" validate:"max=2048"`

	ClientIP         string `json:"-"`
	RequestUserAgent string `json:"-"`
}

// Ingestor enriches and stores tracking signals, then folds them into sessions.
type Ingestor struct {
	db         *gorm.DB
	logger     *slog.Logger
	locator    geoip.Locator
	metrics    *metrics.Metrics
	salt       string
	now        func() time.Time
	aggregator *sessions.Aggregator
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLocator sets the geo lookup used for public addresses.
func WithLocator(l geoip.Locator) Option {
	return func(i *Ingestor) { i.locator = l }
}

// WithMetrics records ingestion counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

// WithSalt sets the secret mixed into fallback visitor ids.
func WithSalt(salt string) Option {
	return func(i *Ingestor) { i.salt = salt }
}

// WithClock replaces time.Now for both records and sessions.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// NewIngestor creates an Ingestor writing to db.
func NewIngestor(db *gorm.DB, logger *slog.Logger, opts ...Option) *Ingestor {
	i := &Ingestor{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.aggregator = sessions.NewAggregator(db, logger, sessions.WithClock(i.now))
	return i
}

// IngestPageview stores one pageview and records it against its session.
// The returned error only reflects the record write; session aggregation
// failures are logged and counted.
func (i *Ingestor) IngestPageview(ctx context.Context, signal PageviewSignal) (*Pageview, error) {
	started := time.Now()

	if strings.TrimSpace(signal.WebsiteID) == "" || strings.TrimSpace(signal.URL) == "" {
		i.metrics.RecordSignal(metrics.KindPageview, metrics.OutcomeRejected, 0)
		return nil, fmt.Errorf("%w: pageview requires website_id and url", ErrInvalidSignal)
	}

	now := i.now().UTC()
	pv := &Pageview{
		WebsiteID:        signal.WebsiteID,
		SessionID:        signal.SessionID,
		VisitorID:        signal.VisitorID,
		URL:              signal.URL,
		Referrer:         nonEmpty(signal.Referrer),
		UserAgent:        nonEmpty(signal.UserAgent),
		ScreenResolution: nonEmpty(signal.ScreenResolution),
		Language:         nonEmpty(signal.Language),
		DeviceType:       nonEmpty(signal.DeviceType),
		BrowserName:      nonEmpty(signal.BrowserName),
		BrowserVersion:   nonEmpty(signal.BrowserVersion),
		OSName:           nonEmpty(signal.OSName),
		OSVersion:        nonEmpty(signal.OSVersion),
		IsMobile:         signal.IsMobile,
		Timezone:         nonEmpty(signal.Timezone),
		UTMSource:        nonEmpty(signal.UTMSource),
		UTMMedium:        nonEmpty(signal.UTMMedium),
		UTMCampaign:      nonEmpty(signal.UTMCampaign),
		UTMTerm:          nonEmpty(signal.UTMTerm),
		UTMContent:       nonEmpty(signal.UTMContent),
		PageLoadTime:     signal.PageLoadTime,
		TTFB:             signal.TTFB,
		FCP:              signal.FCP,
		LCP:              signal.LCP,
		IsNewVisitor:     signal.IsNewVisitor,
		Timestamp:        now,
		CreatedAt:        now,
	}
	if signal.Timestamp != nil && !signal.Timestamp.IsZero() {
		pv.Timestamp = signal.Timestamp.UTC()
	}

	i.applyLocation(pv, signal.ClientIP)
	i.applyClassification(pv, signal.RequestUserAgent)
	applyCampaign(pv)

	if pv.VisitorID == "" {
		pv.VisitorID = visitors.FallbackID(pv.WebsiteID, signal.ClientIP, deref(pv.UserAgent), i.salt, now)
	}

	err := models.PerformWrite(i.logger, i.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(pv).Error
	})
	if err != nil {
		i.metrics.RecordSignal(metrics.KindPageview, metrics.OutcomeFailed, 0)
		i.logger.Error("Failed to store pageview",
			slog.String("website_id", pv.WebsiteID),
			slog.Any("error", err))
		return nil, fmt.Errorf("store pageview: %w", err)
	}

	if pv.SessionID != "" {
		facts := sessions.PageviewFacts{
			SessionID:   pv.SessionID,
			WebsiteID:   pv.WebsiteID,
			VisitorID:   pv.VisitorID,
			URL:         pv.URL,
			Country:     pv.Country,
			City:        pv.City,
			Region:      pv.Region,
			DeviceType:  deref(pv.DeviceType),
			BrowserName: deref(pv.BrowserName),
			OSName:      deref(pv.OSName),
			UTMSource:   pv.UTMSource,
			UTMMedium:   pv.UTMMedium,
			UTMCampaign: pv.UTMCampaign,
		}
		if err := i.aggregator.RecordPageview(ctx, facts); err != nil {
			i.metrics.RecordAggregationFailure("record_pageview")
			i.logger.Warn("Session aggregation failed for pageview",
				slog.String("session_id", pv.SessionID),
				slog.Any("error", err))
		}
	} else {
		i.logger.Debug("Pageview without session id stored without aggregation",
			slog.String("website_id", pv.WebsiteID))
	}

	i.metrics.RecordSignal(metrics.KindPageview, metrics.OutcomeStored, time.Since(started).Seconds())
	return pv, nil
}

// IngestEvent decodes the payload for its event name, stores the event and
// counts it against its session when one is named.
func (i *Ingestor) IngestEvent(ctx context.Context, signal EventSignal) (*Event, error) {
	started := time.Now()

	if strings.TrimSpace(signal.WebsiteID) == "" || strings.TrimSpace(signal.EventName) == "" {
		i.metrics.RecordSignal(metrics.KindEvent, metrics.OutcomeRejected, 0)
		return nil, fmt.Errorf("%w: event requires website_id and event_name", ErrInvalidSignal)
	}

	data, err := ParseEventData(signal.EventName, signal.EventData)
	if err != nil {
		i.metrics.RecordSignal(metrics.KindEvent, metrics.OutcomeRejected, 0)
		return nil, err
	}
	encoded, err := EncodeEventData(data)
	if err != nil {
		i.metrics.RecordSignal(metrics.KindEvent, metrics.OutcomeRejected, 0)
		return nil, fmt.Errorf("%w: encode event_data: %v", ErrInvalidSignal, err)
	}

	now := i.now().UTC()
	ev := &Event{
		WebsiteID: signal.WebsiteID,
		SessionID: signal.SessionID,
		VisitorID: signal.VisitorID,
		EventName: signal.EventName,
		EventData: models.JSON(encoded),
		URL:       signal.URL,
		Timestamp: now,
		CreatedAt: now,
	}
	if ev.VisitorID == "" {
		ev.VisitorID = visitors.FallbackID(ev.WebsiteID, signal.ClientIP, signal.RequestUserAgent, i.salt, now)
	}

	err = models.PerformWrite(i.logger, i.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(ev).Error
	})
	if err != nil {
		i.metrics.RecordSignal(metrics.KindEvent, metrics.OutcomeFailed, 0)
		i.logger.Error("Failed to store event",
			slog.String("website_id", ev.WebsiteID),
			slog.String("event_name", ev.EventName),
			slog.Any("error", err))
		return nil, fmt.Errorf("store event: %w", err)
	}

	if ev.SessionID != "" {
		if err := i.aggregator.RecordEvent(ctx, ev.SessionID, ev.EventName, ev.EventData); err != nil {
			i.metrics.RecordAggregationFailure("record_event")
			i.logger.Warn("Session aggregation failed for event",
				slog.String("session_id", ev.SessionID),
				slog.String("event_name", ev.EventName),
				slog.Any("error", err))
		}
	}

	i.metrics.RecordSignal(metrics.KindEvent, metrics.OutcomeStored, time.Since(started).Seconds())
	return ev, nil
}

func (i *Ingestor) applyLocation(pv *Pageview, clientIP string) {
	loc := geoip.Resolve(i.locator, clientIP)
	pv.Country = strPtr(loc.Country)
	pv.City = strPtr(loc.City)
	pv.Region = strPtr(loc.Region)
}

// applyClassification fills device, browser and OS fields the client left
// empty, preferring the agent string from the body over the request header.
func (i *Ingestor) applyClassification(pv *Pageview, requestUA string) {
	if pv.UserAgent == nil {
		pv.UserAgent = strPtr(requestUA)
	}
	ua := deref(pv.UserAgent)
	if ua == "" {
		return
	}
	if pv.DeviceType != nil && pv.BrowserName != nil && pv.OSName != nil && pv.IsMobile != nil {
		return
	}

	c := user_agent.Classify(ua)
	if pv.DeviceType == nil {
		pv.DeviceType = strPtr(c.DeviceType)
	}
	if pv.BrowserName == nil {
		pv.BrowserName = strPtr(c.BrowserName)
		pv.BrowserVersion = strPtr(c.BrowserVersion)
	}
	if pv.OSName == nil {
		pv.OSName = strPtr(c.OSName)
		pv.OSVersion = strPtr(c.OSVersion)
	}
	if pv.IsMobile == nil {
		mobile := c.IsMobile
		pv.IsMobile = &mobile
	}
}

func applyCampaign(pv *Pageview) {
	parsed, err := url.Parse(pv.URL)
	if err != nil {
		return
	}
	query := parsed.Query()
	fill := func(field **string, key string) {
		if *field == nil {
			*field = strPtr(query.Get(key))
		}
	}
	fill(&pv.UTMSource, "utm_source")
	fill(&pv.UTMMedium, "utm_medium")
	fill(&pv.UTMCampaign, "utm_campaign")
	fill(&pv.UTMTerm, "utm_term")
	fill(&pv.UTMContent, "utm_content")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	return strPtr(strings.TrimSpace(*s))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
