// Package sessions maintains one mutable aggregate row per tracking session.
//
// Every mutation is a single field-scoped statement evaluated by the store
// against the row's current values, so concurrent signals for the same
// session never lose an increment.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sitetrack/internal/models"
	"sitetrack/internal/timeframe"
)

// EventTimeOnPage is the event name that finalises session duration.
const EventTimeOnPage = "time_on_page"

// ErrMissingSessionID is returned when a pageview carries no session id.
var ErrMissingSessionID = errors.New("sessions: session id is required")

// Session is the aggregate of all pageviews and events sharing a session id.
type Session struct {
	ID             string    `gorm:"primaryKey;size:128" json:"id"`
	WebsiteID      string    `gorm:"index:idx_sessions_website_started;size:128;not null" json:"website_id"`
	VisitorID      string    `gorm:"index;size:128" json:"visitor_id"`
	StartedAt      time.Time `gorm:"index:idx_sessions_website_started;not null" json:"started_at"`
	LastActivityAt time.Time `gorm:"not null" json:"last_activity_at"`
	PageviewCount  int       `gorm:"not null" json:"pageview_count"`
	EventCount     int       `gorm:"not null" json:"event_count"`
	IsBounce       bool      `gorm:"not null" json:"is_bounce"`
	EntryPage      string    `json:"entry_page"`
	ExitPage       string    `json:"exit_page"`
	Duration       *int      `json:"duration"`

	// First-seen snapshot, copied from the pageview that created the row.
	Country     *string `json:"country"`
	City        *string `json:"city"`
	Region      *string `json:"region"`
	DeviceType  string  `json:"device_type"`
	BrowserName string  `json:"browser_name"`
	OSName      string  `json:"os_name"`
	UTMSource   *string `json:"utm_source"`
	UTMMedium   *string `json:"utm_medium"`
	UTMCampaign *string `json:"utm_campaign"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageviewFacts is what the aggregator needs from one stored pageview.
type PageviewFacts struct {
	SessionID   string
	WebsiteID   string
	VisitorID   string
	URL         string
	Country     *string
	City        *string
	Region      *string
	DeviceType  string
	BrowserName string
	OSName      string
	UTMSource   *string
	UTMMedium   *string
	UTMCampaign *string
}

// Aggregator applies pageview and event signals to session rows.
type Aggregator struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an Aggregator writing through db.
func NewAggregator(db *gorm.DB, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordPageview creates the session on its first pageview and otherwise
// increments the count, moves the exit page, clears the bounce flag and
// advances last activity. Both paths are one INSERT ... ON CONFLICT statement.
func (a *Aggregator) RecordPageview(ctx context.Context, facts PageviewFacts) error {
	if facts.SessionID == "" {
		return ErrMissingSessionID
	}

	now := a.now().UTC()
	row := Session{
		ID:             facts.SessionID,
		WebsiteID:      facts.WebsiteID,
		VisitorID:      facts.VisitorID,
		StartedAt:      now,
		LastActivityAt: now,
		PageviewCount:  1,
		IsBounce:       true,
		EntryPage:      facts.URL,
		ExitPage:       facts.URL,
		Country:        facts.Country,
		City:           facts.City,
		Region:         facts.Region,
		DeviceType:     facts.DeviceType,
		BrowserName:    facts.BrowserName,
		OSName:         facts.OSName,
		UTMSource:      facts.UTMSource,
		UTMMedium:      facts.UTMMedium,
		UTMCampaign:    facts.UTMCampaign,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	upsert := clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"pageview_count":   gorm.Expr("sessions.pageview_count + 1"),
			"is_bounce":        gorm.Expr("sessions.is_bounce AND sessions.pageview_count = 0"),
			"exit_page":        gorm.Expr("excluded.exit_page"),
			"last_activity_at": gorm.Expr("MAX(sessions.last_activity_at, excluded.last_activity_at)"),
			"updated_at":       gorm.Expr("excluded.updated_at"),
		}),
	}

	err := models.PerformWrite(a.logger, a.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Clauses(upsert).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("record pageview for session %s: %w", facts.SessionID, err)
	}
	return nil
}

// RecordEvent counts an event against its session and refreshes last activity.
// A time_on_page event also sets duration to the whole seconds elapsed since
// the session started, replacing any earlier value. Only a row without a start
// time takes the time_on_page value reported in data. A missing session is a no-op.
func (a *Aggregator) RecordEvent(ctx context.Context, sessionID, eventName string, data models.JSON) error {
	if sessionID == "" {
		return nil
	}

	now := a.now().UTC()
	err := models.PerformWrite(a.logger, a.db.WithContext(ctx), func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"event_count":      gorm.Expr("event_count + 1"),
			"last_activity_at": gorm.Expr("MAX(last_activity_at, ?)", now),
			"updated_at":       now,
		}

		if eventName == EventTimeOnPage {
			var started Session
			err := tx.Select("id", "started_at").Where("id = ?", sessionID).Take(&started).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !started.StartedAt.IsZero() {
				updates["duration"] = elapsedSeconds(started.StartedAt, now)
			} else if reported, ok := reportedTimeOnPage(data); ok {
				updates["duration"] = reported
			}
		}

		result := tx.Model(&Session{}).Where("id = ?", sessionID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			a.logger.Debug("Event for unknown session ignored by aggregator",
				slog.String("session_id", sessionID),
				slog.String("event_name", eventName))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record %s event for session %s: %w", eventName, sessionID, err)
	}
	return nil
}

func reportedTimeOnPage(data models.JSON) (int, bool) {
	var payload struct {
		TimeOnPage *int `json:"time_on_page"`
	}
	if len(data) == 0 || json.Unmarshal(data, &payload) != nil || payload.TimeOnPage == nil || *payload.TimeOnPage < 0 {
		return 0, false
	}
	return *payload.TimeOnPage, true
}

func elapsedSeconds(start, end time.Time) int {
	seconds := math.Round(end.Sub(start).Seconds())
	if seconds < 0 {
		return 0
	}
	return int(seconds)
}

// Get loads one session. It returns gorm.ErrRecordNotFound when absent.
func Get(ctx context.Context, db *gorm.DB, sessionID string) (*Session, error) {
	var s Session
	if err := db.WithContext(ctx).Where("id = ?", sessionID).Take(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the sessions of a website whose started_at falls in r, newest first.
func List(ctx context.Context, db *gorm.DB, websiteID string, r timeframe.Range) ([]Session, error) {
	var list []Session
	err := db.WithContext(ctx).
		Where("website_id = ?", websiteID).
		Scopes(r.Scope("started_at")).
		Order("started_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return list, nil
}
