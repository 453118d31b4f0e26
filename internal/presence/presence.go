// Package presence answers "who is on the site right now" from recent heartbeats.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"sitetrack/internal/events"
	"sitetrack/internal/visitors"
)

// DefaultWindow is how long a heartbeat keeps a visitor active.
const DefaultWindow = 45 * time.Second

// ActiveUser is the latest known state of one active session.
type ActiveUser struct {
	SessionID   string    `json:"session_id"`
	VisitorID   string    `json:"visitor_id"`
	Alias       string    `json:"alias"`
	LastSeen    time.Time `json:"last_seen"`
	Page        string    `json:"page"`
	TimeOnPage  int       `json:"time_on_page"`
	ScrollDepth int       `json:"scroll_depth"`
}

// ActiveVisitors is the result of a presence query.
type ActiveVisitors struct {
	Count int          `json:"count"`
	Users []ActiveUser `json:"users"`
}

// Tracker computes presence on every call. Nothing is cached between queries.
type Tracker struct {
	db     *gorm.DB
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow overrides DefaultWindow.
func WithWindow(window time.Duration) Option {
	return func(t *Tracker) {
		if window > 0 {
			t.window = window
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker reading heartbeats from db.
func NewTracker(db *gorm.DB, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		db:     db,
		logger: logger,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetActiveVisitors returns one entry per session whose most recent heartbeat
// falls inside the trailing window, most recently seen first.
func (t *Tracker) GetActiveVisitors(ctx context.Context, websiteID string) (ActiveVisitors, error) {
	now := t.now().UTC()
	beats, err := events.RecentHeartbeats(ctx, t.db, websiteID, now.Add(-t.window), now)
	if err != nil {
		return ActiveVisitors{}, err
	}

	seen := make(map[string]bool, len(beats))
	users := make([]ActiveUser, 0, len(beats))
	for _, beat := range beats {
		key := beat.SessionID
		if key == "" {
			key = "visitor:" + beat.VisitorID
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		var data events.HeartbeatData
		if len(beat.EventData) > 0 {
			if err := json.Unmarshal(beat.EventData, &data); err != nil {
				t.logger.Debug("Ignoring unreadable heartbeat payload",
					slog.Uint64("event_id", uint64(beat.ID)),
					slog.Any("error", err))
			}
		}
		page := data.Page
		if page == "" {
			page = beat.URL
		}

		users = append(users, ActiveUser{
			SessionID:   beat.SessionID,
			VisitorID:   beat.VisitorID,
			Alias:       visitors.Alias(beat.VisitorID),
			LastSeen:    beat.Timestamp,
			Page:        page,
			TimeOnPage:  data.TimeOnPage,
			ScrollDepth: data.ScrollDepth,
		})
	}

	return ActiveVisitors{Count: len(users), Users: users}, nil
}
