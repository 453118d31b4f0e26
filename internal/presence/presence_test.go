package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack/internal/events"
	"sitetrack/internal/models"
	"sitetrack/internal/presence"
	"sitetrack/internal/testsupport"
	"sitetrack/internal/visitors"
)

var now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func heartbeat(session, visitor string, at time.Time, payload string) events.Event {
	return events.Event{
		WebsiteID: "site-1",
		SessionID: session,
		VisitorID: visitor,
		EventName: events.NameHeartbeat,
		EventData: models.JSON(payload),
		URL:       "/fallback",
		Timestamp: at,
	}
}

func TestGetActiveVisitors(t *testing.T) {
	ctx := context.Background()
	db := testsupport.SetupTestDB(t)
	clock := testsupport.NewFixedClock(now)
	tracker := presence.NewTracker(db, testsupport.GetLogger(), presence.WithClock(clock.Now))

	t.Run("empty when nobody sent a heartbeat", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		active, err := tracker.GetActiveVisitors(ctx, "site-1")
		require.NoError(t, err)
		assert.Zero(t, active.Count)
		assert.Empty(t, active.Users)
	})

	t.Run("keeps the latest heartbeat per session inside the window", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		testsupport.CreateEvent(t, db, heartbeat("sess_a", "vis_a", now.Add(-30*time.Second), `{"page":"/docs","time_on_page":15,"scroll_depth":10}`))
		testsupport.CreateEvent(t, db, heartbeat("sess_a", "vis_a", now.Add(-10*time.Second), `{"page":"/docs/install","time_on_page":5,"scroll_depth":60}`))
		testsupport.CreateEvent(t, db, heartbeat("sess_b", "vis_b", now.Add(-20*time.Second), `{"time_on_page":45}`))
		testsupport.CreateEvent(t, db, heartbeat("sess_old", "vis_c", now.Add(-46*time.Second), `{"page":"/gone"}`))
		testsupport.CreateEvent(t, db, events.Event{WebsiteID: "site-1", SessionID: "sess_d", VisitorID: "vis_d", EventName: "signup", Timestamp: now})
		other := heartbeat("sess_e", "vis_e", now, `{}`)
		other.WebsiteID = "site-2"
		testsupport.CreateEvent(t, db, other)

		active, err := tracker.GetActiveVisitors(ctx, "site-1")
		require.NoError(t, err)
		require.Equal(t, 2, active.Count)
		require.Len(t, active.Users, 2)

		first := active.Users[0]
		assert.Equal(t, "sess_a", first.SessionID)
		assert.Equal(t, "/docs/install", first.Page)
		assert.Equal(t, 5, first.TimeOnPage)
		assert.Equal(t, 60, first.ScrollDepth)
		assert.Equal(t, visitors.Alias("vis_a"), first.Alias)
		assert.True(t, now.Add(-10*time.Second).Equal(first.LastSeen))

		second := active.Users[1]
		assert.Equal(t, "sess_b", second.SessionID)
		assert.Equal(t, "/fallback", second.Page)
		assert.Equal(t, 45, second.TimeOnPage)
	})

	t.Run("visitors drop out once the window passes", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		testsupport.CreateEvent(t, db, heartbeat("sess_a", "vis_a", now, `{}`))

		active, err := tracker.GetActiveVisitors(ctx, "site-1")
		require.NoError(t, err)
		assert.Equal(t, 1, active.Count)

		clock.Advance(46 * time.Second)
		active, err = tracker.GetActiveVisitors(ctx, "site-1")
		require.NoError(t, err)
		assert.Zero(t, active.Count)
	})

	t.Run("window is configurable", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		testsupport.CreateEvent(t, db, heartbeat("sess_a", "vis_a", now, `{}`))

		wide := presence.NewTracker(db, testsupport.GetLogger(),
			presence.WithClock(func() time.Time { return now.Add(2 * time.Minute) }),
			presence.WithWindow(5*time.Minute))
		active, err := wide.GetActiveVisitors(ctx, "site-1")
		require.NoError(t, err)
		assert.Equal(t, 1, active.Count)
	})
}
