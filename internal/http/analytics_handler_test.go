package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack/internal/analytics"
	"sitetrack/internal/events"
	"sitetrack/internal/models"
	"sitetrack/internal/presence"
	"sitetrack/internal/sessions"
	"sitetrack/internal/testsupport"
)

func get(t *testing.T, app *fiber.App, path string, dst interface{}) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), 30000)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if dst != nil {
		require.NoError(t, json.Unmarshal(body, dst), "body: %s", body)
	}
	return resp.StatusCode
}

func intPtr(v int) *int { return &v }

func TestAnalyticsReportAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)

	day := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	t.Run("computes metrics over the range", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		testsupport.CreatePageview(t, db, events.Pageview{WebsiteID: "site-1", SessionID: "s1", VisitorID: "v1", URL: "https://example.com/", IsNewVisitor: true, Timestamp: day})
		testsupport.CreatePageview(t, db, events.Pageview{WebsiteID: "site-1", SessionID: "s1", VisitorID: "v1", URL: "https://example.com/docs", Timestamp: day.Add(time.Minute)})
		testsupport.CreatePageview(t, db, events.Pageview{WebsiteID: "site-1", SessionID: "s2", VisitorID: "v2", URL: "https://example.com/", IsNewVisitor: true, Timestamp: day.Add(time.Hour)})
		testsupport.CreatePageview(t, db, events.Pageview{WebsiteID: "site-1", SessionID: "old", VisitorID: "v3", URL: "https://example.com/", Timestamp: day.AddDate(0, 0, -3)})
		testsupport.CreatePageview(t, db, events.Pageview{WebsiteID: "site-2", SessionID: "x", VisitorID: "v9", URL: "https://other.com/", Timestamp: day})
		testsupport.CreateSession(t, db, sessions.Session{ID: "s1", WebsiteID: "site-1", VisitorID: "v1", StartedAt: day, PageviewCount: 2, IsBounce: false, Duration: intPtr(90)})
		testsupport.CreateSession(t, db, sessions.Session{ID: "s2", WebsiteID: "site-1", VisitorID: "v2", StartedAt: day.Add(time.Hour), PageviewCount: 1, IsBounce: true})
		testsupport.CreateEvent(t, db, events.Event{WebsiteID: "site-1", SessionID: "s1", VisitorID: "v1", EventName: "signup", EventData: models.JSON(`{}`), Timestamp: day.Add(2 * time.Minute)})

		var resp struct {
			Success bool             `json:"success"`
			Data    analytics.Report `json:"data"`
		}
		status := get(t, app, "/api/analytics/site-1?start_date=2024-05-10&end_date=2024-05-10", &resp)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, resp.Success)

		report := resp.Data
		assert.Equal(t, 3, report.TotalPageviews)
		assert.Equal(t, 1, report.TotalEvents)
		assert.Equal(t, 2, report.TotalSessions)
		assert.Equal(t, 2, report.UniqueVisitors)
		assert.Equal(t, 2, report.NewVisitors)
		assert.Equal(t, 0, report.ReturningVisitors)
		assert.Equal(t, 50.0, report.BounceRate)
		assert.Equal(t, 45, report.AvgSessionDuration)
		assert.Equal(t, 1.5, report.PagesPerSession)
		require.Len(t, report.Pageviews, 3)
		assert.Equal(t, "s2", report.Pageviews[0].SessionID, "newest first")
		require.NotEmpty(t, report.Breakdowns.Pages)
		assert.Equal(t, analytics.MetricCountResult{Name: "/", Count: 2}, report.Breakdowns.Pages[0])
	})

	t.Run("empty range yields zeroes", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		var resp struct {
			Data analytics.Report `json:"data"`
		}
		require.Equal(t, http.StatusOK, get(t, app, "/api/analytics/site-1", &resp))
		assert.Zero(t, resp.Data.BounceRate)
		assert.Zero(t, resp.Data.AvgSessionDuration)
		assert.Zero(t, resp.Data.PagesPerSession)
	})

	t.Run("invalid range", func(t *testing.T) {
		var resp map[string]interface{}
		status := get(t, app, "/api/analytics/site-1?start_date=yesterday", &resp)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, resp["success"])
		assert.Equal(t, "INVALID_RANGE", resp["code"])
	})

	t.Run("end before start", func(t *testing.T) {
		status := get(t, app, "/api/analytics/site-1?start_date=2024-05-10&end_date=2024-05-01", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestActiveVisitorsAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	app := testsupport.CreateTestApp(t, db)

	now := time.Now().UTC()
	testsupport.CreateEvent(t, db, events.Event{
		WebsiteID: "site-1", SessionID: "s1", VisitorID: "v1", EventName: events.NameHeartbeat,
		EventData: models.JSON(`{"page":"/docs","time_on_page":20,"scroll_depth":30}`), Timestamp: now.Add(-5 * time.Second),
	})
	testsupport.CreateEvent(t, db, events.Event{
		WebsiteID: "site-1", SessionID: "gone", VisitorID: "v2", EventName: events.NameHeartbeat,
		EventData: models.JSON(`{"page":"/"}`), Timestamp: now.Add(-10 * time.Minute),
	})

	var resp struct {
		Success bool                    `json:"success"`
		Data    presence.ActiveVisitors `json:"data"`
	}
	require.Equal(t, http.StatusOK, get(t, app, "/api/analytics/site-1/active", &resp))
	assert.True(t, resp.Success)
	require.Equal(t, 1, resp.Data.Count)
	user := resp.Data.Users[0]
	assert.Equal(t, "s1", user.SessionID)
	assert.Equal(t, "/docs", user.Page)
	assert.Equal(t, 20, user.TimeOnPage)
	assert.Equal(t, 30, user.ScrollDepth)
	assert.NotEmpty(t, user.Alias)
}

func TestHealthIndexAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)

	var health map[string]interface{}
	require.Equal(t, http.StatusOK, get(t, app, "/_health", &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["db_status"])
}
