// Package http holds the analytics read endpoints.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitetrack/internal/analytics"
	"sitetrack/internal/config"
	"sitetrack/internal/http/middleware"
	"sitetrack/internal/metrics"
	"sitetrack/internal/presence"
	"sitetrack/internal/timeframe"
)

const (
	codeInvalidRange = "INVALID_RANGE"
	codeQueryError   = "QUERY_ERROR"
)

var (
	errQueryFailed  = errors.New("failed to load analytics")
	errNoConnection = errors.New("database connection unavailable")
)

// AnalyticsReportAction returns records, metrics and breakdowns for a website.
// Query: start_date, end_date (RFC 3339 or YYYY-MM-DD, both optional).
func AnalyticsReportAction(ctx *cartridge.Context) error {
	websiteID := middleware.WebsiteID(ctx.Ctx)

	r, err := timeframe.Parse(ctx.Query("start_date"), ctx.Query("end_date"), time.UTC)
	if err != nil {
		ctx.Logger.Debug("Invalid analytics range", slog.String("website_id", websiteID), slog.Any("error", err))
		return respondError(ctx.Ctx, http.StatusBadRequest, codeInvalidRange, err.Error())
	}

	service := analytics.NewService(ctx.DBManager.GetConnection(), ctx.Logger, metrics.Default())
	report, err := service.BuildReport(ctx.UserContext(), websiteID, r)
	if err != nil {
		ctx.Logger.Error("Failed to build analytics report",
			slog.String("website_id", websiteID),
			slog.Any("error", err))
		return respondError(ctx.Ctx, http.StatusInternalServerError, codeQueryError, errQueryFailed.Error())
	}

	return ctx.JSON(fiber.Map{"success": true, "data": report})
}

// ActiveVisitorsAction returns the sessions seen within the presence window.
func ActiveVisitorsAction(ctx *cartridge.Context) error {
	websiteID := middleware.WebsiteID(ctx.Ctx)

	var opts []presence.Option
	if cfg, ok := ctx.Config.(*config.Config); ok {
		opts = append(opts, presence.WithWindow(cfg.ActiveWindow()))
	}

	tracker := presence.NewTracker(ctx.DBManager.GetConnection(), ctx.Logger, opts...)
	active, err := tracker.GetActiveVisitors(ctx.UserContext(), websiteID)
	if err != nil {
		ctx.Logger.Error("Failed to load active visitors",
			slog.String("website_id", websiteID),
			slog.Any("error", err))
		return respondError(ctx.Ctx, http.StatusInternalServerError, codeQueryError, errQueryFailed.Error())
	}

	metrics.Default().SetActiveVisitors(websiteID, active.Count)
	return ctx.JSON(fiber.Map{"success": true, "data": active})
}

func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
