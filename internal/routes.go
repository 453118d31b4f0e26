package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "sitetrack/api/v1"
	"sitetrack/internal/config"
	"sitetrack/internal/http"
	"sitetrack/internal/http/middleware"
	"sitetrack/internal/metrics"
)

// publicCORSConfig is shared by every endpoint the tracker calls cross-origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()

	// Rate limiting only applies in production; it would interfere with tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 120
	}
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(limit),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Tracking signals come from browsers on other origins and from server-side
	// SDK hosts, see NewServerConfig.
	trackConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	analyticsConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: publicCORSConfig,
		CustomMiddleware: []fiber.Handler{
			middleware.APIKeyAuth(cfg.APIKey, logger),
			middleware.WebsiteFilter(logger),
		},
	}

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === SYSTEM ROUTES ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	if cfg.MetricsEnabled {
		promHandler := adaptor.HTTPHandler(metrics.Handler())
		srv.Get("/metrics", func(ctx *cartridge.Context) error {
			return promHandler(ctx.Ctx)
		})
	}

	// === TRACKING ROUTES ===
	srv.Post("/api/track/pageview", v1.TrackPageviewHandler, trackConfig)
	srv.Options("/api/track/pageview", preflight, trackConfig)
	srv.Post("/api/track/event", v1.TrackEventHandler, trackConfig)
	srv.Options("/api/track/event", preflight, trackConfig)
	srv.Post("/api/track/beacon", v1.TrackBeaconHandler, trackConfig)
	srv.Options("/api/track/beacon", preflight, trackConfig)

	// === ANALYTICS ROUTES ===
	srv.Get("/api/analytics/:website_id", http.AnalyticsReportAction, analyticsConfig)
	srv.Get("/api/analytics/:website_id/active", http.ActiveVisitorsAction, analyticsConfig)
}
