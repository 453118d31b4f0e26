package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitetrack/internal/config"
	"sitetrack/internal/events"
	"sitetrack/internal/metrics"
	"sitetrack/internal/pkg/geoip"
	"sitetrack/internal/validation"
)

const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeCollectionError = "COLLECTION_ERROR"

	errInvalidRequest = "Invalid request body"
	errCollection     = "Failed to collect signal"

	beaconTypePageview = "pageview"
	beaconTypeEvent    = "event"
)

// beaconEnvelope selects the signal kind of a beacon body.
type beaconEnvelope struct {
	Type string `json:"type"`
}

func newIngestor(ctx *cartridge.Context) *events.Ingestor {
	opts := []events.Option{
		events.WithLocator(geoip.DefaultLocator()),
		events.WithMetrics(metrics.Default()),
	}
	if cfg, ok := ctx.Config.(*config.Config); ok {
		opts = append(opts, events.WithSalt(cfg.PrivateKey))
	}
	return events.NewIngestor(ctx.DBManager.GetConnection(), ctx.Logger, opts...)
}

// TrackPageviewHandler stores a pageview and folds it into its session.
func TrackPageviewHandler(ctx *cartridge.Context) error {
	var signal events.PageviewSignal
	if err := decodeSignal(ctx.Body(), &signal); err != nil {
		ctx.Logger.Debug("Failed to decode pageview", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}
	signal.ClientIP = getClientIP(ctx.Ctx)
	signal.RequestUserAgent = requestUserAgent(ctx.Ctx)

	pv, err := newIngestor(ctx).IngestPageview(ctx.UserContext(), signal)
	if err != nil {
		ctx.Logger.Error("Failed to collect pageview",
			slog.String("website_id", signal.WebsiteID),
			slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "data": pv})
}

// TrackEventHandler stores a named event and counts it against its session.
func TrackEventHandler(ctx *cartridge.Context) error {
	var signal events.EventSignal
	if err := decodeSignal(ctx.Body(), &signal); err != nil {
		ctx.Logger.Debug("Failed to decode event", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}
	signal.ClientIP = getClientIP(ctx.Ctx)
	signal.RequestUserAgent = requestUserAgent(ctx.Ctx)

	ev, err := newIngestor(ctx).IngestEvent(ctx.UserContext(), signal)
	if err != nil {
		ctx.Logger.Error("Failed to collect event",
			slog.String("website_id", signal.WebsiteID),
			slog.String("event_name", signal.EventName),
			slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "data": ev})
}

// TrackBeaconHandler accepts signals sent with navigator.sendBeacon during
// unload. The body arrives as text/plain and the sender never reads the
// answer, so every outcome is 202.
func TrackBeaconHandler(ctx *cartridge.Context) error {
	body := ctx.Body()

	var envelope beaconEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		ctx.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
		return ctx.SendStatus(http.StatusAccepted)
	}

	ingestor := newIngestor(ctx)
	clientIP := getClientIP(ctx.Ctx)
	userAgent := requestUserAgent(ctx.Ctx)

	var err error
	switch envelope.Type {
	case beaconTypePageview:
		var signal events.PageviewSignal
		if err = decodeSignal(body, &signal); err == nil {
			signal.ClientIP, signal.RequestUserAgent = clientIP, userAgent
			_, err = ingestor.IngestPageview(ctx.UserContext(), signal)
		}
	case beaconTypeEvent, "":
		var signal events.EventSignal
		if err = decodeSignal(body, &signal); err == nil {
			signal.ClientIP, signal.RequestUserAgent = clientIP, userAgent
			_, err = ingestor.IngestEvent(ctx.UserContext(), signal)
		}
	default:
		ctx.Logger.Debug("Unknown beacon type", slog.String("type", envelope.Type))
		return ctx.SendStatus(http.StatusAccepted)
	}

	if err != nil {
		ctx.Logger.Warn("Failed to collect beacon signal",
			slog.String("type", envelope.Type),
			slog.Any("error", err))
	}
	return ctx.SendStatus(http.StatusAccepted)
}

// decodeSignal unmarshals and validates a request body.
func decodeSignal(body []byte, dst interface{}) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, errInvalidRequest)
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		return verr
	}
	return nil
}

// handleError renders err as {success: false, error, code}.
func handleError(c *fiber.Ctx, err error) error {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		apiErr := verr.ToAPIError()
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   apiErr.Message,
			"code":    apiErr.Code,
			"fields":  apiErr.Fields,
		})
	}

	if errors.Is(err, events.ErrInvalidSignal) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
			"code":    validation.CodeValidationError,
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"success": false,
			"error":   fiberErr.Message,
			"code":    codeInvalidRequest,
		})
	}

	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   errCollection,
		"code":    codeCollectionError,
	})
}
