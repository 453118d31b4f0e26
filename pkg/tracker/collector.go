package tracker

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"sitetrack/internal/pkg/user_agent"
)

// NavigationTiming mirrors the browser's navigation timing entry.
type NavigationTiming struct {
	LoadTime time.Duration
	TTFB     time.Duration
}

// PaintTiming mirrors the browser's paint timing entries. A zero LCP means
// the metric was not reported.
type PaintTiming struct {
	FCP time.Duration
	LCP time.Duration
}

// Environment exposes what a tracked page can observe about itself. The
// timing reads report false when the host does not support them.
type Environment interface {
	Location() string
	Referrer() string
	UserAgent() string
	ScreenResolution() string
	Language() string
	Timezone() string
	NavigationTiming() (NavigationTiming, bool)
	PaintTiming() (PaintTiming, bool)
}

// EnvironmentSnapshot is the context attached to every pageview. Unknown
// values are nil and never sent.
type EnvironmentSnapshot struct {
	URL              string  `json:"url"`
	Referrer         *string `json:"referrer,omitempty"`
	UserAgent        *string `json:"user_agent,omitempty"`
	ScreenResolution *string `json:"screen_resolution,omitempty"`
	Language         *string `json:"language,omitempty"`
	Timezone         *string `json:"timezone,omitempty"`

	DeviceType     *string `json:"device_type,omitempty"`
	BrowserName    *string `json:"browser_name,omitempty"`
	BrowserVersion *string `json:"browser_version,omitempty"`
	OSName         *string `json:"os_name,omitempty"`
	OSVersion      *string `json:"os_version,omitempty"`
	IsMobile       *bool   `json:"is_mobile,omitempty"`

	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`
	UTMTerm     *string `json:"utm_term,omitempty"`
	UTMContent  *string `json:"utm_content,omitempty"`

	// Milliseconds.
	PageLoadTime *float64 `json:"page_load_time,omitempty"`
	TTFB         *float64 `json:"ttfb,omitempty"`
	FCP          *float64 `json:"fcp,omitempty"`
	LCP          *float64 `json:"lcp,omitempty"`
}

// CollectContext snapshots env. A facility that panics leaves its fields nil.
func CollectContext(env Environment) EnvironmentSnapshot {
	return collect(env, nil)
}

func collect(env Environment, logger *slog.Logger) EnvironmentSnapshot {
	var snap EnvironmentSnapshot
	if env == nil {
		return snap
	}

	guard(logger, "location", func() {
		snap.URL = env.Location()
		applyUTM(&snap, snap.URL)
	})
	guard(logger, "referrer", func() { snap.Referrer = optional(env.Referrer()) })
	guard(logger, "screen", func() { snap.ScreenResolution = optional(env.ScreenResolution()) })
	guard(logger, "language", func() { snap.Language = optional(env.Language()) })
	guard(logger, "timezone", func() { snap.Timezone = resolveTimezone(env.Timezone()) })
	guard(logger, "user_agent", func() {
		ua := env.UserAgent()
		snap.UserAgent = optional(ua)
		if ua == "" {
			return
		}
		c := user_agent.Classify(ua)
		snap.DeviceType = optional(c.DeviceType)
		snap.BrowserName = optional(c.BrowserName)
		snap.BrowserVersion = optional(c.BrowserVersion)
		snap.OSName = optional(c.OSName)
		snap.OSVersion = optional(c.OSVersion)
		isMobile := c.IsMobile
		snap.IsMobile = &isMobile
	})
	guard(logger, "navigation_timing", func() {
		if nav, ok := env.NavigationTiming(); ok {
			snap.PageLoadTime = millis(nav.LoadTime)
			snap.TTFB = millis(nav.TTFB)
		}
	})
	guard(logger, "paint_timing", func() {
		if paint, ok := env.PaintTiming(); ok {
			snap.FCP = millis(paint.FCP)
			if paint.LCP > 0 {
				snap.LCP = millis(paint.LCP)
			}
		}
	})

	return snap
}

func guard(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Debug("Environment read failed", slog.String("facility", name), slog.Any("panic", r))
		}
	}()
	fn()
}

var utmKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

func applyUTM(snap *EnvironmentSnapshot, raw string) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return
	}
	query := parsed.Query()
	targets := []**string{&snap.UTMSource, &snap.UTMMedium, &snap.UTMCampaign, &snap.UTMTerm, &snap.UTMContent}
	for i, key := range utmKeys {
		*targets[i] = optional(query.Get(key))
	}
}

// resolveTimezone keeps the name only when it is a loadable IANA zone.
func resolveTimezone(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return nil
	}
	return &name
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func millis(d time.Duration) *float64 {
	if d < 0 {
		return nil
	}
	v := float64(d) / float64(time.Millisecond)
	return &v
}
