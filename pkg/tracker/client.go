// Package tracker is the client side of sitetrack. It identifies the visitor
// and session, snapshots the page environment and ships pageviews and events
// to the ingestion endpoint.
//
// The host program forwards navigation, visibility, scroll and unload
// notifications through the On* hooks. Hooks never block; signals are
// delivered on background goroutines and failures are only logged.
package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event names emitted by the client itself.
const (
	EventHeartbeat     = "heartbeat"
	EventTimeOnPage    = "time_on_page"
	EventScrollDepth   = "scroll_depth"
	EventPageVisible   = "page_visible"
	EventOutboundClick = "outbound_click"
)

const (
	DefaultSettleDelay       = 100 * time.Millisecond
	DefaultHeartbeatInterval = 15 * time.Second
	defaultSendTimeout       = 10 * time.Second
)

// ErrMissingWebsiteID is returned by New when no website id is configured.
var ErrMissingWebsiteID = errors.New("tracker: website id is required")

// ErrMissingTransport is returned by New when neither a transport nor an endpoint is configured.
var ErrMissingTransport = errors.New("tracker: transport or endpoint is required")

// Config configures a Client.
type Config struct {
	WebsiteID string
	// Endpoint builds an HTTPTransport when Transport is nil.
	Endpoint    string
	Transport   Transport
	Environment Environment
	// Durable holds the visitor id, Tab the session id. Both default to memory.
	Durable Storage
	Tab     Storage

	SettleDelay time.Duration
	Logger      *slog.Logger
	Clock       func() time.Time
}

// PageviewPayload is the body of a pageview signal.
type PageviewPayload struct {
	WebsiteID    string    `json:"website_id"`
	SessionID    string    `json:"session_id"`
	VisitorID    string    `json:"visitor_id"`
	IsNewVisitor bool      `json:"is_new_visitor"`
	Timestamp    time.Time `json:"timestamp"`
	EnvironmentSnapshot
}

// EventPayload is the body of an event signal.
type EventPayload struct {
	WebsiteID string      `json:"website_id"`
	SessionID string      `json:"session_id"`
	VisitorID string      `json:"visitor_id"`
	EventName string      `json:"event_name"`
	EventData interface{} `json:"event_data,omitempty"`
	URL       string      `json:"url"`
}

// beaconEvent tags an event for the beacon endpoint.
type beaconEvent struct {
	Type string `json:"type"`
	EventPayload
}

// Client ships signals for one website from one tab.
type Client struct {
	websiteID   string
	transport   Transport
	env         Environment
	identity    *Identity
	settleDelay time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	page    *PageContext
	lastURL string

	wg sync.WaitGroup
}

// New creates a Client. Nothing is sent until a pageview is requested.
func New(cfg Config) (*Client, error) {
	if cfg.WebsiteID == "" {
		return nil, ErrMissingWebsiteID
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Endpoint == "" {
			return nil, ErrMissingTransport
		}
		transport = NewHTTPTransport(cfg.Endpoint, logger)
	}

	durable, tab := cfg.Durable, cfg.Tab
	if durable == nil {
		durable = NewMemoryStorage()
	}
	if tab == nil {
		tab = NewMemoryStorage()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	return &Client{
		websiteID:   cfg.WebsiteID,
		transport:   transport,
		env:         cfg.Environment,
		identity:    NewIdentity(durable, tab, now),
		settleDelay: settle,
		logger:      logger,
		now:         now,
	}, nil
}

// SendPageview reports the current location, or urlOverride when set, and
// starts a new page context. Leaving the previous page emits its time on page.
func (c *Client) SendPageview(urlOverride string) {
	snap := collect(c.env, c.logger)
	if urlOverride != "" {
		snap.URL = urlOverride
		applyUTM(&snap, urlOverride)
	}
	c.dispatchPageview(snap, false)
}

// OnPushState, OnReplaceState, OnPopState and OnHashChange re-read the location
// after the settle delay and report it unless it equals the last pageview.
func (c *Client) OnPushState()    { c.scheduleRouteChange("pushState") }
func (c *Client) OnReplaceState() { c.scheduleRouteChange("replaceState") }
func (c *Client) OnPopState()     { c.scheduleRouteChange("popstate") }
func (c *Client) OnHashChange()   { c.scheduleRouteChange("hashchange") }

func (c *Client) scheduleRouteChange(trigger string) {
	c.logger.Debug("Route change detected", slog.String("trigger", trigger))
	c.wg.Add(1)
	time.AfterFunc(c.settleDelay, func() {
		defer c.wg.Done()
		c.trackRouteChange()
	})
}

func (c *Client) trackRouteChange() {
	snap := collect(c.env, c.logger)
	if !c.dispatchPageview(snap, true) {
		c.logger.Debug("Skipping duplicate pageview", slog.String("url", snap.URL))
	}
}

// dispatchPageview starts a page context for snap and sends the pageview.
// With skipDuplicate it sends nothing and returns false when snap.URL is the
// last dispatched URL; the check and the update of lastURL share one lock.
func (c *Client) dispatchPageview(snap EnvironmentSnapshot, skipDuplicate bool) bool {
	now := c.now()

	c.mu.Lock()
	if skipDuplicate && snap.URL == c.lastURL {
		c.mu.Unlock()
		return false
	}
	previous := c.page
	c.page = NewPageContext(snap.URL, now)
	c.lastURL = snap.URL
	c.mu.Unlock()

	if previous != nil && previous.URL != snap.URL {
		c.sendTimeOnPage(previous, now, false)
	}

	visitorID, isNew := c.identity.GetVisitorID()
	payload := PageviewPayload{
		WebsiteID:           c.websiteID,
		SessionID:           c.identity.GetSessionID(),
		VisitorID:           visitorID,
		IsNewVisitor:        isNew,
		Timestamp:           now.UTC(),
		EnvironmentSnapshot: snap,
	}
	c.send(PathPageview, payload)
	return true
}

// SendEvent reports a named event for the current page.
func (c *Client) SendEvent(name string, data interface{}) {
	c.send(PathEvent, c.eventPayload(name, data, c.currentURL()))
}

// SendTimeOnPage reports how long the current page has been open and how far
// it was scrolled. Without a page it does nothing.
func (c *Client) SendTimeOnPage() {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()
	if page != nil {
		c.sendTimeOnPage(page, c.now(), false)
	}
}

func (c *Client) sendTimeOnPage(page *PageContext, now time.Time, beacon bool) {
	c.mu.Lock()
	data := map[string]int{
		"time_on_page": page.TimeOnPage(now),
		"scroll_depth": page.MaxScroll(),
	}
	c.mu.Unlock()

	payload := c.eventPayload(EventTimeOnPage, data, page.URL)
	if beacon {
		c.beacon(payload)
		return
	}
	c.send(PathEvent, payload)
}

// OnVisibilityChange reports time on page when the tab is hidden and a
// page_visible event when it becomes visible again.
func (c *Client) OnVisibilityChange(visible bool) {
	if visible {
		c.SendEvent(EventPageVisible, nil)
		return
	}
	c.SendTimeOnPage()
}

// OnUnload reports the final time on page through the beacon path.
func (c *Client) OnUnload() {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()
	if page != nil {
		c.sendTimeOnPage(page, c.now(), true)
	}
}

// OnScroll records the scroll position as a percentage of the page and
// reports each milestone the first time it is reached.
func (c *Client) OnScroll(percent int) {
	c.mu.Lock()
	if c.page == nil {
		c.mu.Unlock()
		return
	}
	crossed := c.page.RecordScroll(percent)
	url := c.page.URL
	c.mu.Unlock()

	for _, depth := range crossed {
		c.send(PathEvent, c.eventPayload(EventScrollDepth, map[string]int{"depth": depth}, url))
	}
}

// TrackOutboundClick reports a click on a link leaving the site.
func (c *Client) TrackOutboundClick(href string) {
	c.SendEvent(EventOutboundClick, map[string]string{"url": href})
}

// StartHeartbeat emits a heartbeat every interval until ctx is cancelled.
// A non-positive interval uses DefaultHeartbeatInterval.
func (c *Client) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sendHeartbeat()
			}
		}
	}()
}

func (c *Client) sendHeartbeat() {
	c.mu.Lock()
	page := c.page
	if page == nil {
		c.mu.Unlock()
		return
	}
	data := map[string]interface{}{
		"page":         page.URL,
		"time_on_page": page.TimeOnPage(c.now()),
		"scroll_depth": page.MaxScroll(),
	}
	url := page.URL
	c.mu.Unlock()

	c.send(PathEvent, c.eventPayload(EventHeartbeat, data, url))
}

// Flush waits for scheduled route changes, running heartbeats and in-flight sends.
func (c *Client) Flush() {
	c.wg.Wait()
}

func (c *Client) currentURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page != nil {
		return c.page.URL
	}
	if c.env != nil {
		var url string
		guard(c.logger, "location", func() { url = c.env.Location() })
		return url
	}
	return ""
}

func (c *Client) eventPayload(name string, data interface{}, url string) EventPayload {
	visitorID, _ := c.identity.GetVisitorID()
	return EventPayload{
		WebsiteID: c.websiteID,
		SessionID: c.identity.GetSessionID(),
		VisitorID: visitorID,
		EventName: name,
		EventData: data,
		URL:       url,
	}
}

func (c *Client) send(path string, payload interface{}) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
		defer cancel()

		if err := c.transport.Send(ctx, path, payload); err != nil {
			c.logger.Warn("Failed to deliver signal", slog.String("path", path), slog.Any("error", err))
		}
	}()
}

func (c *Client) beacon(payload EventPayload) {
	if b, ok := c.transport.(BeaconTransport); ok {
		b.Beacon(PathBeacon, beaconEvent{Type: "event", EventPayload: payload})
		return
	}
	c.send(PathEvent, payload)
}
