package events

import (
	"time"

	"sitetrack/internal/models"
)

// Pageview is one page load or client-side navigation. Rows are never updated.
type Pageview struct {
	ID        uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	WebsiteID string  `gorm:"index:idx_pageviews_website_timestamp;size:128;not null" json:"website_id"`
	SessionID string  `gorm:"index;size:128" json:"session_id"`
	VisitorID string  `gorm:"index;size:128" json:"visitor_id"`
	URL       string  `gorm:"not null" json:"url"`
	Referrer  *string `json:"referrer"`

	UserAgent        *string `json:"user_agent"`
	ScreenResolution *string `json:"screen_resolution"`
	Language         *string `json:"language"`
	DeviceType       *string `json:"device_type"`
	BrowserName      *string `json:"browser_name"`
	BrowserVersion   *string `json:"browser_version"`
	OSName           *string `gorm:"column:os_name" json:"os_name"`
	OSVersion        *string `gorm:"column:os_version" json:"os_version"`
	IsMobile         *bool   `json:"is_mobile"`
	Timezone         *string `json:"timezone"`

	UTMSource   *string `json:"utm_source"`
	UTMMedium   *string `json:"utm_medium"`
	UTMCampaign *string `json:"utm_campaign"`
	UTMTerm     *string `json:"utm_term"`
	UTMContent  *string `json:"utm_content"`

	// Milliseconds. Nil when the client could not measure them.
	PageLoadTime *float64 `json:"page_load_time"`
	TTFB         *float64 `gorm:"column:ttfb" json:"ttfb"`
	FCP          *float64 `gorm:"column:fcp" json:"fcp"`
	LCP          *float64 `gorm:"column:lcp" json:"lcp"`

	Country *string `json:"country"`
	City    *string `json:"city"`
	Region  *string `json:"region"`

	IsNewVisitor bool      `gorm:"not null" json:"is_new_visitor"`
	Timestamp    time.Time `gorm:"index:idx_pageviews_website_timestamp;not null" json:"timestamp"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event is a named occurrence with a structured payload. Rows are never updated.
type Event struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	WebsiteID string      `gorm:"index:idx_events_website_timestamp;size:128;not null" json:"website_id"`
	SessionID string      `gorm:"index;size:128" json:"session_id"`
	VisitorID string      `gorm:"index;size:128" json:"visitor_id"`
	EventName string      `gorm:"index;size:255;not null" json:"event_name"`
	EventData models.JSON `json:"event_data"`
	URL       string      `json:"url"`
	Timestamp time.Time   `gorm:"index:idx_events_website_timestamp;not null" json:"timestamp"`
	CreatedAt time.Time   `json:"created_at"`
}
