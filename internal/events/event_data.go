package events

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Event names with aggregation meaning. Any other name is a custom event.
const (
	NameHeartbeat     = "heartbeat"
	NameTimeOnPage    = "time_on_page"
	NameScrollDepth   = "scroll_depth"
	NamePageVisible   = "page_visible"
	NameOutboundClick = "outbound_click"
)

// ErrInvalidSignal marks a payload that cannot be decoded for its event name.
var ErrInvalidSignal = errors.New("invalid signal")

// EventData is the payload of an event, one variant per distinguished name.
type EventData interface {
	EventName() string
}

// HeartbeatData is sent periodically while a page is open.
type HeartbeatData struct {
	Page        string `json:"page"`
	TimeOnPage  int    `json:"time_on_page"`
	ScrollDepth int    `json:"scroll_depth"`
}

func (HeartbeatData) EventName() string { return NameHeartbeat }

// TimeOnPageData is sent once when the visitor leaves a page.
type TimeOnPageData struct {
	TimeOnPage  int `json:"time_on_page"`
	ScrollDepth int `json:"scroll_depth"`
}

func (TimeOnPageData) EventName() string { return NameTimeOnPage }

// ScrollDepthData marks a scroll milestone (25, 50, 75 or 100).
type ScrollDepthData struct {
	Depth int `json:"depth"`
}

func (ScrollDepthData) EventName() string { return NameScrollDepth }

// PageVisibleData is sent when a hidden tab becomes visible again.
type PageVisibleData struct {
	Page string `json:"page,omitempty"`
}

func (PageVisibleData) EventName() string { return NamePageVisible }

// OutboundClickData records a click on a link leaving the site.
type OutboundClickData struct {
	URL string `json:"url"`
}

func (OutboundClickData) EventName() string { return NameOutboundClick }

// CustomData carries the free-form payload of a caller-defined event.
type CustomData struct {
	Name   string
	Fields map[string]interface{}
}

func (c CustomData) EventName() string { return c.Name }

// MarshalJSON encodes only the payload fields.
func (c CustomData) MarshalJSON() ([]byte, error) {
	if c.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Fields)
}

// ParseEventData decodes raw into the variant selected by name. An empty or
// null payload yields the zero variant.
func ParseEventData(name string, raw []byte) (EventData, error) {
	raw = bytes.TrimSpace(raw)
	empty := len(raw) == 0 || bytes.Equal(raw, []byte("null"))

	var data EventData
	switch name {
	case NameHeartbeat:
		v := HeartbeatData{}
		if !empty {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, invalid(name, err)
			}
		}
		data = v
	case NameTimeOnPage:
		v := TimeOnPageData{}
		if !empty {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, invalid(name, err)
			}
		}
		data = v
	case NameScrollDepth:
		v := ScrollDepthData{}
		if !empty {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, invalid(name, err)
			}
		}
		if v.Depth < 0 || v.Depth > 100 {
			return nil, fmt.Errorf("%w: scroll depth %d outside 0-100", ErrInvalidSignal, v.Depth)
		}
		data = v
	case NamePageVisible:
		v := PageVisibleData{}
		if !empty {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, invalid(name, err)
			}
		}
		data = v
	case NameOutboundClick:
		v := OutboundClickData{}
		if !empty {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, invalid(name, err)
			}
		}
		data = v
	default:
		v := CustomData{Name: name}
		if !empty {
			if raw[0] != '{' {
				return nil, fmt.Errorf("%w: event_data for %q must be a JSON object", ErrInvalidSignal, name)
			}
			if err := json.Unmarshal(raw, &v.Fields); err != nil {
				return nil, invalid(name, err)
			}
		}
		data = v
	}
	return data, nil
}

// EncodeEventData renders data in its stored form.
func EncodeEventData(data EventData) ([]byte, error) {
	return json.Marshal(data)
}

func invalid(name string, err error) error {
	return fmt.Errorf("%w: event_data for %q: %v", ErrInvalidSignal, name, err)
}
