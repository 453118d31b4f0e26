package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventData(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		raw     string
		want    EventData
		wantErr bool
	}{
		{
			name:  "heartbeat",
			event: NameHeartbeat,
			raw:   `{"page":"/docs","time_on_page":31,"scroll_depth":40}`,
			want:  HeartbeatData{Page: "/docs", TimeOnPage: 31, ScrollDepth: 40},
		},
		{
			name:  "time on page",
			event: NameTimeOnPage,
			raw:   `{"time_on_page":12,"scroll_depth":75}`,
			want:  TimeOnPageData{TimeOnPage: 12, ScrollDepth: 75},
		},
		{
			name:  "scroll milestone",
			event: NameScrollDepth,
			raw:   `{"depth":50}`,
			want:  ScrollDepthData{Depth: 50},
		},
		{
			name:    "scroll milestone out of range",
			event:   NameScrollDepth,
			raw:     `{"depth":150}`,
			wantErr: true,
		},
		{
			name:  "outbound click",
			event: NameOutboundClick,
			raw:   `{"url":"https://example.org/"}`,
			want:  OutboundClickData{URL: "https://example.org/"},
		},
		{
			name:  "page visible without payload",
			event: NamePageVisible,
			raw:   ``,
			want:  PageVisibleData{},
		},
		{
			name:  "null payload gives zero variant",
			event: NameHeartbeat,
			raw:   `null`,
			want:  HeartbeatData{},
		},
		{
			name:    "wrong field type",
			event:   NameTimeOnPage,
			raw:     `{"time_on_page":"long"}`,
			wantErr: true,
		},
		{
			name:  "custom event keeps arbitrary fields",
			event: "signup",
			raw:   `{"plan":"pro","seats":3}`,
			want:  CustomData{Name: "signup", Fields: map[string]interface{}{"plan": "pro", "seats": float64(3)}},
		},
		{
			name:    "custom event must be an object",
			event:   "signup",
			raw:     `[1,2]`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			event:   NameHeartbeat,
			raw:     `{"page":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventData(tt.event, []byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSignal)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.event, got.EventName())
		})
	}
}

func TestEncodeEventData(t *testing.T) {
	encoded, err := EncodeEventData(CustomData{Name: "signup"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(encoded))

	encoded, err = EncodeEventData(HeartbeatData{Page: "/a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":"/a","time_on_page":0,"scroll_depth":0}`, string(encoded))
}
