package user_agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack/internal/pkg/user_agent"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name           string
		userAgent      string
		device         string
		browser        string
		browserVersion string
		os             string
		osVersion      string
		mobile         bool
	}{
		{
			name:           "Chrome on Windows",
			userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			device:         user_agent.DeviceDesktop,
			browser:        "Chrome",
			browserVersion: "91.0.4472.124",
			os:             "Windows",
			osVersion:      "10.0",
		},
		{
			name:           "Edge wins over Chrome",
			userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36 Edg/91.0.864.59",
			device:         user_agent.DeviceDesktop,
			browser:        "Edge",
			browserVersion: "91.0.864.59",
			os:             "Windows",
			osVersion:      "10.0",
		},
		{
			name:           "Safari on iPhone",
			userAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			device:         user_agent.DeviceMobile,
			browser:        "Safari",
			browserVersion: "14.0",
			os:             "iOS",
			osVersion:      "14.6",
			mobile:         true,
		},
		{
			name:           "Chrome on Android phone",
			userAgent:      "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			device:         user_agent.DeviceMobile,
			browser:        "Chrome",
			browserVersion: "91.0.4472.120",
			os:             "Android",
			osVersion:      "11",
			mobile:         true,
		},
		{
			name:           "Android tablet without the Mobile token",
			userAgent:      "Mozilla/5.0 (Linux; Android 11; SM-T870) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Safari/537.36",
			device:         user_agent.DeviceTablet,
			browser:        "Chrome",
			browserVersion: "91.0.4472.120",
			os:             "Android",
			osVersion:      "11",
			mobile:         true,
		},
		{
			name:           "Safari on iPad is a tablet even though it says Mobile",
			userAgent:      "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			device:         user_agent.DeviceTablet,
			browser:        "Safari",
			browserVersion: "14.0",
			os:             "iPadOS",
			osVersion:      "14.6",
			mobile:         true,
		},
		{
			name:           "Firefox on macOS",
			userAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:89.0) Gecko/20100101 Firefox/89.0",
			device:         user_agent.DeviceDesktop,
			browser:        "Firefox",
			browserVersion: "89.0",
			os:             "macOS",
			osVersion:      "10.15",
		},
		{
			name:           "Safari on macOS",
			userAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
			device:         user_agent.DeviceDesktop,
			browser:        "Safari",
			browserVersion: "14.1.1",
			os:             "macOS",
			osVersion:      "10.15.7",
		},
		{
			name:           "Firefox on Linux",
			userAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:89.0) Gecko/20100101 Firefox/89.0",
			device:         user_agent.DeviceDesktop,
			browser:        "Firefox",
			browserVersion: "89.0",
			os:             "Linux",
		},
		{
			name:      "empty agent",
			userAgent: "",
			device:    user_agent.DeviceDesktop,
			browser:   user_agent.Unknown,
			os:        user_agent.Unknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.Classify(tc.userAgent)

			assert.Equal(t, tc.device, result.DeviceType)
			assert.Equal(t, tc.browser, result.BrowserName)
			assert.Equal(t, tc.browserVersion, result.BrowserVersion)
			assert.Equal(t, tc.os, result.OSName)
			assert.Equal(t, tc.osVersion, result.OSVersion)
			assert.Equal(t, tc.mobile, result.IsMobile)
		})
	}
}

func TestRuleOrder(t *testing.T) {
	rules := []byte(`
browsers:
  - name: Exact
    regex: 'Acme/(\d+)'
    version: 'v$1'
  - name: Generic
    regex: 'Ac'
`)

	rs, err := user_agent.LoadRules(rules)
	require.NoError(t, err)

	t.Run("first matching rule wins", func(t *testing.T) {
		rule, version, ok := rs.Match(rs.Browsers, "Agent Acme/42")
		require.True(t, ok)
		assert.Equal(t, "Exact", rule.Name)
		assert.Equal(t, "v42", version)
	})

	t.Run("later rule still matches when earlier ones do not", func(t *testing.T) {
		rule, version, ok := rs.Match(rs.Browsers, "Acorn")
		require.True(t, ok)
		assert.Equal(t, "Generic", rule.Name)
		assert.Empty(t, version)
	})

	t.Run("no match", func(t *testing.T) {
		_, _, ok := rs.Match(rs.Browsers, "curl/8.0")
		assert.False(t, ok)
	})
}

func TestLoadRulesRejectsBadPatterns(t *testing.T) {
	_, err := user_agent.LoadRules([]byte("devices:\n  - name: broken\n    regex: '(unclosed'\n"))
	assert.Error(t, err)

	_, err = user_agent.LoadRules([]byte("browsers:\n  - regex: 'x'\n"))
	assert.Error(t, err)
}

func TestDefaultRulesAreOrdered(t *testing.T) {
	rs := user_agent.Default()

	indexOf := func(rules []user_agent.Rule, name string) int {
		for i, r := range rules {
			if r.Name == name {
				return i
			}
		}
		return -1
	}

	assert.Less(t, indexOf(rs.Browsers, "Edge"), indexOf(rs.Browsers, "Chrome"))
	assert.Less(t, indexOf(rs.Browsers, "Chrome"), indexOf(rs.Browsers, "Safari"))
	assert.Less(t, indexOf(rs.Devices, user_agent.DeviceTablet), indexOf(rs.Devices, user_agent.DeviceMobile))
	assert.Less(t, indexOf(rs.OperatingSystems, "iOS"), indexOf(rs.OperatingSystems, "macOS"))
	assert.Less(t, indexOf(rs.OperatingSystems, "Android"), indexOf(rs.OperatingSystems, "Linux"))
}
