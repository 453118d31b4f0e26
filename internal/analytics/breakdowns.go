package analytics

import (
	"net/url"
	"sort"
	"strings"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitetrack/internal/events"
	"sitetrack/internal/pkg/geoip"
	"sitetrack/internal/pkg/referrers"
	"sitetrack/internal/pkg/user_agent"
)

// DefaultLimit caps each breakdown list.
const DefaultLimit = 10

// MetricCountResult is one row of a breakdown.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Breakdowns groups the top values of each dimension. Pages count pageviews;
// every other dimension counts distinct visitors.
type Breakdowns struct {
	Countries []MetricCountResult `json:"countries"`
	Devices   []MetricCountResult `json:"devices"`
	Browsers  []MetricCountResult `json:"browsers"`
	Pages     []MetricCountResult `json:"pages"`
	Referrers []MetricCountResult `json:"referrers"`
}

var countries = gountries.New()

// Breakdown computes every dimension over the matched pageviews.
func Breakdown(pageviews []events.Pageview, limit int) Breakdowns {
	if limit <= 0 {
		limit = DefaultLimit
	}

	countryVisitors := newCounter()
	deviceVisitors := newCounter()
	browserVisitors := newCounter()
	referrerVisitors := newCounter()
	pageViews := newCounter()

	for _, pv := range pageviews {
		countryVisitors.addVisitor(valueOr(pv.Country, geoip.CountryUnknown), pv.VisitorID)
		deviceVisitors.addVisitor(valueOr(pv.DeviceType, user_agent.Unknown), pv.VisitorID)
		browserVisitors.addVisitor(valueOr(pv.BrowserName, user_agent.Unknown), pv.VisitorID)
		referrerVisitors.addVisitor(referrers.Source(valueOr(pv.Referrer, ""), pv.URL), pv.VisitorID)
		pageViews.add(pagePath(pv.URL))
	}

	return Breakdowns{
		Countries: convertCountryStats(countryVisitors.top(limit)),
		Devices:   convertDeviceStats(deviceVisitors.top(limit)),
		Browsers:  browserVisitors.top(limit),
		Pages:     pageViews.top(limit),
		Referrers: referrerVisitors.top(limit),
	}
}

// CountryName turns an ISO 3166 alpha code into its common English name.
// Sentinels pass through; unknown codes are upper-cased.
func CountryName(code string) string {
	switch code {
	case "":
		return geoip.CountryUnknown
	case geoip.CountryLocal, geoip.CountryUnknown:
		return code
	}
	country, err := countries.FindCountryByAlpha(code)
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(code)
	}
	return country.Name.Common
}

func convertCountryStats(items []MetricCountResult) []MetricCountResult {
	result := make([]MetricCountResult, 0, len(items))
	for _, item := range items {
		result = append(result, MetricCountResult{Name: CountryName(item.Name), Count: item.Count})
	}
	return result
}

func convertDeviceStats(items []MetricCountResult) []MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)
	result := make([]MetricCountResult, 0, len(items))
	for _, item := range items {
		result = append(result, MetricCountResult{Name: caser.String(item.Name), Count: item.Count})
	}
	return result
}

func pagePath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		if strings.HasPrefix(raw, "/") {
			return raw
		}
		return "/"
	}
	return parsed.Path
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

type counter struct {
	counts   map[string]int
	visitors map[string]map[string]struct{}
}

func newCounter() *counter {
	return &counter{
		counts:   make(map[string]int),
		visitors: make(map[string]map[string]struct{}),
	}
}

func (c *counter) add(name string) {
	c.counts[name]++
}

func (c *counter) addVisitor(name, visitorID string) {
	set, ok := c.visitors[name]
	if !ok {
		set = make(map[string]struct{})
		c.visitors[name] = set
	}
	if _, seen := set[visitorID]; !seen {
		set[visitorID] = struct{}{}
		c.counts[name]++
	}
}

// top returns the highest counts, ties broken by name.
func (c *counter) top(limit int) []MetricCountResult {
	result := make([]MetricCountResult, 0, len(c.counts))
	for name, count := range c.counts {
		result = append(result, MetricCountResult{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}
