// Package analytics derives dashboard statistics from stored records on demand.
package analytics

import (
	"math"

	"sitetrack/internal/events"
	"sitetrack/internal/sessions"
)

// MetricsSummary holds the headline numbers for one website and range.
type MetricsSummary struct {
	UniqueVisitors     int     `json:"unique_visitors"`
	NewVisitors        int     `json:"new_visitors"`
	ReturningVisitors  int     `json:"returning_visitors"`
	BounceRate         float64 `json:"bounce_rate"`
	AvgSessionDuration int     `json:"avg_session_duration"`
	PagesPerSession    float64 `json:"pages_per_session"`
	TotalPageviews     int     `json:"total_pageviews"`
	TotalEvents        int     `json:"total_events"`
	TotalSessions      int     `json:"total_sessions"`
}

// Summarize computes a MetricsSummary over an already matched record set.
//
// ReturningVisitors is unique minus new visitors within the set. "New" is a
// per-pageview flag set when the signal was sent, so the figure is an
// approximation and can go negative when one visitor is counted as new more
// than once.
func Summarize(pageviews []events.Pageview, list []sessions.Session, evs []events.Event) MetricsSummary {
	summary := MetricsSummary{
		TotalPageviews: len(pageviews),
		TotalEvents:    len(evs),
		TotalSessions:  len(list),
	}

	unique := make(map[string]struct{}, len(pageviews))
	for _, pv := range pageviews {
		unique[pv.VisitorID] = struct{}{}
		if pv.IsNewVisitor {
			summary.NewVisitors++
		}
	}
	summary.UniqueVisitors = len(unique)
	summary.ReturningVisitors = summary.UniqueVisitors - summary.NewVisitors

	if len(list) == 0 {
		return summary
	}

	var bounced, totalDuration int
	for _, s := range list {
		if s.IsBounce {
			bounced++
		}
		if s.Duration != nil {
			totalDuration += *s.Duration
		}
	}

	n := float64(len(list))
	summary.BounceRate = round2(float64(bounced) / n * 100)
	summary.AvgSessionDuration = int(math.Round(float64(totalDuration) / n))
	summary.PagesPerSession = round2(float64(len(pageviews)) / n)
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
