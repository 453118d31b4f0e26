package tracker

import (
	"math"
	"time"
)

// ScrollMilestones are reported once each per page.
var ScrollMilestones = []int{25, 50, 75, 100}

// PageContext tracks one page view: where, since when and how far down the
// visitor scrolled. A new context is built on every navigation. It is not
// safe for concurrent use; the Client guards it.
type PageContext struct {
	URL       string
	StartedAt time.Time

	maxScroll int
	fired     map[int]bool
}

// NewPageContext starts tracking url at start.
func NewPageContext(url string, start time.Time) *PageContext {
	return &PageContext{URL: url, StartedAt: start, fired: make(map[int]bool, len(ScrollMilestones))}
}

// RecordScroll updates the maximum scroll depth and returns the milestones
// crossed for the first time, in ascending order.
func (p *PageContext) RecordScroll(percent int) []int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > p.maxScroll {
		p.maxScroll = percent
	}

	var crossed []int
	for _, milestone := range ScrollMilestones {
		if p.maxScroll >= milestone && !p.fired[milestone] {
			p.fired[milestone] = true
			crossed = append(crossed, milestone)
		}
	}
	return crossed
}

// MaxScroll is the deepest scroll percentage seen on this page.
func (p *PageContext) MaxScroll() int {
	return p.maxScroll
}

// TimeOnPage is the whole seconds elapsed since the page started.
func (p *PageContext) TimeOnPage(now time.Time) int {
	elapsed := now.Sub(p.StartedAt).Seconds()
	if elapsed < 0 {
		return 0
	}
	return int(math.Round(elapsed))
}
