package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type sent struct {
	Path   string
	Beacon bool
	Body   map[string]interface{}
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []sent
	err   error
}

func (f *fakeTransport) Send(_ context.Context, path string, payload interface{}) error {
	f.record(path, payload, false)
	return f.err
}

func (f *fakeTransport) record(path string, payload interface{}, beacon bool) {
	data, _ := json.Marshal(payload)
	var body map[string]interface{}
	_ = json.Unmarshal(data, &body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{Path: path, Beacon: beacon, Body: body})
}

func (f *fakeTransport) sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

func (f *fakeTransport) events(name string) []sent {
	var out []sent
	for _, s := range f.sent() {
		if s.Body["event_name"] == name {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTransport) pageviews() []sent {
	var out []sent
	for _, s := range f.sent() {
		if s.Path == PathPageview {
			out = append(out, s)
		}
	}
	return out
}

type beaconTransport struct {
	fakeTransport
}

func (b *beaconTransport) Beacon(path string, payload interface{}) {
	b.record(path, payload, true)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingStorage struct{}

var errStorage = errors.New("storage unavailable")

func (failingStorage) Get(string) (string, bool, error) { return "", false, errStorage }
func (failingStorage) Set(string, string) error         { return errStorage }

// panickyEnvironment panics on every facility except location.
type panickyEnvironment struct{ location string }

func (p panickyEnvironment) Location() string                         { return p.location }
func (panickyEnvironment) Referrer() string                           { panic("no document") }
func (panickyEnvironment) UserAgent() string                          { panic("no navigator") }
func (panickyEnvironment) ScreenResolution() string                   { panic("no screen") }
func (panickyEnvironment) Language() string                           { panic("no navigator") }
func (panickyEnvironment) Timezone() string                           { panic("no Intl") }
func (panickyEnvironment) NavigationTiming() (NavigationTiming, bool) { panic("no performance") }
func (panickyEnvironment) PaintTiming() (PaintTiming, bool)           { panic("no performance") }
