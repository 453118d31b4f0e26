package tracker

import "sync"

// StaticEnvironment is an Environment whose values are set by the host
// program. Navigate changes the location the way a router would. Safe for
// concurrent use.
type StaticEnvironment struct {
	mu sync.RWMutex

	location   string
	referrer   string
	userAgent  string
	screen     string
	language   string
	timezone   string
	navigation *NavigationTiming
	paint      *PaintTiming
}

// StaticEnvironmentOptions seeds a StaticEnvironment.
type StaticEnvironmentOptions struct {
	Location         string
	Referrer         string
	UserAgent        string
	ScreenResolution string
	Language         string
	Timezone         string
	Navigation       *NavigationTiming
	Paint            *PaintTiming
}

// NewStaticEnvironment creates an environment from opts.
func NewStaticEnvironment(opts StaticEnvironmentOptions) *StaticEnvironment {
	return &StaticEnvironment{
		location:   opts.Location,
		referrer:   opts.Referrer,
		userAgent:  opts.UserAgent,
		screen:     opts.ScreenResolution,
		language:   opts.Language,
		timezone:   opts.Timezone,
		navigation: opts.Navigation,
		paint:      opts.Paint,
	}
}

// Navigate moves to location and makes the old one the referrer.
func (e *StaticEnvironment) Navigate(location string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.referrer = e.location
	e.location = location
	e.navigation = nil
	e.paint = nil
}

func (e *StaticEnvironment) Location() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.location
}

func (e *StaticEnvironment) Referrer() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.referrer
}

func (e *StaticEnvironment) UserAgent() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userAgent
}

func (e *StaticEnvironment) ScreenResolution() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.screen
}

func (e *StaticEnvironment) Language() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.language
}

func (e *StaticEnvironment) Timezone() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.timezone
}

func (e *StaticEnvironment) NavigationTiming() (NavigationTiming, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.navigation == nil {
		return NavigationTiming{}, false
	}
	return *e.navigation, true
}

func (e *StaticEnvironment) PaintTiming() (PaintTiming, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.paint == nil {
		return PaintTiming{}, false
	}
	return *e.paint, true
}
