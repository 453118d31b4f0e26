package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/time/rate"

	"sitetrack/internal"
	"sitetrack/pkg/tracker"
)

var simulatedReferrers = []string{
	"",
	"https://www.google.com/",
	"https://news.ycombinator.com/",
	"https://twitter.com/",
}

var simulatedPaths = []string{"/", "/pricing", "/docs", "/blog", "/about", "/docs/getting-started"}

// SimulateCommand drives the tracker SDK against a running server.
type SimulateCommand struct{}

func (c *SimulateCommand) Name() string        { return "simulate" }
func (c *SimulateCommand) Description() string { return "Sends simulated visits to a running server" }
func (c *SimulateCommand) Standalone() bool    { return true }

func (c *SimulateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	endpoint := fs.String("endpoint", "http://localhost:3000", "ingestion server base URL")
	website := fs.String("website", "", "website id to report under")
	site := fs.String("site", "https://example.com", "origin of the simulated pages")
	visitors := fs.Int("visitors", 5, "number of simulated visitors")
	pages := fs.Int("pages", 3, "pages viewed per visitor")
	dwell := fs.Duration("dwell", 20*time.Second, "simulated time spent on each page")
	rps := fs.Float64("rps", 10, "maximum pageviews per second")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *website == "" {
		return errors.New("-website is required")
	}
	if *visitors <= 0 || *pages <= 0 {
		return errors.New("-visitors and -pages must be positive")
	}

	transport := tracker.NewHTTPTransport(*endpoint, slog.Default(),
		tracker.WithRequestUserAgent("trackctl-simulate"),
		tracker.WithCircuitBreaker(5, 30*time.Second))

	sim := &simulation{
		websiteID: *website,
		site:      strings.TrimRight(*site, "/"),
		transport: transport,
		pages:     *pages,
		dwell:     *dwell,
		limiter:   rate.NewLimiter(rate.Limit(*rps), 1),
	}

	log.Printf("Simulating %d visitors with %d pages each against %s", *visitors, *pages, *endpoint)
	for i := 0; i < *visitors; i++ {
		if err := sim.visit(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

type simulation struct {
	websiteID string
	site      string
	transport tracker.Transport
	pages     int
	dwell     time.Duration
	limiter   *rate.Limiter
}

// visit walks one visitor through the configured number of pages on a clock
// that advances by dwell per page, ending in the past.
func (s *simulation) visit(ctx context.Context, n int) error {
	clk := &simulatedClock{now: time.Now().Add(-time.Duration(s.pages) * s.dwell)}

	env := tracker.NewStaticEnvironment(tracker.StaticEnvironmentOptions{
		Location:         s.site + "/?utm_source=simulate",
		Referrer:         simulatedReferrers[n%len(simulatedReferrers)],
		UserAgent:        gofakeit.UserAgent(),
		ScreenResolution: "1920x1080",
		Language:         "en-US",
		Timezone:         "UTC",
		Navigation:       &tracker.NavigationTiming{LoadTime: 420 * time.Millisecond, TTFB: 80 * time.Millisecond},
	})

	client, err := tracker.New(tracker.Config{
		WebsiteID:   s.websiteID,
		Transport:   s.transport,
		Environment: env,
		Logger:      slog.Default(),
		Clock:       clk.Now,
	})
	if err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}

	for p := 0; p < s.pages; p++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if p > 0 {
			env.Navigate(s.site + simulatedPaths[(n+p)%len(simulatedPaths)])
		}
		client.SendPageview("")
		client.OnScroll(rand.IntN(101))
		clk.Advance(s.dwell)
	}

	client.SendTimeOnPage()
	client.Flush()
	return nil
}

type simulatedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simulatedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
