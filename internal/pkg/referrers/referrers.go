// Package referrers turns raw referrer URLs into traffic source labels.
package referrers

import (
	"net/url"
	"strings"
)

// Direct labels traffic without an external referrer.
const Direct = "Direct"

// sources maps a display name to the hostnames that identify it.
var sources = map[string][]string{
	"Google":         {"google.com", "google.co.uk", "google.de", "google.fr", "google.es", "google.it", "google.ca", "google.com.au", "google.co.jp", "google.com.br"},
	"Bing":           {"bing.com"},
	"DuckDuckGo":     {"duckduckgo.com"},
	"Yahoo":          {"yahoo.com", "search.yahoo.com"},
	"Baidu":          {"baidu.com"},
	"Yandex":         {"yandex.ru", "yandex.com"},
	"Ecosia":         {"ecosia.org"},
	"Kagi":           {"kagi.com"},
	"X/Twitter":      {"x.com", "twitter.com", "t.co"},
	"Facebook":       {"facebook.com", "fb.com", "l.facebook.com", "lm.facebook.com"},
	"Instagram":      {"instagram.com", "l.instagram.com"},
	"LinkedIn":       {"linkedin.com", "lnkd.in"},
	"Reddit":         {"reddit.com", "old.reddit.com"},
	"YouTube":        {"youtube.com", "youtu.be"},
	"TikTok":         {"tiktok.com"},
	"Pinterest":      {"pinterest.com"},
	"Bluesky":        {"bsky.app"},
	"Mastodon":       {"mastodon.social"},
	"Threads":        {"threads.net"},
	"Hacker News":    {"news.ycombinator.com", "hn.algolia.com"},
	"Lobsters":       {"lobste.rs"},
	"Product Hunt":   {"producthunt.com"},
	"DEV Community":  {"dev.to"},
	"Medium":         {"medium.com"},
	"Substack":       {"substack.com"},
	"GitHub":         {"github.com"},
	"GitLab":         {"gitlab.com"},
	"Stack Overflow": {"stackoverflow.com"},
	"Gmail":          {"mail.google.com"},
	"Outlook":        {"outlook.live.com", "outlook.office.com"},
	"Proton Mail":    {"protonmail.com", "mail.proton.me"},
	"Bitly":          {"bit.ly"},
}

var knownHosts = func() map[string]string {
	hosts := make(map[string]string)
	for name, list := range sources {
		for _, host := range list {
			hosts[host] = name
		}
	}
	return hosts
}()

// Source labels the referrer of a pageview at pageURL. Empty referrers, the
// "direct" marker sent by older tags and same-host navigation are Direct.
func Source(referrer, pageURL string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" || strings.EqualFold(referrer, "direct") {
		return Direct
	}

	ref, err := url.Parse(referrer)
	if err != nil || ref.Hostname() == "" {
		return Direct
	}

	refHost := strings.TrimPrefix(strings.ToLower(ref.Hostname()), "www.")
	if page, err := url.Parse(pageURL); err == nil {
		pageHost := strings.TrimPrefix(strings.ToLower(page.Hostname()), "www.")
		if pageHost != "" && pageHost == refHost {
			return Direct
		}
	}

	return FriendlyName(refHost)
}

// FriendlyName returns a display name for a referrer hostname. Unknown hosts
// are returned without the www. prefix.
func FriendlyName(hostname string) string {
	hostname = strings.TrimPrefix(strings.ToLower(hostname), "www.")

	if name, ok := knownHosts[hostname]; ok {
		return name
	}

	// Subdomains of known hosts, e.g. en.m.youtube.com. Longest suffix wins.
	best, bestLen := "", 0
	for host, name := range knownHosts {
		if len(host) > bestLen && strings.HasSuffix(hostname, "."+host) {
			best, bestLen = name, len(host)
		}
	}
	if best != "" {
		return best
	}

	return hostname
}
