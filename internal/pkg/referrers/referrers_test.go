package referrers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		{"google.com", "Google"},
		{"news.ycombinator.com", "Hacker News"},
		{"t.co", "X/Twitter"},
		{"www.reddit.com", "Reddit"},
		{"m.facebook.com", "Facebook"},
		{"inbox.mail.google.com", "Gmail"},
		{"GOOGLE.COM", "Google"},
		{"www.example.com", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.expected, FriendlyName(tt.hostname))
		})
	}
}

func TestSource(t *testing.T) {
	tests := []struct {
		name     string
		referrer string
		page     string
		expected string
	}{
		{"empty referrer", "", "https://example.com/", Direct},
		{"direct marker", "direct", "https://example.com/", Direct},
		{"same host", "https://www.example.com/a", "https://example.com/b", Direct},
		{"search engine", "https://www.google.com/search?q=x", "https://example.com/", "Google"},
		{"unknown site", "https://blog.other.org/post", "https://example.com/", "blog.other.org"},
		{"not a url", "::::", "https://example.com/", Direct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Source(tt.referrer, tt.page))
		})
	}
}
