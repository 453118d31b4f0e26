package geoip_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"sitetrack/internal/pkg/geoip"
)

func TestResolve(t *testing.T) {
	lookups := 0
	locator := geoip.LocatorFunc(func(ip net.IP) (geoip.Location, bool) {
		lookups++
		if ip.String() == "81.2.69.142" {
			return geoip.Location{Country: "GB", City: "London", Region: "ENG"}, true
		}
		return geoip.Location{}, false
	})

	tests := []struct {
		name    string
		address string
		want    geoip.Location
	}{
		{name: "public address found", address: "81.2.69.142", want: geoip.Location{Country: "GB", City: "London", Region: "ENG"}},
		{name: "ipv4 mapped ipv6 is unwrapped", address: "::ffff:81.2.69.142", want: geoip.Location{Country: "GB", City: "London", Region: "ENG"}},
		{name: "public address missing from database", address: "203.0.113.7", want: geoip.Location{Country: geoip.CountryUnknown}},
		{name: "loopback v4", address: "127.0.0.1", want: geoip.Location{Country: geoip.CountryLocal}},
		{name: "loopback v6", address: "::1", want: geoip.Location{Country: geoip.CountryLocal}},
		{name: "rfc1918 class c", address: "192.168.1.10", want: geoip.Location{Country: geoip.CountryLocal}},
		{name: "rfc1918 class a", address: "10.1.2.3", want: geoip.Location{Country: geoip.CountryLocal}},
		{name: "mapped private", address: "::ffff:192.168.1.1", want: geoip.Location{Country: geoip.CountryLocal}},
		{name: "empty", address: "", want: geoip.Location{Country: geoip.CountryLocal}},
		{name: "garbage", address: "not-an-ip", want: geoip.Location{Country: geoip.CountryUnknown}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, geoip.Resolve(locator, tc.address))
		})
	}

	t.Run("private addresses never reach the locator", func(t *testing.T) {
		before := lookups
		geoip.Resolve(locator, "10.0.0.1")
		assert.Equal(t, before, lookups)
	})

	t.Run("nil locator", func(t *testing.T) {
		assert.Equal(t, geoip.Location{Country: geoip.CountryUnknown}, geoip.Resolve(nil, "81.2.69.142"))
	})
}

func TestReaderLocatorWithoutDatabase(t *testing.T) {
	loc, ok := geoip.NewReaderLocator(nil).Locate(net.ParseIP("81.2.69.142"))
	assert.False(t, ok)
	assert.Empty(t, loc.Country)
}
