package geoip

import (
	"log/slog"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"sitetrack/internal/config"
)

// Country values that are not ISO codes.
const (
	CountryLocal   = "Local"
	CountryUnknown = "Unknown"
)

// Location is the geo attribution of a client address. City and Region are
// empty when the lookup does not resolve them.
type Location struct {
	Country string
	City    string
	Region  string
}

// Locator looks up a public address. ok is false when the address is not in the database.
type Locator interface {
	Locate(ip net.IP) (loc Location, ok bool)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ip net.IP) (Location, bool)

// Locate calls f(ip).
func (f LocatorFunc) Locate(ip net.IP) (Location, bool) {
	return f(ip)
}

// Resolve maps a client address to a Location. Private and loopback addresses
// resolve to CountryLocal without city or region; anything the locator cannot
// place resolves to CountryUnknown.
func Resolve(locator Locator, address string) Location {
	ip := ParseAddress(address)
	if ip == nil {
		if strings.TrimSpace(address) == "" {
			return Location{Country: CountryLocal}
		}
		return Location{Country: CountryUnknown}
	}
	if IsPrivate(ip) {
		return Location{Country: CountryLocal}
	}
	if locator == nil {
		return Location{Country: CountryUnknown}
	}

	loc, ok := locator.Locate(ip)
	if !ok || loc.Country == "" {
		return Location{Country: CountryUnknown}
	}
	return loc
}

// ParseAddress parses an address, unwrapping IPv4-mapped IPv6 forms such as ::ffff:10.0.0.1.
func ParseAddress(address string) net.IP {
	clean := strings.TrimSpace(address)
	if clean == "" {
		return nil
	}
	addr, err := netip.ParseAddr(clean)
	if err != nil {
		return nil
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return net.IP(addr.AsSlice())
}

// IsPrivate reports loopback, RFC 1918, unique-local and link-local addresses.
func IsPrivate(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// ReaderLocator resolves addresses against a GeoLite2/GeoIP2 City database.
type ReaderLocator struct {
	reader func() *geoip2.Reader
}

// NewReaderLocator wraps a fixed reader.
func NewReaderLocator(reader *geoip2.Reader) *ReaderLocator {
	return &ReaderLocator{reader: func() *geoip2.Reader { return reader }}
}

// DefaultLocator resolves against the process-wide database, picking up reloads.
func DefaultLocator() *ReaderLocator {
	return &ReaderLocator{reader: GetGeoDB}
}

// Locate implements Locator.
func (l *ReaderLocator) Locate(ip net.IP) (Location, bool) {
	reader := l.reader()
	if reader == nil {
		return Location{}, false
	}

	record, err := reader.City(ip)
	if err != nil {
		if logger != nil {
			logger.Debug("GeoIP lookup failed", slog.String("ip", ip.String()), slog.Any("error", err))
		}
		return Location{}, false
	}
	if record.Country.IsoCode == "" || record.Country.IsoCode == "--" {
		return Location{}, false
	}

	loc := Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	return loc, true
}

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// InitGeoDB opens the configured City database.
// Returns nil if the database is not configured or not found (geo lookup is optional).
func InitGeoDB() *geoip2.Reader {
	path := config.GetConfig().GeoDBPath
	if path == "" {
		if logger != nil {
			logger.Debug("GeoIP database path not configured - lookups disabled")
		}
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if logger != nil {
			logger.Info("GeoLite2 database not available - lookups disabled",
				slog.String("path", path),
				slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", path),
				slog.Any("error", err))
		}
		return nil
	}

	if logger != nil {
		meta := db.Metadata()
		logger.Info("GeoLite2 database initialized",
			slog.String("path", path),
			slog.String("db_type", meta.DatabaseType),
			slog.Uint64("build_epoch", uint64(meta.BuildEpoch)))
	}
	return db
}

// GetGeoDB returns the process-wide database reader, opening it on first use.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = InitGeoDB()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB reopens the database from disk after it has been replaced.
func ReloadGeoDB() {
	once.Do(func() {})

	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = InitGeoDB()

	if geoDB != nil && logger != nil {
		logger.Info("GeoLite2 database reloaded")
	}
}
