package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// FallbackID derives a visitor id for signals that arrive without one.
// The hash mixes the website, client address and user agent with a salt and
// the UTC day of at, so the id rotates at midnight and the address itself is
// never persisted.
func FallbackID(websiteID, ipAddress, userAgent, salt string, at time.Time) string {
	day := at.UTC().Format("2006-01-02")
	data := strings.Join([]string{day, salt, websiteID, ipAddress, userAgent}, ".")

	sum := sha256.Sum256([]byte(data))
	return "vis_" + hex.EncodeToString(sum[:16])
}
