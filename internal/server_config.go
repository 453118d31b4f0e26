package internal

import (
	"github.com/karloscodes/cartridge"

	"sitetrack/internal/config"
)

// NewServerConfig returns the cartridge server settings for the tracker.
//
// The global Sec-Fetch-Site check is off: tracking signals arrive cross-site
// from browsers and without the header at all from server-side SDK hosts, and
// no route authenticates with cookies. There are no templates or static assets
// to serve.
func NewServerConfig(cfg *config.Config) *cartridge.ServerConfig {
	serverCfg := cartridge.DefaultServerConfig()
	serverCfg.EnableSecFetchSite = false
	serverCfg.EnableTemplates = false
	serverCfg.EnableStaticAssets = false
	serverCfg.Config = cfg
	return serverCfg
}
