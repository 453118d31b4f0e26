// Package internal wires the sitetrack server together.
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"sitetrack/internal/config"
	"sitetrack/internal/database"
	"sitetrack/internal/jobs"
	"sitetrack/internal/pkg/geoip"
)

// Application wraps cartridge.Application with the migration-aware DB manager.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
}

// NewApp creates a new application from the process configuration.
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithRoutes(cfg, MountAppRoutes)
}

// NewAppWithRoutes creates a new application with a custom route mounting function.
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)
	geoip.InitLogger(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	scheduler := jobs.NewScheduler(dbManager, logger, cfg)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		ServerConfig:      NewServerConfig(cfg),
		RouteMountFunc:    routeMount,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
	}, nil
}
