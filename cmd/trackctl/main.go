// main.go - Admin control tool for sitetrack
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitetrack/internal"
	"sitetrack/internal/config"
	"sitetrack/internal/events"
	"sitetrack/internal/jobs"
	"sitetrack/internal/metrics"
	"sitetrack/internal/sessions"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// standalone is implemented by commands that never touch the local database.
type standalone interface {
	Standalone() bool
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&StatusCommand{},
	&CleanupCommand{},
	&UpdateGeoDBCommand{},
	&SimulateCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var app *internal.Application
	if s, ok := cmd.(standalone); !ok || !s.Standalone() {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Printf("Warning: Failed to initialize app: %v", err)
			log.Println("Proceeding with limited functionality...")
		}
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// StatusCommand prints row counts and connection pool statistics.
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection().WithContext(ctx)

	var sessionCount, pageviewCount, eventCount int64
	if err := db.Model(&sessions.Session{}).Count(&sessionCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&events.Pageview{}).Count(&pageviewCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&events.Event{}).Count(&eventCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Sessions: %d", sessionCount)
	log.Printf("- Pageviews: %d", pageviewCount)
	log.Printf("- Events: %d", eventCount)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)

	return nil
}

// CleanupCommand purges stale heartbeats once, outside the scheduler.
type CleanupCommand struct{}

func (c *CleanupCommand) Name() string        { return "cleanup" }
func (c *CleanupCommand) Description() string { return "Purges heartbeats past the retention period" }

func (c *CleanupCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run cleanup")
	}
	job := jobs.NewCleanupJob(app.DBManager, slog.Default(), config.GetConfig(), metrics.Default())
	return job.Run(ctx)
}

// UpdateGeoDBCommand refreshes the GeoLite2 database when it is stale.
type UpdateGeoDBCommand struct{}

func (c *UpdateGeoDBCommand) Name() string        { return "update-geodb" }
func (c *UpdateGeoDBCommand) Description() string { return "Downloads the GeoLite2 database if stale" }
func (c *UpdateGeoDBCommand) Standalone() bool    { return true }

func (c *UpdateGeoDBCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	return jobs.NewGeoLiteUpdaterJob(slog.Default(), config.GetConfig()).Run(ctx)
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }
func (c *HelpCommand) Standalone() bool    { return true }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: trackctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
