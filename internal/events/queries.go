package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"sitetrack/internal/models"
	"sitetrack/internal/timeframe"
)

// ListPageviews returns a website's pageviews with timestamp in r, newest first.
func ListPageviews(ctx context.Context, db *gorm.DB, websiteID string, r timeframe.Range) ([]Pageview, error) {
	var list []Pageview
	err := db.WithContext(ctx).
		Where("website_id = ?", websiteID).
		Scopes(r.Scope("timestamp")).
		Order("timestamp DESC").
		Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list pageviews: %w", err)
	}
	return list, nil
}

// ListEvents returns a website's events with timestamp in r, newest first.
func ListEvents(ctx context.Context, db *gorm.DB, websiteID string, r timeframe.Range) ([]Event, error) {
	var list []Event
	err := db.WithContext(ctx).
		Where("website_id = ?", websiteID).
		Scopes(r.Scope("timestamp")).
		Order("timestamp DESC").
		Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return list, nil
}

// RecentHeartbeats returns heartbeat events of a website received in
// [since, until], newest first.
func RecentHeartbeats(ctx context.Context, db *gorm.DB, websiteID string, since, until time.Time) ([]Event, error) {
	var list []Event
	err := db.WithContext(ctx).
		Where("website_id = ? AND event_name = ?", websiteID, NameHeartbeat).
		Where("timestamp >= ? AND timestamp <= ?", since.UTC(), until.UTC()).
		Order("timestamp DESC").
		Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list heartbeats: %w", err)
	}
	return list, nil
}

// PurgeHeartbeats deletes heartbeat events older than cutoff in batches and
// returns how many rows were removed. Other events are kept forever.
func PurgeHeartbeats(ctx context.Context, db *gorm.DB, logger *slog.Logger, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var deleted int64
		err := models.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
			result := tx.Exec(
				`DELETE FROM events WHERE id IN (
					SELECT id FROM events WHERE event_name = ? AND timestamp < ? LIMIT ?
				)`, NameHeartbeat, cutoff.UTC(), batchSize)
			deleted = result.RowsAffected
			return result.Error
		})
		if err != nil {
			return total, fmt.Errorf("purge heartbeats: %w", err)
		}

		total += deleted
		if deleted < int64(batchSize) {
			return total, nil
		}
	}
}
