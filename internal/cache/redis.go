// Package cache provides a Redis-backed cache for generated daily reports.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/calder-health/biosense/internal/models"
)

// ReportCache stores serialized daily reports keyed by user and date.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, addr string, ttl time.Duration) (*ReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &ReportCache{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection pool.
func (c *ReportCache) Close() error {
	return c.client.Close()
}

// reportKey builds the cache key from a user ID and a YYYY-MM-DD date.
func reportKey(userID, date string) string {
	return fmt.Sprintf("report:%s:%s", userID, date)
}

// SetReport stores a daily report with the configured TTL.
func (c *ReportCache) SetReport(ctx context.Context, report *models.DailyReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	key := reportKey(report.UserID, report.Date)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report %s: %w", key, err)
	}
	return nil
}

// GetReport fetches a cached daily report. Returns nil without error on a
// cache miss.
func (c *ReportCache) GetReport(ctx context.Context, userID, date string) (*models.DailyReport, error) {
	val, err := c.client.Get(ctx, reportKey(userID, date)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}

	var report models.DailyReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}
	return &report, nil
}

// InvalidateReport removes a cached report, typically after a re-run of the
// analysis for that day.
func (c *ReportCache) InvalidateReport(ctx context.Context, userID, date string) error {
	return c.client.Del(ctx, reportKey(userID, date)).Err()
}
