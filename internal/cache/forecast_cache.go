// Package cache stores finished forecast series in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"admission-forecast/internal/models"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

const keyPrefix = "forecast_v2:"

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// ForecastCache is a read-through cache for forecast series.
// Redis failures are logged and treated as misses.
type ForecastCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *logging.ContextLogger
	metrics *metrics.Collector
}

// NewForecastCache wraps client; ttl <= 0 defaults to one hour
func NewForecastCache(client *redis.Client, ttl time.Duration, logger *logging.StructuredLogger, m *metrics.Collector) *ForecastCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ForecastCache{
		client:  client,
		ttl:     ttl,
		logger:  logger.WithFields(logging.Fields{"component": "forecast_cache", "ttl": ttl.String()}),
		metrics: m,
	}
}

// DaysKey identifies a RollDays request
func DaysKey(start time.Time, numDays int, b models.OperationalBaseline) string {
	return fmt.Sprintf("%sdays:%s:%d:%s", keyPrefix, start.Format(models.DateLayout), numDays, baselineKey(b))
}

// MonthKey identifies a RollMonth request
func MonthKey(year, month int, b models.OperationalBaseline) string {
	return fmt.Sprintf("%smonth:%04d-%02d:%s", keyPrefix, year, month, baselineKey(b))
}

func baselineKey(b models.OperationalBaseline) string {
	return fmt.Sprintf("%d:%d:%d:%d", b.TotalOutpatient, b.IntroOutpatient, b.ERCount, b.BedCount)
}

// Get returns the cached series for key
func (c *ForecastCache) Get(ctx context.Context, key string) (*models.ForecastSeries, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.record("miss")
			return nil, false
		}
		c.record("error")
		c.logger.Warn(ctx, "[CACHE_GET] Redis read failed, computing forecast", logging.Fields{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}

	var series models.ForecastSeries
	if err := json.Unmarshal(data, &series); err != nil {
		c.record("error")
		c.logger.Warn(ctx, "[CACHE_GET] Discarding undecodable cache entry", logging.Fields{
			"key":   key,
			"error": err.Error(),
		})
		c.client.Del(ctx, key)
		return nil, false
	}

	c.record("hit")
	return &series, true
}

// Set stores series under key with the configured TTL
func (c *ForecastCache) Set(ctx context.Context, key string, series *models.ForecastSeries) {
	data, err := json.Marshal(series)
	if err != nil {
		c.logger.Error(ctx, "[CACHE_SET] Failed to encode series", logging.Fields{"key": key}, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.record("error")
		c.logger.Warn(ctx, "[CACHE_SET] Redis write failed", logging.Fields{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// HealthCheck pings Redis
func (c *ForecastCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ForecastCache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCache(result)
	}
}
