package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/packportal/rsvp-service/internal/domain"
)

const (
	statsKeyPrefix = "event_stats:"
	statsTTL       = 5 * time.Minute
)

// RedisStatsRepository mirrors the stats rollup in Redis for cheap display
// reads. The ledger transaction is the authority; a stale or missing mirror
// just falls back to Postgres.
type RedisStatsRepository struct {
	client *redis.Client
}

// NewRedisStatsRepository creates a new RedisStatsRepository
func NewRedisStatsRepository(client *redis.Client) *RedisStatsRepository {
	return &RedisStatsRepository{client: client}
}

func statsKey(eventID string) string {
	return statsKeyPrefix + eventID
}

// SetStats writes the rollup mirror with a short TTL
func (r *RedisStatsRepository) SetStats(ctx context.Context, stats *domain.StatsRollup) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	if err := r.client.Set(ctx, statsKey(stats.EventID), data, statsTTL).Err(); err != nil {
		return fmt.Errorf("failed to set stats mirror: %w", err)
	}
	return nil
}

// GetStats returns the mirrored rollup, or nil when absent
func (r *RedisStatsRepository) GetStats(ctx context.Context, eventID string) (*domain.StatsRollup, error) {
	data, err := r.client.Get(ctx, statsKey(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats mirror: %w", err)
	}

	stats := &domain.StatsRollup{}
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return stats, nil
}

// Ensure RedisStatsRepository implements StatsCacheRepository
var _ StatsCacheRepository = (*RedisStatsRepository)(nil)
