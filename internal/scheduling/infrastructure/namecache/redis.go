// Package namecache caches participant and status display names in Redis
// in front of the store's NameResolver.
package namecache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

const (
	// DefaultTTL bounds how long a renamed participant keeps its old name.
	DefaultTTL = 10 * time.Minute

	keyPrefix = "schedcache:name:"
)

// Client is the subset of redis.Cmdable the resolver uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisNameResolver decorates a NameResolver with a Redis read-through
// cache. Redis failures fall through to the wrapped resolver. Unknown names
// are not cached.
type RedisNameResolver struct {
	client  Client
	next    domain.NameResolver
	ttl     time.Duration
	logger  *slog.Logger
	metrics observability.Metrics
}

var _ domain.NameResolver = (*RedisNameResolver)(nil)

// NewRedisNameResolver creates a new resolver. A non-positive ttl uses
// DefaultTTL.
func NewRedisNameResolver(client Client, next domain.NameResolver, ttl time.Duration, logger *slog.Logger, metrics observability.Metrics) *RedisNameResolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &RedisNameResolver{
		client:  client,
		next:    next,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// ParticipantName returns the display name of party.
func (r *RedisNameResolver) ParticipantName(ctx context.Context, party domain.PartyRef) (string, error) {
	return r.resolve(ctx, "party", partyKey(party), func(ctx context.Context) (string, error) {
		return r.next.ParticipantName(ctx, party)
	})
}

// StatusName returns the display name of a status code.
func (r *RedisNameResolver) StatusName(ctx context.Context, code string) (string, error) {
	return r.resolve(ctx, "status", statusKey(code), func(ctx context.Context) (string, error) {
		return r.next.StatusName(ctx, code)
	})
}

// ForgetStatus drops the cached name of a status code.
func (r *RedisNameResolver) ForgetStatus(ctx context.Context, code string) error {
	return r.client.Del(ctx, statusKey(code)).Err()
}

// ForgetParticipant drops the cached name of party.
func (r *RedisNameResolver) ForgetParticipant(ctx context.Context, party domain.PartyRef) error {
	return r.client.Del(ctx, partyKey(party)).Err()
}

func (r *RedisNameResolver) resolve(ctx context.Context, table, key string, load func(context.Context) (string, error)) (string, error) {
	name, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		r.metrics.Counter(observability.MetricNameCacheHits, 1, observability.T("table", table))
		return name, nil
	case !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "name cache read failed", "key", key, "error", err)
	}
	r.metrics.Counter(observability.MetricNameCacheMisses, 1, observability.T("table", table))

	name, err = load(ctx)
	if err != nil || name == "" {
		return name, err
	}

	if err := r.client.Set(ctx, key, name, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "name cache write failed", "key", key, "error", err)
	}
	return name, nil
}

func partyKey(party domain.PartyRef) string {
	return keyPrefix + "party:" + party.String()
}

func statusKey(code string) string {
	return keyPrefix + "status:" + code
}
