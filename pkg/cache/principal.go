// Package cache keeps resolved principals in Redis so the auth middleware
// does not read the user store on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const keyPrefix = "principal:"

// DefaultTTL bounds how long a role or status change can go unnoticed when
// an invalidation is lost.
const DefaultTTL = time.Minute

// NewClient connects to the Redis server at url (redis://host:port/db).
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// PrincipalCache stores principals by user id.
type PrincipalCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewPrincipalCache creates a cache on rdb.
func NewPrincipalCache(rdb redis.Cmdable, ttl time.Duration) *PrincipalCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PrincipalCache{rdb: rdb, ttl: ttl}
}

func key(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

// Get returns the cached principal and whether it was present.
func (c *PrincipalCache) Get(ctx context.Context, userID uuid.UUID) (domain.Principal, bool, error) {
	val, err := c.rdb.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Principal{}, false, nil
	}
	if err != nil {
		return domain.Principal{}, false, err
	}
	var p domain.Principal
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return domain.Principal{}, false, fmt.Errorf("decode cached principal: %w", err)
	}
	return p, true, nil
}

// Set stores p for the cache TTL.
func (c *PrincipalCache) Set(ctx context.Context, p domain.Principal) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(p.UserID), string(b), c.ttl).Err()
}

// Invalidate drops the cached principal for userID.
func (c *PrincipalCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.rdb.Del(ctx, key(userID)).Err()
}

// Loader resolves principals from the user store through an optional cache.
// Cache failures are logged and fall through to the store.
type Loader struct {
	users repository.UserStore
	cache *PrincipalCache
	log   *logger.Logger
}

// NewLoader creates a Loader. cache may be nil.
func NewLoader(users repository.UserStore, cache *PrincipalCache, log *logger.Logger) *Loader {
	return &Loader{users: users, cache: cache, log: log.Named("principal")}
}

// Principal returns the current principal for userID.
func (l *Loader) Principal(ctx context.Context, userID uuid.UUID) (domain.Principal, error) {
	if l.cache != nil {
		p, ok, err := l.cache.Get(ctx, userID)
		if err != nil {
			l.log.WithContext(ctx).Warn("principal cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return p, nil
		}
	}

	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return domain.Principal{}, err
	}
	p := user.Principal()
	if l.cache != nil {
		if err := l.cache.Set(ctx, p); err != nil {
			l.log.WithContext(ctx).Warn("principal cache write failed", "user_id", userID, "error", err)
		}
	}
	return p, nil
}

// Invalidate drops userID from the cache, if there is one.
func (l *Loader) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Invalidate(ctx, userID)
}
