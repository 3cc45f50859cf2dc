package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const identityCachePrefix = "identity:"

// RedisClientRaw is the subset of go-redis used by the identity cache.
type RedisClientRaw interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// CachedIdentityResolver is a read-through cache in front of an IdentityStore.
// Only positive lookups are cached and password hashes are never written to
// redis, so it must not back credential checks. Redis errors fall back to the
// underlying store.
type CachedIdentityResolver struct {
	store IdentityStore
	redis RedisClientRaw
	ttl   time.Duration
}

func NewCachedIdentityResolver(store IdentityStore, client RedisClientRaw, ttl time.Duration) *CachedIdentityResolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedIdentityResolver{store: store, redis: client, ttl: ttl}
}

func (r *CachedIdentityResolver) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	return r.lookup(ctx, identityCachePrefix+"username:"+username, func() (*Identity, error) {
		return r.store.FindByUsername(ctx, username)
	})
}

func (r *CachedIdentityResolver) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.lookup(ctx, identityCachePrefix+"email:"+email, func() (*Identity, error) {
		return r.store.FindByEmail(ctx, email)
	})
}

// Save writes through and drops any cached entries for the identity.
func (r *CachedIdentityResolver) Save(ctx context.Context, id *Identity) (*Identity, error) {
	saved, err := r.store.Save(ctx, id)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, saved)
	return saved, nil
}

func (r *CachedIdentityResolver) lookup(ctx context.Context, key string, load func() (*Identity, error)) (*Identity, error) {
	val, err := r.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var id Identity
		if jerr := json.Unmarshal([]byte(val), &id); jerr == nil {
			return &id, nil
		}
		log.Warn().Str("key", key).Msg("identity cache: dropping undecodable entry")
		_ = r.redis.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("identity cache: read failed, using store")
	}

	id, err := load()
	if err != nil || id == nil {
		return id, err
	}
	if b, jerr := json.Marshal(id); jerr == nil {
		if serr := r.redis.Set(ctx, key, b, r.ttl).Err(); serr != nil {
			log.Warn().Err(serr).Str("key", key).Msg("identity cache: write failed")
		}
	}
	return id, nil
}

func (r *CachedIdentityResolver) invalidate(ctx context.Context, id *Identity) {
	if id == nil {
		return
	}
	keys := []string{
		identityCachePrefix + "username:" + id.Username,
		identityCachePrefix + "email:" + id.Email,
	}
	if err := r.redis.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Str("username", id.Username).Msg("identity cache: invalidate failed")
	}
}
