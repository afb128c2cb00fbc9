package users

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"user-gateway/pkg/logger"
)

const (
	cacheKeyPrefix = "users:"

	// tombstone marks a deleted user. It cannot be confused with an entry
	// since every entry is a JSON object.
	tombstone = "deleted"
)

// CachedStore adds a Redis read-through cache in front of another Store.
// The cache is advisory: any Redis failure is logged and the call falls
// through to the wrapped store. Nothing is retried.
//
// Read-through fills never overwrite an existing key, so a Find that read
// the row before a concurrent Update or Delete cannot replace the newer
// entry or the tombstone that Delete leaves behind.
type CachedStore struct {
	next Store
	rdb  redis.Cmdable
	ttl  time.Duration
}

func NewCachedStore(next Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{next: next, rdb: rdb, ttl: ttl}
}

func cacheKey(id uuid.UUID) string { return cacheKeyPrefix + id.String() }

func (s *CachedStore) Find(ctx context.Context, id uuid.UUID) (User, error) {
	raw, err := s.rdb.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil && string(raw) == tombstone:
		return User{}, ErrUserNotFound
	case err == nil:
		var u User
		jerr := json.Unmarshal(raw, &u)
		if jerr == nil {
			return u, nil
		}
		logger.From(ctx).Warn("user cache entry undecodable", "user_id", id.String(), "err", jerr)
	case !errors.Is(err, redis.Nil):
		logger.From(ctx).Warn("user cache read failed", "user_id", id.String(), "err", err)
	}

	u, err := s.next.Find(ctx, id)
	if err != nil {
		return User{}, err
	}
	s.fill(ctx, u)
	return u, nil
}

func (s *CachedStore) Create(ctx context.Context, u User) (User, error) {
	out, err := s.next.Create(ctx, u)
	if err != nil {
		return User{}, err
	}
	s.put(ctx, out)
	return out, nil
}

func (s *CachedStore) Update(ctx context.Context, cmd UpdateCommand) (User, error) {
	out, err := s.next.Update(ctx, cmd)
	if err != nil {
		return User{}, err
	}
	s.put(ctx, out)
	return out, nil
}

func (s *CachedStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.next.Delete(ctx, id)
	key := cacheKey(id)
	var cerr error
	if err == nil || errors.Is(err, ErrUserNotFound) {
		cerr = s.rdb.Set(ctx, key, tombstone, s.ttl).Err()
	} else {
		// The row may still exist; drop the entry rather than hide it.
		cerr = s.rdb.Del(ctx, key).Err()
	}
	if cerr != nil {
		logger.From(ctx).Warn("user cache invalidation failed", "user_id", id.String(), "err", cerr)
	}
	return err
}

// put stores u unconditionally. Used after writes, which are authoritative.
func (s *CachedStore) put(ctx context.Context, u User) {
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(u.ID), raw, s.ttl).Err(); err != nil {
		logger.From(ctx).Warn("user cache write failed", "user_id", u.ID.String(), "err", err)
	}
}

// fill stores u only when the key is absent.
func (s *CachedStore) fill(ctx context.Context, u User) {
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.rdb.SetNX(ctx, cacheKey(u.ID), raw, s.ttl).Err(); err != nil {
		logger.From(ctx).Warn("user cache write failed", "user_id", u.ID.String(), "err", err)
	}
}
