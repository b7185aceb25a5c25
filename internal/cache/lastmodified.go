package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arashthr/memex/internal/metrics"
	"github.com/arashthr/memex/internal/types"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "memex:lastmod:"

// Entry is the result of a cache lookup. Version must be handed back to Fill
// so that a value read before an invalidation is never stored after it.
type Entry struct {
	Time    time.Time
	Hit     bool
	Version int64
}

// LastModified caches the posts/update timestamp per profile. A cached zero
// time means the profile has no bookmarks.
type LastModified interface {
	Get(ctx context.Context, profileID types.ProfileId) (Entry, error)
	// Fill stores t unless the profile was invalidated after the Get that
	// returned version.
	Fill(ctx context.Context, profileID types.ProfileId, version int64, t time.Time) error
	Invalidate(ctx context.Context, profileID types.ProfileId) error
}

func Key(profileID types.ProfileId) string {
	return keyPrefix + string(profileID)
}

// VersionKey holds the invalidation counter of a profile. It never expires.
func VersionKey(profileID types.ProfileId) string {
	return keyPrefix + "version:" + string(profileID)
}

// RedisLastModified stores "<version>|<RFC3339 time>" under Key. A value
// written under an older version is treated as a miss.
type RedisLastModified struct {
	Client *redis.Client
	TTL    time.Duration
}

func (rc *RedisLastModified) Get(ctx context.Context, profileID types.ProfileId) (Entry, error) {
	values, err := rc.Client.MGet(ctx, VersionKey(profileID), Key(profileID)).Result()
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return Entry{}, fmt.Errorf("get last modified: %w", err)
	}
	var entry Entry
	if raw, ok := values[0].(string); ok {
		if entry.Version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			return Entry{}, fmt.Errorf("decode last modified version %q: %w", raw, err)
		}
	}
	raw, ok := values[1].(string)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return entry, nil
	}
	version, stamp, _ := strings.Cut(raw, "|")
	if version != strconv.FormatInt(entry.Version, 10) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return entry, nil
	}
	if stamp != "" {
		t, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			return Entry{}, fmt.Errorf("decode last modified %q: %w", raw, err)
		}
		entry.Time = t.UTC()
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	entry.Hit = true
	return entry, nil
}

func (rc *RedisLastModified) Fill(ctx context.Context, profileID types.ProfileId, version int64, t time.Time) error {
	value := strconv.FormatInt(version, 10) + "|"
	if !t.IsZero() {
		value += t.UTC().Format(time.RFC3339)
	}
	versionKey := VersionKey(profileID)
	err := rc.Client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(profileID), value, rc.TTL)
			return nil
		})
		return err
	}, versionKey)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("fill last modified: %w", err)
	}
	return nil
}

func (rc *RedisLastModified) Invalidate(ctx context.Context, profileID types.ProfileId) error {
	_, err := rc.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, VersionKey(profileID))
		pipe.Del(ctx, Key(profileID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate last modified: %w", err)
	}
	return nil
}

// Nop is used when no redis is configured. Every lookup misses.
type Nop struct{}

func (Nop) Get(context.Context, types.ProfileId) (Entry, error) { return Entry{}, nil }

func (Nop) Fill(context.Context, types.ProfileId, int64, time.Time) error { return nil }

func (Nop) Invalidate(context.Context, types.ProfileId) error { return nil }
