package doccache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/open-edge-platform/geti-persistence/internal/log"
)

// Redis implements Cache on a Redis instance with a fixed TTL per entry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis connects to Redis at the given address and verifies the
// connection with a ping.
func NewRedis(ctx context.Context, address string, ttlSeconds int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: log.For("doccache"),
	}, nil
}

// Close closes the Redis client.
func (c *Redis) Close() error {
	return c.client.Close()
}

func cacheKey(collection string, id primitive.ObjectID) string {
	return fmt.Sprintf("doc:%s:%s", collection, id.Hex())
}

// Get returns the cached document for the id, if present.
func (c *Redis) Get(ctx context.Context, collection string, id primitive.ObjectID) (bson.Raw, bool) {
	data, err := c.client.Get(ctx, cacheKey(collection, id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug().Err(err).Str("collection", collection).Msg("cache get failed")
		}
		return nil, false
	}
	return bson.Raw(data), true
}

// Set stores the document under the collection/id key.
func (c *Redis) Set(ctx context.Context, collection string, id primitive.ObjectID, doc bson.Raw) {
	if err := c.client.Set(ctx, cacheKey(collection, id), []byte(doc), c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("collection", collection).Msg("cache set failed")
	}
}

// Delete invalidates the entry for the id.
func (c *Redis) Delete(ctx context.Context, collection string, id primitive.ObjectID) {
	if err := c.client.Del(ctx, cacheKey(collection, id)).Err(); err != nil {
		c.logger.Debug().Err(err).Str("collection", collection).Msg("cache delete failed")
	}
}
