package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Options selects the Redis server to connect to
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps redis.Client with common operations and instrumentation
type Client struct {
	redis  *redis.Client
	logger Logger
}

// NewClient creates a new Redis client wrapper
func NewClient(redisClient *redis.Client, logger Logger) *Client {
	return &Client{
		redis:  redisClient,
		logger: logger,
	}
}

// Connect dials Redis and verifies the connection with PING
func Connect(ctx context.Context, opts Options, logger Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	c := NewClient(rdb, logger)
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return c, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.logger.Error("redis PING failed", "error", err)
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.redis.Close()
}

// SetHashFields sets several hash fields at once
func (c *Client) SetHashFields(ctx context.Context, key string, fields map[string]interface{}) error {
	err := c.redis.HSet(ctx, key, fields).Err()
	if err != nil {
		c.logger.Error("redis HSET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set hash %s: %w", key, err)
	}
	c.logger.Debug("redis HSET", "key", key, "field_count", len(fields))
	return nil
}

// GetAllHash retrieves all fields and values of a hash. A missing key
// yields an empty map.
func (c *Client) GetAllHash(ctx context.Context, key string) (map[string]string, error) {
	val, err := c.redis.HGetAll(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis HGETALL failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get all hash fields %s: %w", key, err)
	}
	c.logger.Debug("redis HGETALL", "key", key, "field_count", len(val))
	return val, nil
}

// Delete removes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	err := c.redis.Del(ctx, keys...).Err()
	if err != nil {
		c.logger.Error("redis DEL failed", "keys", keys, "error", err)
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	c.logger.Debug("redis DEL", "keys", keys)
	return nil
}

// SetMembers returns the members of a set
func (c *Client) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.redis.SMembers(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis SMEMBERS failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to read set %s: %w", key, err)
	}
	c.logger.Debug("redis SMEMBERS", "key", key, "count", len(members))
	return members, nil
}

// RemoveFromSet removes members from a set
func (c *Client) RemoveFromSet(ctx context.Context, key string, members ...interface{}) error {
	err := c.redis.SRem(ctx, key, members...).Err()
	if err != nil {
		c.logger.Error("redis SREM failed", "key", key, "error", err)
		return fmt.Errorf("failed to remove from set %s: %w", key, err)
	}
	c.logger.Debug("redis SREM", "key", key, "count", len(members))
	return nil
}

// Pipeline batches multiple Redis operations in one round trip
type Pipeline struct {
	pipe   redis.Pipeliner
	client *Client
}

// NewPipeline creates a transactional pipeline (MULTI/EXEC)
func (c *Client) NewPipeline() *Pipeline {
	return &Pipeline{
		pipe:   c.redis.TxPipeline(),
		client: c,
	}
}

// SetHashFields queues an HSET
func (p *Pipeline) SetHashFields(ctx context.Context, key string, fields map[string]interface{}) {
	p.pipe.HSet(ctx, key, fields)
}

// Expire queues an EXPIRE; a zero ttl is skipped
func (p *Pipeline) Expire(ctx context.Context, key string, ttl time.Duration) {
	if ttl > 0 {
		p.pipe.Expire(ctx, key, ttl)
	}
}

// AddToSet queues an SADD
func (p *Pipeline) AddToSet(ctx context.Context, key string, members ...interface{}) {
	p.pipe.SAdd(ctx, key, members...)
}

// RemoveFromSet queues an SREM
func (p *Pipeline) RemoveFromSet(ctx context.Context, key string, members ...interface{}) {
	p.pipe.SRem(ctx, key, members...)
}

// Delete queues a DEL
func (p *Pipeline) Delete(ctx context.Context, keys ...string) {
	p.pipe.Del(ctx, keys...)
}

// Exec executes all queued operations in the pipeline
func (p *Pipeline) Exec(ctx context.Context) error {
	_, err := p.pipe.Exec(ctx)
	if err != nil {
		p.client.logger.Error("redis pipeline exec failed", "error", err)
		return fmt.Errorf("failed to execute pipeline: %w", err)
	}
	p.client.logger.Debug("redis pipeline executed successfully")
	return nil
}

// Script is a Lua script cached server-side by its SHA
type Script = redis.Script

// NewScript wraps Lua source for RunScript
func NewScript(src string) *Script {
	return redis.NewScript(src)
}

// RunScript evaluates script (EVALSHA, falling back to EVAL) and reads its
// reply as an integer array
func (c *Client) RunScript(ctx context.Context, script *Script, keys []string, args ...interface{}) ([]int64, error) {
	vals, err := script.Run(ctx, c.redis, keys, args...).Int64Slice()
	if err != nil {
		c.logger.Error("redis script failed", "keys", keys, "error", err)
		return nil, fmt.Errorf("failed to run script: %w", err)
	}
	return vals, nil
}
