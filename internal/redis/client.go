package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client is the workspace's Redis handle. It stores refresh-token sessions,
// counts rate-limit windows and carries realtime row-change notifications.
type Client struct {
	rdb *goredis.Client
}

const dialTimeout = 5 * time.Second

// NewClient connects to the Redis server at redisURL and pings it once.
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	c := &Client{rdb: goredis.NewClient(opts)}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// ErrSessionNotFound is returned for unknown, expired or already used
// refresh tokens.
var ErrSessionNotFound = errors.New("session not found")

func sessionKey(token string) string { return "session:refresh:" + token }

// CreateSession records a refresh token for userID that lives for ttl.
func (c *Client) CreateSession(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, sessionKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// ConsumeSession removes the refresh token and returns its owner. A token can
// be consumed once; concurrent refreshes with the same token see at most one
// success.
func (c *Client) ConsumeSession(ctx context.Context, token string) (int64, error) {
	val, err := c.rdb.GetDel(ctx, sessionKey(token)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("consuming session: %w", err)
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session %q holds %q: %w", token, val, err)
	}
	return userID, nil
}

// RevokeSession deletes the refresh token. Unknown tokens are not an error.
func (c *Client) RevokeSession(ctx context.Context, token string) error {
	if err := c.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// rateLimitScript increments a fixed-window counter, sets its TTL on first
// use and returns {count, remaining ttl in ms}.
var rateLimitScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// CheckRateLimit reports whether the request identified by key fits in the
// window, along with the current count and the window's remaining TTL.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, int64, error) {
	res, err := rateLimitScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("checking rate limit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, 0, fmt.Errorf("checking rate limit: unexpected reply length %d", len(res))
	}
	count, ttl := res[0], res[1]
	if ttl < 0 {
		ttl = window.Milliseconds()
	}
	return count <= int64(limit), count, ttl, nil
}

// Publish sends payload to every subscriber of channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription and waits for the server to confirm
// it, so that messages published after Subscribe returns are never missed.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error) {
	ps := c.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing: %w", err)
	}
	return ps, nil
}
