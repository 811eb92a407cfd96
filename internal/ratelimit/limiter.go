package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrRedisUnavailable  = errors.New("redis unavailable")
)

type Decision struct {
	Limit      int
	Remaining  int
	RetryAfter int // seconds
	Allowed    bool
}

type LimitConfig struct {
	Rate   int           `yaml:"rate"`
	Window time.Duration `yaml:"window"`
}

// Limiter is a redis-backed windowed counter. The window starts at the
// first request and resets when the key expires.
type Limiter struct {
	client *redis.Client
	salt   string // IP hashing stability
}

func NewLimiter(client *redis.Client, salt string) *Limiter {
	if salt == "" {
		salt = "default-salt-change-me"
	}
	return &Limiter{client: client, salt: salt}
}

// HashIP creates a privacy-safe hash of the IP.
func (l *Limiter) HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip + l.salt))
	return hex.EncodeToString(hash[:])
}

var windowScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// Check counts this request against the key's window atomically.
func (l *Limiter) Check(ctx context.Context, key string, cfg LimitConfig) (*Decision, error) {
	count, err := windowScript.Run(ctx, l.client, []string{"rl:" + key}, cfg.Window.Milliseconds()).Int()
	if err != nil {
		return nil, ErrRedisUnavailable
	}

	remaining := cfg.Rate - count
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{
		Limit:      cfg.Rate,
		Remaining:  remaining,
		RetryAfter: int(cfg.Window.Seconds()),
		Allowed:    count <= cfg.Rate,
	}, nil
}
