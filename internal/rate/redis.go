package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const limiterScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local lockout = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])
local mode = ARGV[6]

local vals = redis.call("HMGET", key, "a", "l", "u")
local exists = vals[1] ~= false
local a = tonumber(vals[1] or "0")
local l = tonumber(vals[2] or "0")
local u = tonumber(vals[3] or "0")

if exists and u > 0 and now >= u then
  exists = false
end
if exists and (now - l) > window and not (u > now) then
  exists = false
end

local function save(na, nl, nu)
  redis.call("HSET", key, "a", na, "l", nl, "u", nu)
  local keep = ttl
  if nu > now and (nu - now) > keep then
    keep = nu - now
  end
  redis.call("PEXPIRE", key, keep)
end

if mode == "admit" then
  if not exists then
    redis.call("DEL", key)
    return {1, 0, 0}
  end
  if u > now then
    return {0, a, u}
  end
  if a >= max then
    u = now + lockout
    save(a, l, u)
    return {0, a, u}
  end
  return {1, a, 0}
end

if mode == "allow" then
  if not exists then
    a = 1
    l = now
    u = 0
  elseif u > now then
    return {0, a, u}
  else
    a = a + 1
    l = now
  end
  if a >= max then
    u = now + lockout
    save(a, l, u)
    return {0, a, u}
  end
  save(a, l, 0)
  return {1, a, 0}
end

if not exists then
  a = 0
  u = 0
end
a = a + 1
l = now
if a >= max and not (u > now) then
  u = now + lockout
end
save(a, l, u)
if u > now then
  return {0, a, u}
end
return {1, a, 0}
`

var limiterLua = redis.NewScript(limiterScript)

// Redis is a [Limiter] storing each key as a hash {a, l, u}. Transitions run
// in one Lua script, so concurrent callers on the same key are serialized by
// the server.
type Redis struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedis creates a Redis-backed limiter. Idle keys expire after retention.
func NewRedis(client redis.UniversalClient, prefix string, retention time.Duration, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "arl"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{
		redis:     client,
		prefix:    prefix,
		retention: retention,
		now:       now,
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + k
}

// Allow counts this call against key and denies the call that reaches the limit.
func (r *Redis) Allow(ctx context.Context, key string, p Policy) (Decision, error) {
	return r.run(ctx, key, p, "allow")
}

// Admit checks key without counting the call.
func (r *Redis) Admit(ctx context.Context, key string, p Policy) (Decision, error) {
	return r.run(ctx, key, p, "admit")
}

// RecordFailure counts one failure against key.
func (r *Redis) RecordFailure(ctx context.Context, key string, p Policy) (Decision, error) {
	return r.run(ctx, key, p, "fail")
}

func (r *Redis) run(ctx context.Context, key string, p Policy, md string) (Decision, error) {
	if !p.valid() {
		return Decision{}, ErrInvalidPolicy
	}

	res, err := limiterLua.Run(ctx, r.redis, []string{r.key(key)},
		r.now().UnixMilli(),
		p.MaxAttempts,
		p.Window.Milliseconds(),
		p.Lockout.Milliseconds(),
		r.retention.Milliseconds(),
		md,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: invalid limiter script response", ErrRedisUnavailable)
	}

	var lockedUntil time.Time
	if res[2] > 0 {
		lockedUntil = time.UnixMilli(res[2])
	}
	return decide(res[0] == 1, int(res[1]), p, lockedUntil), nil
}

// Reset deletes key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get reads the stored entry for key.
func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := r.redis.HMGet(ctx, r.key(key), "a", "l", "u").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return Entry{}, false, nil
	}

	e := Entry{Attempts: int(parseInt(vals[0]))}
	if l := parseInt(vals[1]); l > 0 {
		e.LastAttempt = time.UnixMilli(l)
	}
	if u := parseInt(vals[2]); u > 0 {
		e.LockedUntil = time.UnixMilli(u)
	}
	return e, true, nil
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

// Remaining returns how many attempts key has left before it locks.
func (r *Redis) Remaining(ctx context.Context, key string, maxAttempts int) (int, error) {
	e, ok, err := r.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return maxAttempts, nil
	}
	return remaining(e.Attempts, maxAttempts), nil
}

// TimeUntilUnlock returns the time left on key's lock, or zero.
func (r *Redis) TimeUntilUnlock(ctx context.Context, key string) (time.Duration, error) {
	e, ok, err := r.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	now := r.now()
	if !ok || !e.Locked(now) {
		return 0, nil
	}
	return e.LockedUntil.Sub(now), nil
}

// IsLocked reports whether key is currently locked.
func (r *Redis) IsLocked(ctx context.Context, key string) (bool, error) {
	e, ok, err := r.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && e.Locked(r.now()), nil
}

// Cleanup is a no-op: keys carry a TTL of the retention window.
func (r *Redis) Cleanup(context.Context, time.Duration) (int, error) {
	return 0, nil
}
