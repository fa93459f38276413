package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/adminAuth/credential"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps backend failures from [RedisStore].
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	statusNotFound int64 = 0
	statusExpired  int64 = 1
	statusIdle     int64 = 2
	statusOK       int64 = 3
	statusCorrupt  int64 = 4
)

const luaSessionHelpers = `
local function read_be64(s, i)
  local b1, b2, b3, b4, b5, b6, b7, b8 = string.byte(s, i, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function write_be64(n)
  local out = {}
  for i = 8, 1, -1 do
    out[i] = n % 256
    n = math.floor(n / 256)
  end
  return string.char(unpack(out))
end

local function parse_session(data)
  if string.byte(data, 1) ~= 1 then
    return nil
  end
  local uid_len = string.byte(data, 2)
  if not uid_len or uid_len == 0 or #data < 2 + uid_len + 24 then
    return nil
  end
  local base = 3 + uid_len
  return {
    user_id = string.sub(data, 3, 2 + uid_len),
    last_offset = base + 8,
    last = read_be64(data, base + 8),
    expires = read_be64(data, base + 16)
  }
end

local function evict(key, user_prefix, token, parsed)
  redis.call("DEL", key)
  if parsed then
    redis.call("SREM", user_prefix .. parsed.user_id, token)
  end
end
`

const validateSessionScript = luaSessionHelpers + `
local key = KEYS[1]
local token = ARGV[1]
local user_prefix = ARGV[2]
local now = tonumber(ARGV[3])
local idle = tonumber(ARGV[4])

local data = redis.call("GET", key)
if not data then
  return {0}
end
local s = parse_session(data)
if not s then
  return {4}
end
if now >= s.expires then
  evict(key, user_prefix, token, s)
  return {1}
end
if now - s.last >= idle then
  evict(key, user_prefix, token, s)
  return {2}
end

local updated = string.sub(data, 1, s.last_offset - 1) .. write_be64(now) .. string.sub(data, s.last_offset + 8)
local ttl = s.expires - now
if idle < ttl then
  ttl = idle
end
redis.call("SET", key, updated, "PX", ttl)
return {3, s.user_id}
`

const refreshSessionScript = luaSessionHelpers + `
local key = KEYS[1]
local token = ARGV[1]
local user_prefix = ARGV[2]
local now = tonumber(ARGV[3])
local idle = tonumber(ARGV[4])
local lifetime = tonumber(ARGV[5])

local data = redis.call("GET", key)
if not data then
  return {0}
end
local s = parse_session(data)
if not s then
  return {4}
end
if now >= s.expires then
  evict(key, user_prefix, token, s)
  return {1}
end
if now - s.last >= idle then
  evict(key, user_prefix, token, s)
  return {2}
end

local updated = string.sub(data, 1, s.last_offset - 1) .. write_be64(now) .. write_be64(now + lifetime) .. string.sub(data, s.last_offset + 16)
local ttl = lifetime
if idle < ttl then
  ttl = idle
end
redis.call("SET", key, updated, "PX", ttl)
return {3}
`

const deleteSessionScript = luaSessionHelpers + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
evict(KEYS[1], ARGV[2], ARGV[1], parse_session(data))
return 1
`

// sweepSessionScript removes an index member whose session is gone, or the
// session itself when it is no longer valid at ARGV[3].
const sweepSessionScript = luaSessionHelpers + `
local key = KEYS[1]
local user_key = KEYS[2]
local token = ARGV[1]
local now = tonumber(ARGV[2])
local idle = tonumber(ARGV[3])

local data = redis.call("GET", key)
if not data then
  return redis.call("SREM", user_key, token)
end
local s = parse_session(data)
if s and now < s.expires and now - s.last < idle then
  return 0
end
redis.call("DEL", key)
redis.call("SREM", user_key, token)
return 1
`

var (
	validateSessionLua = redis.NewScript(validateSessionScript)
	refreshSessionLua  = redis.NewScript(refreshSessionScript)
	deleteSessionLua   = redis.NewScript(deleteSessionScript)
	sweepSessionLua    = redis.NewScript(sweepSessionScript)
)

// RedisStore keeps each session under "<prefix>:<token>" and the user index
// under "<prefix>u:<userID>". Key TTLs track min(absolute expiry, idle
// timeout) and are pushed forward on every touch.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	cfg    Config
	now    func() time.Time
}

// NewRedisStore creates a store using prefix as the key namespace ("as" when
// empty). now defaults to time.Now.
func NewRedisStore(client redis.UniversalClient, prefix string, cfg Config, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "as"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		cfg:    cfg.withDefaults(),
		now:    now,
	}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + "u:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.userPrefix() + userID
}

func (s *RedisStore) keyTTL() time.Duration {
	if s.cfg.IdleTimeout < s.cfg.TokenLifetime {
		return s.cfg.IdleTimeout
	}
	return s.cfg.TokenLifetime
}

// Create mints a token for userID and indexes it.
//
//	Performance: 1 MULTI (SET + SADD).
func (s *RedisStore) Create(ctx context.Context, userID string, meta Metadata) (string, error) {
	token, err := credential.GenerateToken(s.cfg.TokenBytes)
	if err != nil {
		return "", err
	}

	now := s.now()
	data, err := Encode(&Session{
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.cfg.TokenLifetime),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	if err != nil {
		return "", err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(token), data, s.keyTTL())
		pipe.SAdd(ctx, s.userKey(userID), token)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return token, nil
}

// Validate checks token and touches its activity.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Validate(ctx context.Context, token string) (Validation, error) {
	res, err := validateSessionLua.Run(ctx, s.redis, []string{s.key(token)},
		token,
		s.userPrefix(),
		s.now().UnixMilli(),
		s.cfg.IdleTimeout.Milliseconds(),
	).Slice()
	if err != nil {
		return Validation{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, ok := statusOf(res)
	if !ok {
		return Validation{}, fmt.Errorf("%w: invalid validate script response", ErrRedisUnavailable)
	}
	switch code {
	case statusOK:
		if len(res) < 2 {
			return Validation{}, fmt.Errorf("%w: missing user id", ErrRedisUnavailable)
		}
		uid, _ := res[1].(string)
		return Validation{Valid: true, UserID: uid}, nil
	case statusExpired:
		return Validation{Reason: ReasonExpired}, nil
	case statusIdle:
		return Validation{Reason: ReasonIdleTimeout}, nil
	case statusCorrupt:
		return Validation{}, ErrCorruptSession
	default:
		return Validation{Reason: ReasonNotFound}, nil
	}
}

// Refresh extends a live session's absolute expiry.
func (s *RedisStore) Refresh(ctx context.Context, token string) (bool, error) {
	res, err := refreshSessionLua.Run(ctx, s.redis, []string{s.key(token)},
		token,
		s.userPrefix(),
		s.now().UnixMilli(),
		s.cfg.IdleTimeout.Milliseconds(),
		s.cfg.TokenLifetime.Milliseconds(),
	).Slice()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, ok := statusOf(res)
	if !ok {
		return false, fmt.Errorf("%w: invalid refresh script response", ErrRedisUnavailable)
	}
	if code == statusCorrupt {
		return false, ErrCorruptSession
	}
	return code == statusOK, nil
}

func statusOf(res []interface{}) (int64, bool) {
	if len(res) == 0 {
		return 0, false
	}
	code, ok := res[0].(int64)
	return code, ok
}

// Get reads a session without touching it.
func (s *RedisStore) Get(ctx context.Context, token string) (Session, bool, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return Session{}, false, err
	}
	sess.Token = token
	return *sess, true, nil
}

// Remove evicts token and its index entry.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Remove(ctx context.Context, token string) error {
	if err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(token)}, token, s.userPrefix()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RemoveAllForUser deletes every session indexed under userID and the index
// itself. A session created between the SMEMBERS read and the delete is not
// captured.
func (s *RedisStore) RemoveAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	tokens, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		keys = append(keys, s.key(token))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// ListForUser returns userID's live sessions, oldest first, without touching
// them.
//
//	Performance: 1 SMEMBERS + 1 pipelined GET batch.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	tokens, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(tokens) == 0 {
		return []Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.Get(ctx, s.key(token))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	out := make([]Session, 0, len(tokens))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil {
			return nil, err
		}
		if sess.Check(now, s.cfg.IdleTimeout) != ReasonNone {
			continue
		}
		sess.Token = tokens[i]
		out = append(out, *sess)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Cleanup walks every user index, dropping members whose session is gone
// and evicting sessions that are no longer valid. Each member is re-checked
// atomically before removal.
//
// This is an O(n) SCAN and must not run on a request path.
func (s *RedisStore) Cleanup(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := s.userPrefix() + "*"
	now := s.now().UnixMilli()
	idle := s.cfg.IdleTimeout.Milliseconds()

	for {
		userKeys, next, err := s.redis.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, userKey := range userKeys {
			tokens, err := s.redis.SMembers(ctx, userKey).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			for _, token := range tokens {
				n, err := sweepSessionLua.Run(ctx, s.redis, []string{s.key(token), userKey}, token, now, idle).Int64()
				if err != nil {
					return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				removed += int(n)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
