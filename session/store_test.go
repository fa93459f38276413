package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

var testConfig = Config{TokenLifetime: 30 * time.Minute, IdleTimeout: 15 * time.Minute}

type storeCase struct {
	name string
	rdb  *redis.Client
	mr   *miniredis.Miniredis
}

func newStores(t *testing.T) []storeCase {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return []storeCase{
		{name: "memory"},
		{name: "redis", rdb: rdb, mr: mr},
	}
}

func TestCreateValidateTouchesActivity(t *testing.T) {
	for _, tc := range newStores(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			store := rebind(t, tc, clock)

			token, err := store.Create(ctx, "1", Metadata{IPAddress: "127.0.0.1", UserAgent: "adminauthctl"})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if len(token) != 64 {
				t.Fatalf("expected 64 hex chars, got %d", len(token))
			}

			clock.Advance(10 * time.Minute)
			v, err := store.Validate(ctx, token)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !v.Valid || v.UserID != "1" {
				t.Fatalf("expected valid session for user 1, got %+v", v)
			}

			sess, ok, err := store.Get(ctx, token)
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			if !sess.LastActivity.Equal(clock.Now()) {
				t.Fatalf("expected activity touched to %v, got %v", clock.Now(), sess.LastActivity)
			}
			if sess.IPAddress != "127.0.0.1" || sess.UserAgent != "adminauthctl" {
				t.Fatalf("metadata not kept: %+v", sess)
			}

			// 10 more minutes is within idle timeout of the touched activity.
			clock.Advance(10 * time.Minute)
			if v, _ := store.Validate(ctx, token); !v.Valid {
				t.Fatalf("expected sliding activity to keep session alive, got %+v", v)
			}
		})
	}
}

// rebind builds a fresh store for tc that reads the given clock.
func rebind(t *testing.T, tc storeCase, clock *fakeClock) Store {
	t.Helper()
	if tc.rdb == nil {
		return NewMemoryStore(testConfig, clock.Now)
	}
	tc.mr.FlushAll()
	return NewRedisStore(tc.rdb, "as", testConfig, clock.Now)
}

func TestValidateReasons(t *testing.T) {
	for _, tc := range newStores(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			store := rebind(t, tc, clock)

			if v, _ := store.Validate(ctx, "missing"); v.Valid || v.Reason != ReasonNotFound {
				t.Fatalf("expected not found, got %+v", v)
			}

			idle, _ := store.Create(ctx, "1", Metadata{})
			clock.Advance(15 * time.Minute)
			if v, _ := store.Validate(ctx, idle); v.Valid || v.Reason != ReasonIdleTimeout {
				t.Fatalf("expected idle timeout, got %+v", v)
			}
			if _, ok, _ := store.Get(ctx, idle); ok {
				t.Fatal("expected idle session to be evicted")
			}

			expired, _ := store.Create(ctx, "1", Metadata{})
			for i := 0; i < 3; i++ {
				clock.Advance(10 * time.Minute)
				if v, _ := store.Validate(ctx, expired); !v.Valid {
					t.Fatalf("step %d: expected valid, got %+v", i, v)
				}
			}
			if v, _ := store.Validate(ctx, expired); v.Valid || v.Reason != ReasonExpired {
				t.Fatalf("expected absolute expiry, got %+v", v)
			}
			if list, _ := store.ListForUser(ctx, "1"); len(list) != 0 {
				t.Fatalf("expected no sessions left, got %d", len(list))
			}
		})
	}
}

func TestRefreshExtendsExpiry(t *testing.T) {
	for _, tc := range newStores(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			store := rebind(t, tc, clock)

			if ok, _ := store.Refresh(ctx, "missing"); ok {
				t.Fatal("expected refresh of unknown token to fail")
			}

			token, _ := store.Create(ctx, "2", Metadata{})
			clock.Advance(14 * time.Minute)
			ok, err := store.Refresh(ctx, token)
			if err != nil || !ok {
				t.Fatalf("Refresh: ok=%v err=%v", ok, err)
			}

			sess, _, _ := store.Get(ctx, token)
			if want := clock.Now().Add(30 * time.Minute); !sess.ExpiresAt.Equal(want) {
				t.Fatalf("expected expiry %v, got %v", want, sess.ExpiresAt)
			}

			clock.Advance(14 * time.Minute)
			_, _ = store.Refresh(ctx, token)
			clock.Advance(14 * time.Minute)
			if v, _ := store.Validate(ctx, token); !v.Valid {
				t.Fatalf("expected refreshed session to outlive the original lifetime, got %+v", v)
			}
		})
	}
}

func TestRemoveAndIndexPruning(t *testing.T) {
	for _, tc := range newStores(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := rebind(t, tc, newClock())

			token, _ := store.Create(ctx, "1", Metadata{})
			if err := store.Remove(ctx, token); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if err := store.Remove(ctx, token); err != nil {
				t.Fatalf("second Remove: %v", err)
			}
			if v, _ := store.Validate(ctx, token); v.Valid {
				t.Fatal("expected removed token to be invalid")
			}

			switch s := store.(type) {
			case *MemoryStore:
				if sessions, users := s.Len(); sessions != 0 || users != 0 {
					t.Fatalf("expected empty store, got sessions=%d users=%d", sessions, users)
				}
			case *RedisStore:
				exists, _ := tc.rdb.Exists(ctx, s.userKey("1")).Result()
				if exists != 0 {
					t.Fatal("expected empty user index to be pruned")
				}
			}
		})
	}
}

func TestRemoveAllForUserIsolation(t *testing.T) {
	for _, tc := range newStores(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := rebind(t, tc, newClock())

			a1, _ := store.Create(ctx, "1", Metadata{})
			a2, _ := store.Create(ctx, "1", Metadata{})
			b1, _ := store.Create(ctx, "2", Metadata{})

			n, err := store.RemoveAllForUser(ctx, "1")
			if err != nil {
				t.Fatalf("RemoveAllForUser: %v", err)
			}
			if n != 2 {
				t.Fatalf("expected 2 removed, got %d", n)
			}
			for _, tok := range []string{a1, a2} {
				if v, _ := store.Validate(ctx, tok); v.Valid {
					t.Fatal("expected user 1 session to be revoked")
				}
			}
			if v, _ := store.Validate(ctx, b1); !v.Valid {
				t.Fatal("expected user 2 session to survive")
			}
		})
	}
}

func TestListForUser(t *testing.T) {
	for _, tc := range newStores(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			store := rebind(t, tc, clock)

			first, _ := store.Create(ctx, "1", Metadata{UserAgent: "first"})
			clock.Advance(time.Minute)
			second, _ := store.Create(ctx, "1", Metadata{UserAgent: "second"})
			_, _ = store.Create(ctx, "2", Metadata{})

			list, err := store.ListForUser(ctx, "1")
			if err != nil {
				t.Fatalf("ListForUser: %v", err)
			}
			if len(list) != 2 || list[0].Token != first || list[1].Token != second {
				t.Fatalf("unexpected listing %+v", list)
			}
			if list[0].UserAgent != "first" {
				t.Fatalf("expected metadata in listing, got %+v", list[0])
			}
		})
	}
}

func TestCleanupSweepsOnlyInvalid(t *testing.T) {
	for _, tc := range newStores(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			store := rebind(t, tc, clock)

			stale, _ := store.Create(ctx, "1", Metadata{})
			live, _ := store.Create(ctx, "1", Metadata{})
			other, _ := store.Create(ctx, "2", Metadata{})

			clock.Advance(10 * time.Minute)
			_, _ = store.Validate(ctx, live)
			_, _ = store.Validate(ctx, other)
			clock.Advance(6 * time.Minute)

			n, err := store.Cleanup(ctx)
			if err != nil {
				t.Fatalf("Cleanup: %v", err)
			}
			if n != 1 {
				t.Fatalf("expected one eviction, got %d", n)
			}
			if _, ok, _ := store.Get(ctx, stale); ok {
				t.Fatal("expected idle session to be swept")
			}
			for _, tok := range []string{live, other} {
				if v, _ := store.Validate(ctx, tok); !v.Valid {
					t.Fatalf("expected touched session to survive sweep, got %+v", v)
				}
			}
		})
	}
}

func TestRedisCleanupPrunesDanglingIndexMembers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	store := NewRedisStore(rdb, "as", testConfig, nil)
	token, _ := store.Create(ctx, "7", Metadata{})

	// Native TTL eviction leaves the index member behind.
	mr.FastForward(16 * time.Minute)
	if n, _ := rdb.SCard(ctx, store.userKey("7")).Result(); n != 1 {
		t.Fatalf("expected dangling member, got %d", n)
	}

	n, err := store.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one pruned member, got %d", n)
	}
	if exists, _ := rdb.Exists(ctx, store.userKey("7"), store.key(token)).Result(); exists != 0 {
		t.Fatal("expected index and session to be gone")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli())
	in := &Session{
		UserID:       "42",
		CreatedAt:    now,
		LastActivity: now.Add(time.Second),
		ExpiresAt:    now.Add(time.Hour),
		IPAddress:    "10.0.0.1",
		UserAgent:    "Mozilla/5.0",
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.UserID != in.UserID || !out.ExpiresAt.Equal(in.ExpiresAt) || !out.LastActivity.Equal(in.LastActivity) || out.UserAgent != in.UserAgent {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	if _, err := Decode(data[:len(data)-3]); err == nil {
		t.Fatal("expected truncated record to fail")
	}
	if _, err := Encode(&Session{}); err == nil {
		t.Fatal("expected empty user id to be rejected")
	}
}
