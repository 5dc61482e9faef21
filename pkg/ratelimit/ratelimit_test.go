package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalLimiter_Burst(t *testing.T) {
	l := NewLocalLimiter(1, 3)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("request %d: expected allow, got %v %v", i, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("expected the fourth request to be limited")
	}
	if ok, _ := l.Allow(ctx, "10.0.0.2"); !ok {
		t.Fatal("keys must not share a bucket")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("expected a token after one second")
	}
}

func TestLocalLimiter_Sweep(t *testing.T) {
	l := PerMinute(5)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(5 * time.Minute)
	_, _ = l.Allow(context.Background(), "b")
	now = now.Add(6 * time.Minute)

	l.Sweep()
	if _, ok := l.visitors["a"]; ok {
		t.Fatal("expected idle key to be swept")
	}
	if _, ok := l.visitors["b"]; !ok {
		t.Fatal("expected recent key to survive")
	}
}

// fakeScripter counts calls per key the way the fixed-window script does
// and lets a test replace the reply.
type fakeScripter struct {
	counts map[string]int64
	keys   []string
	args   []any
	reply  func(n int64) (any, error)
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counts: map[string]int64{}}
}

func (f *fakeScripter) run(keys []string, args []any) *redis.Cmd {
	f.keys, f.args = keys, args
	f.counts[keys[0]]++
	n := f.counts[keys[0]]
	if f.reply != nil {
		return redis.NewCmdResult(f.reply(n))
	}
	return redis.NewCmdResult(n, nil)
}

func (f *fakeScripter) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalRO(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalShaRO(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeScripter) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisLimiter_WindowBoundary(t *testing.T) {
	rdb := newFakeScripter()
	l := NewRedisLimiter(rdb, 3, time.Minute, "medbook:rl:auth")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "auth:10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("request %d: expected allow, got %v %v", i, ok, err)
		}
	}
	if ok, err := l.Allow(ctx, "auth:10.0.0.1"); err != nil || ok {
		t.Fatalf("expected the fourth request to be limited, got %v %v", ok, err)
	}
	if ok, _ := l.Allow(ctx, "auth:10.0.0.2"); !ok {
		t.Fatal("keys must not share a window")
	}

	if len(rdb.keys) != 1 || rdb.keys[0] != "medbook:rl:auth:auth:10.0.0.2" {
		t.Fatalf("unexpected key %v", rdb.keys)
	}
	if len(rdb.args) != 1 || rdb.args[0] != int64(60000) {
		t.Fatalf("expected the window in milliseconds, got %v", rdb.args)
	}
}

func TestRedisLimiter_Replies(t *testing.T) {
	boom := errors.New("connection refused")

	tests := []struct {
		name    string
		reply   func(n int64) (any, error)
		want    bool
		wantErr bool
	}{
		{"integer under limit", func(int64) (any, error) { return int64(1), nil }, true, false},
		{"integer at limit", func(int64) (any, error) { return int64(2), nil }, true, false},
		{"integer over limit", func(int64) (any, error) { return int64(3), nil }, false, false},
		{"numeric string", func(int64) (any, error) { return "1", nil }, true, false},
		{"non-numeric string", func(int64) (any, error) { return "many", nil }, false, true},
		{"unexpected type", func(int64) (any, error) { return []any{int64(1)}, nil }, false, true},
		{"redis error", func(int64) (any, error) { return nil, boom }, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb := newFakeScripter()
			rdb.reply = tt.reply
			l := NewRedisLimiter(rdb, 2, time.Second, "rl")

			ok, err := l.Allow(context.Background(), "k")
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
			if ok != tt.want {
				t.Fatalf("expected allow=%v, got %v", tt.want, ok)
			}
		})
	}
}
