package resultcache

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
)

func sampleResult() *classify.Result {
	matches := []classify.ClassificationMatch{
		{ID: "ssn", Name: "SSN", Count: 2, Confidence: 75, SensitiveTypeID: "SSN", Samples: []string{"123-45-6789"}, Source: classify.SourceSample},
	}
	aggregated := classify.Aggregate(matches)
	return &classify.Result{
		Matches:    matches,
		Aggregated: aggregated,
		Policy:     classify.ProjectPolicy(aggregated),
	}
}

// ============================================================================
// Keys and fingerprints
// ============================================================================

func TestKey(t *testing.T) {
	a := Key("hello", "fp1")
	if !strings.HasSuffix(a, ":fp1") {
		t.Errorf("Expected fingerprint suffix, got %s", a)
	}
	if a != Key("hello", "fp1") {
		t.Error("Expected key to be deterministic")
	}
	if a == Key("hello!", "fp1") || a == Key("hello", "fp2") {
		t.Error("Expected key to change with text and fingerprint")
	}
	if len(ContentHash("x")) != 64 {
		t.Errorf("Expected hex SHA-256, got %s", ContentHash("x"))
	}
}

func TestFingerprint(t *testing.T) {
	set := classify.DetectorSet{Detectors: classify.SamplePresets()}

	fp1, err := Fingerprint(set)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	fp2, _ := Fingerprint(classify.DetectorSet{Detectors: classify.SamplePresets()})
	if fp1 != fp2 {
		t.Error("Expected equal sets to share a fingerprint")
	}

	changed := classify.DetectorSet{Detectors: classify.SamplePresets()}
	changed.Detectors[0].Confidence = classify.ScoreOf(61)
	fp3, _ := Fingerprint(changed)
	if fp3 == fp1 {
		t.Error("Expected a confidence change to change the fingerprint")
	}
}

// ============================================================================
// Memory cache
// ============================================================================

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	if _, found, err := c.Get(ctx, "missing"); found || err != nil {
		t.Fatalf("Expected clean miss, got found=%v err=%v", found, err)
	}

	want := sampleResult()
	if err := c.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found, err := c.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Expected hit, got found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	got.Matches[0].Samples[0] = "mutated"
	again, _, _ := c.Get(ctx, "k")
	if again.Matches[0].Samples[0] != "123-45-6789" {
		t.Error("Expected cached result to be isolated from callers")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("Expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "a", sampleResult())
	_ = c.Set(ctx, "b", sampleResult())

	now = now.Add(30 * time.Second)
	if _, found, _ := c.Get(ctx, "a"); !found {
		t.Error("Expected entry to be live before TTL")
	}

	now = now.Add(time.Minute)
	if _, found, _ := c.Get(ctx, "a"); found {
		t.Error("Expected entry to expire after TTL")
	}
	if c.Len() != 1 {
		t.Errorf("Expected expired entry to be removed on read, got %d entries", c.Len())
	}
	if removed := c.Purge(); removed != 1 {
		t.Errorf("Expected purge to remove 1 entry, got %d", removed)
	}
}

func TestMemoryCache_SetErrors(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	if err := c.Set(context.Background(), "", sampleResult()); err == nil {
		t.Error("Expected error for empty key")
	}
	if err := c.Set(context.Background(), "k", nil); err == nil {
		t.Error("Expected error for nil result")
	}
}

// ============================================================================
// Redis cache
// ============================================================================

type fakeRedis struct {
	data map[string][]byte
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttl: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.([]byte)
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	return redis.NewStatusResult("PONG", nil)
}

func TestRedisCache(t *testing.T) {
	fake := newFakeRedis()
	c := NewRedisCacheWithClient(fake, 5*time.Minute, "sit:")
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, found, err := c.Get(ctx, "k"); found || err != nil {
		t.Fatalf("Expected clean miss, got found=%v err=%v", found, err)
	}

	want := sampleResult()
	if err := c.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if fake.ttl["sit:k"] != 5*time.Minute {
		t.Errorf("Expected prefixed key with TTL, got %v", fake.ttl)
	}

	got, found, err := c.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Expected hit, got found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.data) != 0 {
		t.Error("Expected key to be deleted")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on borrowed client should be a no-op, got %v", err)
	}
}

func TestRedisCache_Errors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	c := NewRedisCacheWithClient(fake, time.Minute, "")
	ctx := context.Background()

	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Expected get error")
	}
	if err := c.Set(ctx, "k", sampleResult()); err == nil {
		t.Error("Expected set error")
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("Expected ping error")
	}

	fake.err = nil
	fake.data["bad"] = []byte("not json")
	if _, _, err := c.Get(ctx, "bad"); err == nil {
		t.Error("Expected decode error")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.CacheConfig
		wantNil  bool
		wantType string
		wantErr  bool
	}{
		{name: "disabled", cfg: config.CacheConfig{Backend: "memory"}, wantNil: true},
		{name: "memory", cfg: config.CacheConfig{Enabled: true, Backend: "memory", TTL: time.Minute}, wantType: "*resultcache.MemoryCache"},
		{name: "redis", cfg: config.CacheConfig{Enabled: true, Backend: "redis", Redis: config.RedisCacheConfig{Addr: "localhost:6379"}}, wantType: "*resultcache.RedisCache"},
		{name: "unknown", cfg: config.CacheConfig{Enabled: true, Backend: "memcached"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if c != nil {
					t.Errorf("Expected nil cache, got %T", c)
				}
				return
			}
			if got := reflect.TypeOf(c).String(); got != tt.wantType {
				t.Errorf("Expected %s, got %s", tt.wantType, got)
			}
			if rc, ok := c.(*RedisCache); ok {
				_ = rc.Close()
			}
		})
	}
}
