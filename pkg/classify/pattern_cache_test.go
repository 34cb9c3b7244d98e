package classify

import (
	"testing"
)

func TestNewPatternCache_Disabled(t *testing.T) {
	cache, err := NewPatternCache(0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cache != nil {
		t.Fatal("Expected nil cache for size 0")
	}

	re, err := cache.Compile(NormalizedPattern{Source: "abc", Flags: "gi"})
	if err != nil || !re.MatchString("ABC") {
		t.Errorf("Expected nil cache to compile directly, got %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Expected length 0, got %d", cache.Len())
	}
	cache.Purge()
}

func TestPatternCache_Compile(t *testing.T) {
	cache, err := NewPatternCache(2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	n := NormalizedPattern{Source: `\d+`, Flags: "g"}
	first, err := cache.Compile(n)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, _ := cache.Compile(n)
	if first != second {
		t.Error("Expected the cached program to be reused")
	}

	// same source, different flags is a different entry
	if _, err := cache.Compile(NormalizedPattern{Source: `\d+`, Flags: "gi"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", cache.Len())
	}

	bad := NormalizedPattern{Source: "(x", Flags: "g"}
	if _, err := cache.Compile(bad); err == nil {
		t.Fatal("Expected compile error")
	}
	if _, err := cache.Compile(bad); err == nil {
		t.Error("Expected cached compile error")
	}
	if cache.Len() != 2 {
		t.Errorf("Expected eviction to keep 2 entries, got %d", cache.Len())
	}

	cache.Purge()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after purge, got %d", cache.Len())
	}
}
