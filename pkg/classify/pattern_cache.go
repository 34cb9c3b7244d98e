package classify

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// compiledPattern holds either a program or the reason compilation failed.
// Failures are cached too so a bad rule is not recompiled on every run.
type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// PatternCache is a bounded LRU of compiled patterns keyed by (source, flags).
// Compiled programs are immutable and safe to share between goroutines.
// A nil *PatternCache compiles on every call.
type PatternCache struct {
	entries *lru.Cache[NormalizedPattern, compiledPattern]
}

// NewPatternCache creates a cache holding up to size compiled patterns.
// A size of zero or less disables caching and returns a nil cache.
func NewPatternCache(size int) (*PatternCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[NormalizedPattern, compiledPattern](size)
	if err != nil {
		return nil, err
	}
	return &PatternCache{entries: entries}, nil
}

// Compile returns the program for a normalized pattern
func (c *PatternCache) Compile(n NormalizedPattern) (*regexp.Regexp, error) {
	if c == nil {
		return compilePattern(n)
	}
	if cp, ok := c.entries.Get(n); ok {
		return cp.re, cp.err
	}
	re, err := compilePattern(n)
	c.entries.Add(n, compiledPattern{re: re, err: err})
	return re, err
}

// Len returns the number of cached patterns
func (c *PatternCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every cached pattern
func (c *PatternCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
