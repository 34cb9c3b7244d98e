package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// inlineModifierPattern matches a leading mode-modifier group such as "(?im)"
var inlineModifierPattern = regexp.MustCompile(`^\(\?([imsu]+)\)`)

// NormalizedPattern is the canonical (source, flags) form of a pattern
type NormalizedPattern struct {
	Source string
	Flags  string
}

// NormalizePattern turns a descriptor into its canonical form. defaultFlags is
// the starting flag set when the descriptor carries none; an empty value means
// DefaultFlags. The second return value is false for an empty descriptor.
//
// The global flag is not forced here; callers add it with WithGlobal.
func NormalizePattern(p PatternDescriptor, defaultFlags string) (NormalizedPattern, bool) {
	if p.Regexp != nil {
		flags := p.Flags
		if flags == "" {
			flags = "g"
		}
		return NormalizedPattern{Source: p.Regexp.String(), Flags: uniqueFlags(flags)}, true
	}

	body := strings.TrimSpace(p.Source)
	if body == "" {
		return NormalizedPattern{}, false
	}

	flags := p.Flags
	if flags == "" {
		flags = defaultFlags
	}
	if flags == "" {
		flags = DefaultFlags
	}

	if inner, trailing, ok := splitDelimited(body); ok {
		body = inner
		flags += trailing
	}

	if m := inlineModifierPattern.FindStringSubmatch(body); m != nil {
		body = body[len(m[0]):]
		flags += m[1]
	}

	if p.Unicode != nil {
		if *p.Unicode {
			flags += "u"
		}
	} else if hasUnicodePropertyEscape(body) {
		flags += "u"
	}

	return NormalizedPattern{Source: body, Flags: uniqueFlags(flags)}, true
}

// WithGlobal returns a copy of the pattern with the global flag set so every
// match in the text is found, not just the first.
func (n NormalizedPattern) WithGlobal() NormalizedPattern {
	n.Flags = uniqueFlags(n.Flags + "g")
	return n
}

// HasFlag reports whether flag is part of the flag set
func (n NormalizedPattern) HasFlag(flag byte) bool {
	return strings.IndexByte(n.Flags, flag) >= 0
}

// splitDelimited splits "/body/flags" into body and flags. The closing slash
// must come after position 0 and be followed only by flag letters.
func splitDelimited(s string) (string, string, bool) {
	if !strings.HasPrefix(s, "/") {
		return "", "", false
	}
	last := strings.LastIndex(s, "/")
	if last <= 0 {
		return "", "", false
	}
	trailing := s[last+1:]
	for i := 0; i < len(trailing); i++ {
		c := trailing[i]
		if c < 'a' || c > 'z' {
			return "", "", false
		}
	}
	return s[1:last], trailing, true
}

// hasUnicodePropertyEscape is a substring heuristic: a literal "\p" outside a
// property construct also triggers it.
func hasUnicodePropertyEscape(s string) bool {
	return strings.Contains(s, `\p`) || strings.Contains(s, `\P{`)
}

// uniqueFlags drops repeated flag letters, keeping first occurrences
func uniqueFlags(flags string) string {
	var b strings.Builder
	for i := 0; i < len(flags); i++ {
		if strings.IndexByte(b.String(), flags[i]) < 0 {
			b.WriteByte(flags[i])
		}
	}
	return b.String()
}

// knownFlags are the flag letters a pattern may carry. Only i, m and s change
// RE2 compilation; g, u, y, d and v are accepted and have no effect on it.
const knownFlags = "dgimsuvy"

// compilePattern builds the RE2 program for a normalized pattern
func compilePattern(n NormalizedPattern) (*regexp.Regexp, error) {
	var modes strings.Builder
	for i := 0; i < len(n.Flags); i++ {
		f := n.Flags[i]
		if strings.IndexByte(knownFlags, f) < 0 {
			return nil, fmt.Errorf("invalid flag %q", string(f))
		}
		switch f {
		case 'i', 'm', 's':
			modes.WriteByte(f)
		}
	}

	source := n.Source
	if modes.Len() > 0 {
		source = "(?" + modes.String() + ")" + source
	}

	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}
	return re, nil
}
