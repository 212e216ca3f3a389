package commands

import (
	"regexp"
	"sync"
)

// Matcher finds the first pattern matching a command's free text. Patterns
// are compiled case-insensitively and unanchored; compiled expressions are
// cached per pattern string.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

func NewMatcher() *Matcher {
	return &Matcher{cache: make(map[string]*regexp.Regexp)}
}

// Match scans candidates in order and returns the first pattern whose
// expression matches anywhere in text, with its submatches. The wildcard and
// patterns that do not compile never match.
func (m *Matcher) Match(candidates []string, text string) (string, []string, bool) {
	for _, pattern := range candidates {
		if pattern == Wildcard {
			continue
		}
		re := m.compiled(pattern)
		if re == nil {
			continue
		}
		if match := re.FindStringSubmatch(text); match != nil {
			return pattern, match, true
		}
	}
	return "", nil, false
}

func (m *Matcher) compiled(pattern string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re, _ = compilePattern(pattern)

	m.mu.Lock()
	m.cache[pattern] = re
	m.mu.Unlock()
	return re
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
