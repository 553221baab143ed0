// Package pattern compiles the cache's glob syntax — "*" as the only
// wildcard, every other regexp metacharacter treated literally — into a
// reusable matcher.
//
// © 2025 duracache authors. MIT License.
package pattern

import (
	"regexp"
	"strings"
)

// Matcher tests whether a key matches a compiled pattern.
type Matcher struct {
	acceptAll bool
	re        *regexp.Regexp
}

// Compile builds a Matcher from p. The literal pattern "*" short-circuits to
// an always-match Matcher without touching the regexp engine.
func Compile(p string) (*Matcher, error) {
	if p == "*" {
		return &Matcher{acceptAll: true}, nil
	}

	// Collapse runs of '*' to a single '*' first, so "a**b" behaves like "a*b".
	collapsed := collapseStars(p)

	var b strings.Builder
	b.WriteByte('^')
	for _, r := range collapsed {
		if r == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	return &Matcher{re: re}, nil
}

// Match reports whether key satisfies the compiled pattern.
func (m *Matcher) Match(key string) bool {
	if m.acceptAll {
		return true
	}
	return m.re.MatchString(key)
}

func collapseStars(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	prevStar := false
	for _, r := range p {
		if r == '*' {
			if prevStar {
				continue
			}
			prevStar = true
		} else {
			prevStar = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
