// Package ignore parses .zipignore files and answers whether a source-relative
// path is excluded from an archive.
//
// Patterns are literal. A path is excluded when it equals a pattern or starts
// with one, so "build" excludes "build/out.o" as well as "build.log".
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultFileName is the ignore file looked up inside the source folder when
// no explicit path is configured.
const DefaultFileName = ".zipignore"

// Parse reads an ignore file and returns its patterns in file order.
//
// Blank lines and lines whose trimmed text starts with "#" are dropped. A
// trailing "# comment" is cut at the first "#" and the remainder re-trimmed.
func Parse(r io.Reader) ([]string, error) {
	var patterns []string

	// ReadString has no line-length limit, unlike bufio.Scanner.
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if p := parseLine(raw); p != "" {
			patterns = append(patterns, p)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ignore: read patterns: %w", err)
		}
	}

	return patterns, nil
}

// parseLine returns the pattern on one line, or "" for blanks and comments.
func parseLine(raw string) string {
	line := strings.TrimSpace(raw)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return line
}

// Matcher is an immutable, ordered list of literal ignore patterns.
type Matcher struct {
	patterns []string
}

// NewMatcher returns a Matcher over patterns. The slice is copied.
func NewMatcher(patterns []string) *Matcher {
	p := make([]string, len(patterns))
	copy(p, patterns)
	return &Matcher{patterns: p}
}

// Match reports whether relPath (forward-slash, no leading slash) is excluded.
// Matching is case-sensitive.
func (m *Matcher) Match(relPath string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.patterns {
		if relPath == p || strings.HasPrefix(relPath, p) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the cached patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Len returns the number of patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}
