// Package staging computes staged file names for file-classified input
// ports. Resolution is a pure function of the declared pattern and the bound
// item count, which keeps it deterministic and safe to feed into the cache
// fingerprint.
package staging

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Resolve computes the staged name for each original file bound to a port
// declared with the given target pattern.
//
// A pattern may contain a single wildcard run, either a "*" or a run of "?".
// With one bound file, "*" is elided and a "?" run becomes the ordinal 1
// zero-padded to the run width. With N bound files, the run becomes the
// 1-based ordinal, zero-padded to the run width for "?" runs. A pattern
// without wildcards keeps its literal form for one file and gains an ordinal
// suffix before the extension for collections. An empty pattern preserves
// each original's base name.
func Resolve(pattern string, originals []string) ([]string, error) {
	n := len(originals)
	if n == 0 {
		return nil, nil
	}

	if pattern == "" {
		names := make([]string, n)
		for i, o := range originals {
			names[i] = filepath.Base(o)
		}
		return names, nil
	}

	start, width, star := wildcardRun(pattern)
	if start < 0 {
		if n == 1 {
			return []string{pattern}, nil
		}
		// No wildcard to expand: disambiguate with an ordinal before the
		// extension.
		ext := filepath.Ext(pattern)
		stem := strings.TrimSuffix(pattern, ext)
		names := make([]string, n)
		for i := range names {
			names[i] = stem + strconv.Itoa(i+1) + ext
		}
		return names, nil
	}

	prefix := pattern[:start]
	suffix := pattern[start+width:]
	if strings.ContainsAny(suffix, "*?") {
		return nil, fmt.Errorf("staging: pattern %q has more than one wildcard run", pattern)
	}

	if star && n == 1 {
		return []string{prefix + suffix}, nil
	}

	names := make([]string, n)
	for i := range names {
		ordinal := strconv.Itoa(i + 1)
		if !star {
			ordinal = fmt.Sprintf("%0*d", width, i+1)
		}
		names[i] = prefix + ordinal + suffix
	}
	return names, nil
}

// wildcardRun locates the first wildcard run in pattern. It returns the run's
// start offset and width, and whether it is a "*" run; start is -1 when the
// pattern is literal.
func wildcardRun(pattern string) (start, width int, star bool) {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*':
			end := i
			for end < len(pattern) && pattern[end] == '*' {
				end++
			}
			return i, end - i, true
		case '?':
			end := i
			for end < len(pattern) && pattern[end] == '?' {
				end++
			}
			return i, end - i, false
		}
	}
	return -1, 0, false
}
