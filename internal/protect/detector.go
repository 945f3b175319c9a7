// Package protect withholds credential-bearing files from session context.
//
// A Detector is consulted when an item's file list is resolved into a scoped
// view. Matching files are dropped before their content is read, so a worker
// never receives keys, tokens or certificates even when an item names them.
package protect

import (
	"path"
	"strings"
)

// Detector decides whether a repository path is protected.
type Detector struct {
	patterns  []string
	names     []string
	fileTypes []string
}

// New creates a detector with the default rules plus extra patterns.
// An extra pattern containing "/" is matched against the whole path,
// otherwise against the base name.
func New(extra ...string) *Detector {
	d := &Detector{
		patterns:  append([]string(nil), DefaultPatterns...),
		names:     append([]string(nil), DefaultNames...),
		fileTypes: append([]string(nil), DefaultFileTypes...),
	}
	for _, p := range extra {
		d.Add(p)
	}
	return d
}

// Add registers one more pattern. Blank patterns are ignored.
func (d *Detector) Add(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	pattern = strings.TrimPrefix(pattern, "./")
	if strings.Contains(pattern, "/") {
		d.patterns = append(d.patterns, strings.TrimSuffix(pattern, "/")+suffixFor(pattern))
		return
	}
	d.names = append(d.names, pattern)
}

// a trailing slash names a directory and everything below it
func suffixFor(pattern string) string {
	if strings.HasSuffix(pattern, "/") {
		return "/**"
	}
	return ""
}

// Reason returns the rule that protects p, or "" when p is not protected.
func (d *Detector) Reason(p string) string {
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	base := path.Base(p)
	lowerBase := strings.ToLower(base)

	for _, ext := range d.fileTypes {
		if strings.HasSuffix(lowerBase, ext) {
			return "file type " + ext
		}
	}
	for _, name := range d.names {
		if wildcard(base, name) {
			return "name " + name
		}
	}
	for _, pattern := range d.patterns {
		if globMatch(p, pattern) {
			return "pattern " + pattern
		}
	}
	return ""
}

// IsProtected reports whether p matches any rule.
func (d *Detector) IsProtected(p string) bool {
	return d.Reason(p) != ""
}

// MatchesPath makes a Detector usable wherever an ignore matcher is accepted.
func (d *Detector) MatchesPath(p string) bool {
	return d.IsProtected(p)
}
