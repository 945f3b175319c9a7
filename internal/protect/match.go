package protect

import "strings"

// globMatch matches a slash-separated path against a pattern where "**"
// spans any number of segments and "*" matches within one segment.
func globMatch(path, pattern string) bool {
	return matchSegments(strings.Split(path, "/"), strings.Split(pattern, "/"))
}

func matchSegments(path, pattern []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		if head == "**" {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(path); i++ {
				if matchSegments(path[i:], rest) {
					return true
				}
			}
			return false
		}
		if len(path) == 0 || !wildcard(path[0], head) {
			return false
		}
		path, pattern = path[1:], pattern[1:]
	}
	return len(path) == 0
}

// wildcard matches s against a pattern whose only metacharacter is "*".
func wildcard(s, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return s == pattern
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	middle := parts[1 : len(parts)-1]
	for _, part := range middle {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return len(s) >= len(last) && strings.HasSuffix(s, last)
}
