package sysfs

import (
	"sort"
	"strconv"
	"strings"
)

// Stats maps a stats key to either an int64 or, when the value is not an
// integer, the raw string.
type Stats map[string]any

// Int returns the integer value for key.
func (s Stats) Int(key string) (int64, bool) {
	v, ok := s[key].(int64)
	return v, ok
}

// Text returns the raw string value for key when it did not parse as an integer.
func (s Stats) Text(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Keys returns the keys in sorted order.
func (s Stats) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// ParseStats parses newline-delimited "key: value" lines. A trailing % is
// stripped before integer parsing. Lines without a colon are skipped.
func ParseStats(data string) Stats {
	stats := make(Stats)
	for _, line := range strings.Split(data, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" {
			continue
		}

		if n, err := strconv.ParseInt(strings.TrimSuffix(v, "%"), 10, 64); err == nil {
			stats[k] = n
			continue
		}
		stats[k] = v
	}

	return stats
}
