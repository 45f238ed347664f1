package textfmt

import (
	"fmt"
	"strings"
	"time"
)

var units = []struct {
	name string
	secs int64
}{
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// Duration renders d in whole seconds, e.g. "1 day, 2 hours and 5 seconds".
// Zero (and sub-second) durations render as "". Negative durations are
// rendered by magnitude.
func Duration(d time.Duration) string {
	left := int64(d / time.Second)
	if left < 0 {
		left = -left
	}

	var parts []string
	for _, u := range units {
		n := left / u.secs
		left %= u.secs
		if n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s%s", n, u.name, Plural(int(n))))
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

// Between renders the distance between two instants regardless of order.
func Between(a, b time.Time) string {
	return Duration(b.Sub(a))
}

// Plural returns the English plural suffix for n items.
func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
