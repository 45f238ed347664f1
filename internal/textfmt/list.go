package textfmt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// List renders registry entries one per index as indented JSON. A
// "refresh" timestamp field is shown relative to now.
func List[T any](now time.Time, items []T) string {
	if len(items) == 0 {
		return "(no entries)"
	}

	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d: %s\n", i, entry(now, item))
	}
	return b.String()
}

func entry(now time.Time, item any) string {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprintf("%+v", item)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return string(raw)
	}
	if s, ok := fields["refresh"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			fields["refresh"] = "in " + Between(now, t)
		}
	}
	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
