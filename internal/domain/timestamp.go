package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reads the loosely typed timestamps the provider and seed
// files use: date strings (UTC when no offset is given) and unix times in
// seconds or milliseconds. Null or empty is a valid absence; ok is false only
// when a value was present but unreadable.
func ParseTimestamp(raw json.RawMessage) (*time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, true
	}

	if n, err := strconv.ParseFloat(text, 64); err == nil {
		var t time.Time
		if n >= 1e12 {
			t = time.UnixMilli(int64(n))
		} else {
			t = time.Unix(int64(n), 0)
		}
		t = t.UTC()
		return &t, true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			t = t.Truncate(time.Microsecond)
			return &t, true
		}
	}

	return nil, false
}
