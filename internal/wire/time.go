package wire

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

// ParseTimestamp converts a create_date value to epoch milliseconds. It
// accepts RFC 3339, "2006-01-02 15:04:05" (UTC) and epoch seconds or
// milliseconds. Unparseable input yields 0.
func ParseTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochMillis(n)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func timestampResult(r gjson.Result) int64 {
	if r.Type == gjson.Number {
		return epochMillis(r.Int())
	}
	return ParseTimestamp(r.String())
}

// epochMillis treats values below 1e12 as seconds.
func epochMillis(n int64) int64 {
	if n <= 0 {
		return 0
	}
	if n < 1_000_000_000_000 {
		return n * 1000
	}
	return n
}
