package deal

import (
	"strconv"
	"strings"
	"time"
)

// displayLayout is the timeline display format (24-hour, minute precision).
const displayLayout = "2006-01-02 15:04"

// isoLayout parses CRM ISO-8601 timestamps after the trailing Z and any
// fractional seconds have been stripped.
const isoLayout = "2006-01-02T15:04:05"

// FormatTimestamp converts a raw engagement timestamp into a display string.
// The CRM emits two formats: epoch milliseconds (older records) and ISO-8601.
// Missing values render as "Unknown date"; anything unparseable falls back to
// the raw string as-is.
func FormatTimestamp(raw string) string {
	if raw == "" {
		return "Unknown date"
	}

	if isAllDigits(raw) {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return raw
		}
		return time.UnixMilli(ms).Format(displayLayout)
	}

	if strings.Contains(raw, "T") {
		t, err := time.ParseInLocation(isoLayout, trimISO(raw), time.Local)
		if err != nil {
			return raw
		}
		return t.Format(displayLayout)
	}

	return raw
}

// SortValue converts a raw engagement timestamp into a sortable epoch
// millisecond value. Missing and unparseable timestamps both map to 0, so
// they sort together at the front of a chronological listing; callers accept
// that approximation.
func SortValue(raw string) int64 {
	if raw == "" {
		return 0
	}

	if isAllDigits(raw) {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0
		}
		return ms
	}

	if strings.Contains(raw, "T") {
		t, err := time.ParseInLocation(isoLayout, trimISO(raw), time.Local)
		if err != nil {
			return 0
		}
		return t.UnixMilli()
	}

	return 0
}

// trimISO drops the trailing Z and truncates at the first fractional-second
// separator, leaving a naive local timestamp.
func trimISO(raw string) string {
	s := strings.ReplaceAll(raw, "Z", "")
	if i := strings.Index(s, "."); i >= 0 {
		s = s[:i]
	}
	return s
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
