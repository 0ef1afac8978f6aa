package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTime converts an elapsed-time cell into seconds. Accepted encodings,
// tried in order: bare number ("3600.5"), "H:MM:SS[.ff]", "MM:SS[.ff]".
// Anything else — including an empty cell — parses to 0 so that one bad cell
// never sinks a bulk import.
func ParseTime(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		if v < 0 {
			return 0
		}
		return v
	}

	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 3:
		h, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		m, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		sec, err3 := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
			return 0
		}
		return h*3600 + m*60 + sec
	case 2:
		m, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		sec, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil || m < 0 || sec < 0 {
			return 0
		}
		return m*60 + sec
	}
	return 0
}

// FormatTime renders seconds for display: "HH:MM:SS" from one hour up,
// "MM:SS" below, "" for zero or negative. Sub-second precision is dropped —
// exports show whole seconds only.
func FormatTime(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
