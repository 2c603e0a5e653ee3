package rules

import (
	"fmt"
	"strconv"
	"time"
)

// ParseDurationString parses the duration notation used by accountAge
// thresholds: an integer with a d/h/m/s suffix. A value with no suffix
// (or an unrecognized one that still parses as a number) is a raw
// millisecond count.
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	unit := s[len(s)-1]
	switch unit {
	case 'd', 'h', 'm', 's':
		n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration %q: %w", s, err)
		}
		switch unit {
		case 'd':
			return time.Duration(n) * 24 * time.Hour, nil
		case 'h':
			return time.Duration(n) * time.Hour, nil
		case 'm':
			return time.Duration(n) * time.Minute, nil
		default:
			return time.Duration(n) * time.Second, nil
		}
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration %q: %w", s, err)
		}
		return time.Duration(n) * time.Millisecond, nil
	}
}
