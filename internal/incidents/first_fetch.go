package incidents

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var fetchUnits = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParseFirstFetch reads a look-back window such as "3 days" or "12 hours".
func ParseFirstFetch(s string) (time.Duration, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid first fetch %q: want \"<number> <unit>\"", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid first fetch %q: bad number", s)
	}
	unit, ok := fetchUnits[strings.TrimSuffix(fields[1], "s")]
	if !ok {
		return 0, fmt.Errorf("invalid first fetch %q: unknown unit %q", s, fields[1])
	}
	return time.Duration(n) * unit, nil
}
