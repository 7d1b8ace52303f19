// Request-rate parsing for the load generator.
// Accepts strings like "10/s" or "300/m": a count per time unit.
package load

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxRateCount bounds the per-period count so a typo cannot turn the
// generator into a flood.
const maxRateCount = 10000

// Rate is a request count per time period.
type Rate struct {
	count  int
	period time.Duration
}

// ParseRate parses "N/unit" where unit is one of s, m, h (long forms accepted).
func ParseRate(s string) (Rate, error) {
	countPart, unitPart, ok := strings.Cut(s, "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q (expected 'N/unit', e.g. 10/s)", s)
	}

	count, err := strconv.Atoi(countPart)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate count %q: %w", countPart, err)
	}
	if count <= 0 {
		return Rate{}, fmt.Errorf("rate count must be positive, got %d", count)
	}
	if count > maxRateCount {
		return Rate{}, fmt.Errorf("rate count cannot exceed %d", maxRateCount)
	}

	var period time.Duration
	switch strings.ToLower(unitPart) {
	case "s", "sec", "second", "seconds":
		period = time.Second
	case "m", "min", "minute", "minutes":
		period = time.Minute
	case "h", "hour", "hours":
		period = time.Hour
	default:
		return Rate{}, fmt.Errorf("unsupported rate unit %q, supported units: s, m, h", unitPart)
	}

	return Rate{count: count, period: period}, nil
}

// PerSecond is a convenience constructor for whole requests per second.
func PerSecond(n int) Rate {
	return Rate{count: n, period: time.Second}
}

// Count returns the requests per period.
func (r Rate) Count() int { return r.count }

// Period returns the time period.
func (r Rate) Period() time.Duration { return r.period }

// Interval returns the gap between consecutive requests at this rate.
func (r Rate) Interval() time.Duration {
	if r.count <= 0 {
		return 0
	}
	return r.period / time.Duration(r.count)
}

// IsZero reports whether the rate was never set.
func (r Rate) IsZero() bool { return r.count == 0 }

func (r Rate) String() string {
	unit := "s"
	switch r.period {
	case time.Minute:
		unit = "m"
	case time.Hour:
		unit = "h"
	}
	return fmt.Sprintf("%d/%s", r.count, unit)
}
