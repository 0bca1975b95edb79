package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NextBillingDate returns the start date for recurring charges following a
// confirmed first payment: one interval after it. Intervals use the
// gateway format, e.g. "1 month", "3 months", "1 year", "2 weeks".
func NextBillingDate(from time.Time, interval string) (time.Time, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(interval)))
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("%w: malformed interval %q", ErrValidation, interval)
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("%w: malformed interval %q", ErrValidation, interval)
	}

	switch strings.TrimSuffix(fields[1], "s") {
	case "day":
		return from.AddDate(0, 0, n), nil
	case "week":
		return from.AddDate(0, 0, 7*n), nil
	case "month":
		return from.AddDate(0, n, 0), nil
	case "year":
		return from.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown interval unit %q", ErrValidation, fields[1])
	}
}
