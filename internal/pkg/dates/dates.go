// Package dates parses the date arguments accepted on the command line and
// in HTTP queries: a calendar date (2006-01-02, read as UTC) or an RFC 3339
// timestamp.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = time.DateOnly

// ErrInvalidDate is returned for values in neither accepted format.
var ErrInvalidDate = errors.New("invalid date")

func parse(value string) (t time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)

	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, true, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}

	return time.Time{}, false, fmt.Errorf("%w: %q (want YYYY-MM-DD or RFC 3339)", ErrInvalidDate, value)
}

// Parse returns the instant described by value. A calendar date is read as
// midnight UTC at the start of that day.
func Parse(value string) (time.Time, error) {
	t, _, err := parse(value)
	return t, err
}

// ParseEnd is like Parse but reads a calendar date as the last second of that
// day, so a date used as an inclusive upper bound covers the whole day.
func ParseEnd(value string) (time.Time, error) {
	t, dateOnly, err := parse(value)
	if err != nil || !dateOnly {
		return t, err
	}

	return t.Add(24*time.Hour - time.Second), nil
}
