package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Precision is the granularity of a release date.
type Precision string

const (
	PrecisionYear  Precision = "year"
	PrecisionMonth Precision = "month"
	PrecisionDay   Precision = "day"
)

// DatePolicy decides how partial-precision dates are compared.
type DatePolicy string

const (
	// PolicyPeriodStart treats a missing month or day as the first of the period.
	PolicyPeriodStart DatePolicy = "period_start"

	// PolicyExclude rejects dates without day precision.
	PolicyExclude DatePolicy = "exclude"
)

var (
	// ErrMalformedDate indicates a release date string that cannot be parsed.
	ErrMalformedDate = errors.New("malformed release date")

	// ErrPartialDate indicates a partial-precision date rejected by PolicyExclude.
	ErrPartialDate = errors.New("partial-precision release date")

	// ErrUnknownPolicy is returned for an unrecognized date policy name.
	ErrUnknownPolicy = errors.New("unknown date policy")
)

// ReleaseDate is a calendar date with explicit precision.
type ReleaseDate struct {
	Year      int
	Month     time.Month
	Day       int
	Precision Precision
}

// ParseDatePolicy converts a configuration value into a DatePolicy.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch DatePolicy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")) {
	case PolicyPeriodStart, "":
		return PolicyPeriodStart, nil
	case PolicyExclude:
		return PolicyExclude, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// ParseReleaseDate parses "YYYY", "YYYY-MM" or "YYYY-MM-DD".
// The hint is the catalog-reported precision; when empty the precision
// is inferred from the shape of raw. A hint finer than the string is an error.
func ParseReleaseDate(raw string, hint string) (ReleaseDate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ReleaseDate{}, fmt.Errorf("%w: empty", ErrMalformedDate)
	}

	parts := strings.Split(raw, "-")
	if len(parts) > 3 {
		return ReleaseDate{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}

	var d ReleaseDate
	year, err := parseDatePart(parts[0], 4)
	if err != nil {
		return ReleaseDate{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	d.Year = year
	d.Month = time.January
	d.Day = 1
	d.Precision = PrecisionYear

	if len(parts) >= 2 {
		month, err := parseDatePart(parts[1], 2)
		if err != nil || month < 1 || month > 12 {
			return ReleaseDate{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
		}
		d.Month = time.Month(month)
		d.Precision = PrecisionMonth
	}

	if len(parts) == 3 {
		day, err := parseDatePart(parts[2], 2)
		if err != nil || day < 1 || day > daysIn(d.Month, d.Year) {
			return ReleaseDate{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
		}
		d.Day = day
		d.Precision = PrecisionDay
	}

	if hint != "" {
		p := Precision(strings.ToLower(hint))
		switch p {
		case PrecisionYear, PrecisionMonth, PrecisionDay:
		default:
			return ReleaseDate{}, fmt.Errorf("%w: unknown precision %q", ErrMalformedDate, hint)
		}
		if precisionRank(p) > precisionRank(d.Precision) {
			return ReleaseDate{}, fmt.Errorf("%w: %q does not have %s precision", ErrMalformedDate, raw, p)
		}
		d.Precision = p
	}

	return d, nil
}

// Normalize returns the date as UTC midnight under the given policy.
func (d ReleaseDate) Normalize(policy DatePolicy) (time.Time, error) {
	if policy == PolicyExclude && d.Precision != PrecisionDay {
		return time.Time{}, fmt.Errorf("%w: %s precision", ErrPartialDate, d.Precision)
	}

	month, day := d.Month, d.Day
	switch d.Precision {
	case PrecisionYear:
		month, day = time.January, 1
	case PrecisionMonth:
		day = 1
	}
	return time.Date(d.Year, month, day, 0, 0, 0, 0, time.UTC), nil
}

// String formats the date at its own precision.
func (d ReleaseDate) String() string {
	switch d.Precision {
	case PrecisionYear:
		return fmt.Sprintf("%04d", d.Year)
	case PrecisionMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
	}
}

func parseDatePart(s string, width int) (int, error) {
	if len(s) != width {
		return 0, fmt.Errorf("want %d digits, got %q", width, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit in %q", s)
		}
	}
	return strconv.Atoi(s)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func precisionRank(p Precision) int {
	switch p {
	case PrecisionYear:
		return 1
	case PrecisionMonth:
		return 2
	case PrecisionDay:
		return 3
	default:
		return 0
	}
}
