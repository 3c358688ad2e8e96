// Package kibi formats and parses human readable byte sizes, in powers of 1024.
package kibi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var leadingDigits = regexp.MustCompile(`^\d+`)

var ErrInvalidByteSizeString = fmt.Errorf("Invalid byte size string")

var units = []string{"bytes", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes rounds down to the largest whole unit, eg 1536 -> "1 KB"
func FormatBytes(b int64) string {
	i := 0
	for i < len(units)-1 && b >= 1024 {
		b /= 1024
		i++
	}
	return fmt.Sprintf("%v %v", b, units[i])
}

// ParseBytes parses a byte size such as "16 MB".
// Suffixes are case insensitive, and may be abbreviated to a single letter (eg 'm', 'g').
// A number without a suffix is a byte count.
func ParseBytes(v string) (int64, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	digits := leadingDigits.FindString(v)
	if digits == "" {
		return 0, ErrInvalidByteSizeString
	}
	suffix := strings.TrimSpace(v[len(digits):])
	multiplier := int64(1)
	switch suffix {
	case "", "b", "bytes":
	case "k", "kb":
		multiplier = 1024
	case "m", "mb":
		multiplier = 1024 * 1024
	case "g", "gb":
		multiplier = 1024 * 1024 * 1024
	case "t", "tb":
		multiplier = 1024 * 1024 * 1024 * 1024
	case "p", "pb":
		multiplier = 1024 * 1024 * 1024 * 1024 * 1024
	default:
		return 0, ErrInvalidByteSizeString
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, err
	}
	return value * multiplier, nil
}
