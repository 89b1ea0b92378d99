package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major-unit amount such as "499.50" into paise.
// More than two fractional digits is rejected rather than rounded.
func ToMinor(major string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(major))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, major)
	}
	minor := d.Mul(hundred)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has sub-paise precision", ErrInvalidAmount, major)
	}
	if minor.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, major)
	}
	return minor.IntPart(), nil
}

// FormatMajor renders paise as a fixed two-decimal major amount, "499.50".
func FormatMajor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// FormatINR renders paise the way en-IN locales do: ₹1,23,456.70.
func FormatINR(minor int64) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	fixed := FormatMajor(minor)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped string
	if len(whole) <= 3 {
		grouped = whole
	} else {
		head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
		var parts []string
		for len(head) > 2 {
			parts = append([]string{head[len(head)-2:]}, parts...)
			head = head[:len(head)-2]
		}
		if head != "" {
			parts = append([]string{head}, parts...)
		}
		grouped = strings.Join(parts, ",") + "," + tail
	}
	out := "₹" + grouped + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
