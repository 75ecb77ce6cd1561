package report

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidPayment = errors.New("invalid payment format")

// MaxPayment bounds a single report; anything above is treated as a typo.
const MaxPayment = 1_000_000

// largest float64 range where every whole value converts to int64 exactly
const exactIntLimit = 1 << 53

var (
	productRx = regexp.MustCompile(`^(\d+(?:\.\d+)?)[*xх](\d+(?:\.\d+)?)$`)
	plainRx   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// ParsePayment reads an amount from free text. Accepted shapes are a plain
// number ("500"), and count*rate ("2*350", "2x350", "2 х 350"). Either ',' or
// '.' works as decimal separator; currency words and spaces are ignored.
func ParsePayment(raw string) (float64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.NewReplacer("грн", "", "uah", "", ",", ".", " ", "").Replace(value)
	if value == "" {
		return 0, ErrInvalidPayment
	}

	if m := productRx.FindStringSubmatch(value); m != nil {
		count, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
		}
		rate, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
		}
		return bounded(count * rate)
	}

	if plainRx.MatchString(value) {
		amount, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
		}
		return bounded(amount)
	}

	return 0, ErrInvalidPayment
}

func bounded(amount float64) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount > MaxPayment {
		return 0, fmt.Errorf("%w: amount out of range", ErrInvalidPayment)
	}
	return amount, nil
}

// FormatAmount renders an amount in hryvnias, without decimals for whole values.
func FormatAmount(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "0 грн"
	}
	if amount == math.Trunc(amount) && math.Abs(amount) < exactIntLimit {
		return fmt.Sprintf("%d грн", int64(amount))
	}
	return fmt.Sprintf("%.2f грн", amount)
}
