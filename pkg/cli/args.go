// Package cli validates and parses operator-supplied command arguments.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a positive decimal token amount.
func ParseAmount(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %s must be positive", amount)
	}
	return amount, nil
}

// ParseBps parses a basis-point value in (0, 10000).
func ParseBps(input string) (int64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, errors.New("basis-point value is required")
	}
	bps, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid basis-point value %q: %w", input, err)
	}
	if bps <= 0 || bps >= 10_000 {
		return 0, fmt.Errorf("basis-point value %d out of range (0, 10000)", bps)
	}
	return bps, nil
}
