package domain

import (
	"fmt"
	"strings"
)

// Side represents the side of an execution or of an aggregated lot (BUY or SELL).
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide converts an exchange side string into a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// SideFromIsBuyer maps the isBuyer flag of an account trade to a Side.
func SideFromIsBuyer(isBuyer bool) Side {
	if isBuyer {
		return Buy
	}
	return Sell
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}
