// Package util provides common utility functions for price and strike calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// StrikeIncrement returns the listing increment used for option strikes
// at the given underlying price: $1 below $50, $2.50 below $200, $5 at or above.
func StrikeIncrement(price float64) float64 {
	switch {
	case price < 50:
		return 1.0
	case price < 200:
		return 2.50
	default:
		return 5.0
	}
}

// RoundToStrike rounds a raw strike to the nearest listed increment
// for the underlying price.
func RoundToStrike(strike, underlying float64) float64 {
	return RoundToTick(strike, StrikeIncrement(underlying))
}

// ShortID returns a truncated ID string, safely handling IDs shorter than 8 characters.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
