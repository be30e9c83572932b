package database

import (
	"fmt"
	"math"
	"time"

	"unitprice/internal/unitprice"
)

// Both backends store instants as UnixNano.
var (
	minStoredTime = time.Unix(0, math.MinInt64)
	maxStoredTime = time.Unix(0, math.MaxInt64)
)

// checkTimes rejects zero instants and instants UnixNano cannot hold.
func checkTimes(op string, ts ...time.Time) error {
	for _, t := range ts {
		if t.IsZero() {
			return fmt.Errorf("%s: %w: timestamp is not set", op, unitprice.ErrInvalidInput)
		}
		if t.Before(minStoredTime) || t.After(maxStoredTime) {
			return fmt.Errorf("%s: %w: timestamp %s out of range", op, unitprice.ErrInvalidInput, t.Format(time.RFC3339))
		}
	}
	return nil
}
