package core

import (
	"fmt"
	"time"
)

// DefaultMaxSkew is the freshness threshold applied to order book snapshots.
const DefaultMaxSkew = 120 * time.Millisecond

// CheckFresh rejects d when its receipt lags the exchange timestamp by more than maxSkew.
// A negative skew (exchange clock ahead of ours) is accepted.
func CheckFresh(d Depth, maxSkew time.Duration) error {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if skew := d.Skew(); skew > maxSkew {
		return fmt.Errorf("%w: %s skew %s exceeds %s", ErrStaleDepth, d.Symbol, skew, maxSkew)
	}
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyBook, d.Symbol)
	}
	return nil
}
