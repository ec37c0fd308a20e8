package state

import "github.com/gcdeng/eth-price-prediction-dapp/internal/errs"

// RoundPolicy bounds the intervals an administrator may request.
type RoundPolicy struct {
	// MinLockSeconds guards against closing before the oracle had time to
	// publish a new feed round.
	MinLockSeconds int64
}

// DefaultRoundPolicy matches a five minute Chainlink heartbeat.
var DefaultRoundPolicy = RoundPolicy{MinLockSeconds: 300}

// Validate checks the requested live and lock intervals.
func (p RoundPolicy) Validate(liveSeconds, lockSeconds int64) error {
	if liveSeconds < 0 || lockSeconds < 0 {
		return errs.ErrInvalidInterval.With("live=%d lock=%d", liveSeconds, lockSeconds)
	}
	if lockSeconds < p.MinLockSeconds {
		return errs.ErrLockIntervalTooShort.With("lock %ds < minimum %ds", lockSeconds, p.MinLockSeconds)
	}
	return nil
}
