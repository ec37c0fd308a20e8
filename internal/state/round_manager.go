package state

import (
	"math"
	"sort"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/holiman/uint256"
)

// RoundManager owns the epoch counter and the per-epoch round records.
//
// Transitions are split into Check/Prepare methods, which validate and return
// the would-be record without mutating anything, and Put, which installs a
// committed record. Only one epoch is active at a time.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type RoundManager struct {
	rounds  map[uint64]*Round
	current uint64
	policy  RoundPolicy
}

func NewRoundManager(policy RoundPolicy) *RoundManager {
	return &RoundManager{
		rounds: make(map[uint64]*Round),
		policy: policy,
	}
}

// CurrentEpoch returns the latest allocated epoch, 0 before the first round.
func (m *RoundManager) CurrentEpoch() uint64 {
	return m.current
}

// Current returns a copy of the latest round, or nil.
func (m *RoundManager) Current() *Round {
	return m.rounds[m.current].Clone()
}

// Get returns a copy of the round for epoch.
func (m *RoundManager) Get(epoch uint64) (*Round, bool) {
	r, ok := m.rounds[epoch]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// PrepareStart validates startRound and returns the next round record.
func (m *RoundManager) PrepareStart(now, liveSeconds, lockSeconds int64) (*Round, error) {
	if prev, ok := m.rounds[m.current]; ok && !prev.OracleCalled {
		return nil, errs.ErrRoundNotClosed.With("epoch %d has not closed", prev.Epoch)
	}
	if err := m.policy.Validate(liveSeconds, lockSeconds); err != nil {
		return nil, err
	}
	// Both bounds are in the future; neither may wrap past MaxInt64.
	if now < 0 || liveSeconds > math.MaxInt64-now || lockSeconds > math.MaxInt64-now-liveSeconds {
		return nil, errs.ErrInvalidInterval.With("live=%d lock=%d overflow timestamps at %d", liveSeconds, lockSeconds, now)
	}

	lockAt := now + liveSeconds
	return &Round{
		Epoch:          m.current + 1,
		StartTimestamp: now,
		LockTimestamp:  lockAt,
		CloseTimestamp: lockAt + lockSeconds,
		LockDuration:   lockSeconds,
	}, nil
}

// CheckLock runs the lifecycle checks that precede the oracle read.
func (m *RoundManager) CheckLock(now int64) (*Round, error) {
	r, ok := m.rounds[m.current]
	if !ok {
		return nil, errs.ErrNotStarted.With("no round has been started")
	}
	if now < r.LockTimestamp {
		return nil, errs.ErrTooEarly.With("epoch %d locks at %d, now %d", r.Epoch, r.LockTimestamp, now)
	}
	return r.Clone(), nil
}

// PrepareLock records the lock snapshot. The close bound floats: it is
// re-derived from the actual lock time.
func (m *RoundManager) PrepareLock(now int64, oracleRoundID *uint256.Int, price int64) (*Round, error) {
	r, err := m.CheckLock(now)
	if err != nil {
		return nil, err
	}
	if r.Locked {
		return nil, errs.ErrAlreadyLocked.With("epoch %d", r.Epoch)
	}

	r.Locked = true
	r.LockPrice = price
	r.LockOracleID = oracleRoundID.Clone()
	if r.LockDuration > math.MaxInt64-now {
		r.CloseTimestamp = math.MaxInt64
	} else {
		r.CloseTimestamp = now + r.LockDuration
	}
	return r, nil
}

// CheckEnd runs the lifecycle checks that precede the oracle read.
func (m *RoundManager) CheckEnd(now int64) (*Round, error) {
	r, ok := m.rounds[m.current]
	if !ok {
		return nil, errs.ErrNotStarted.With("no round has been started")
	}
	if !r.Locked {
		return nil, errs.ErrNotLocked.With("epoch %d", r.Epoch)
	}
	if now < r.CloseTimestamp {
		return nil, errs.ErrTooEarly.With("epoch %d closes at %d, now %d", r.Epoch, r.CloseTimestamp, now)
	}
	return r.Clone(), nil
}

// PrepareEnd records the close snapshot. Settlement fields are filled in by
// the settlement engine afterwards.
func (m *RoundManager) PrepareEnd(now int64, oracleRoundID *uint256.Int, price int64) (*Round, error) {
	r, err := m.CheckEnd(now)
	if err != nil {
		return nil, err
	}
	if r.OracleCalled {
		return nil, errs.ErrAlreadyClosed.With("epoch %d", r.Epoch)
	}

	r.OracleCalled = true
	r.ClosePrice = price
	r.CloseOracleID = oracleRoundID.Clone()
	return r, nil
}

// Put installs a committed round record.
func (m *RoundManager) Put(r *Round) {
	m.rounds[r.Epoch] = r.Clone()
	if r.Epoch > m.current {
		m.current = r.Epoch
	}
}

// Restore replaces all rounds during recovery.
func (m *RoundManager) Restore(rounds []*Round) {
	m.rounds = make(map[uint64]*Round, len(rounds))
	m.current = 0
	for _, r := range rounds {
		m.Put(r)
	}
}

// All returns copies of every round ordered by epoch.
func (m *RoundManager) All() []*Round {
	out := make([]*Round, 0, len(m.rounds))
	for _, r := range m.rounds {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })
	return out
}

// ValidateAccumulators checks total == bull + bear for every round.
func (m *RoundManager) ValidateAccumulators() error {
	for _, r := range m.rounds {
		if err := ValidateRoundTotals(r); err != nil {
			return err
		}
	}
	return nil
}
