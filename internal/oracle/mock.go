package oracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

// MockFeed is a deterministic Feed. It keeps returning the last scripted
// answer until told otherwise, like a real aggregator between updates.
type MockFeed struct {
	mu    sync.Mutex
	data  RoundData
	err   error
	calls int
}

func NewMockFeed() *MockFeed {
	return &MockFeed{}
}

// Set scripts the next answer.
func (m *MockFeed) Set(roundID uint64, price int64, updatedAt uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = RoundData{
		RoundID:         uint256.NewInt(roundID),
		Answer:          big.NewInt(price),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: uint256.NewInt(roundID),
	}
	m.err = nil
}

// SetRoundData scripts an arbitrary answer, including malformed ones.
func (m *MockFeed) SetRoundData(d RoundData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = d
	m.err = nil
}

// Advance publishes a new feed round with the given price.
func (m *MockFeed) Advance(price int64) uint64 {
	m.mu.Lock()
	next := uint64(1)
	if m.data.RoundID != nil {
		next = m.data.RoundID.Uint64() + 1
	}
	m.mu.Unlock()
	m.Set(next, price, next)
	return next
}

// Fail makes every read return err until the next Set.
func (m *MockFeed) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockFeed) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return RoundData{}, err
	}
	if m.err != nil {
		return RoundData{}, m.err
	}
	d := m.data
	if d.RoundID != nil {
		d.RoundID = d.RoundID.Clone()
	}
	if d.AnsweredInRound != nil {
		d.AnsweredInRound = d.AnsweredInRound.Clone()
	}
	if d.Answer != nil {
		d.Answer = new(big.Int).Set(d.Answer)
	}
	return d, nil
}
