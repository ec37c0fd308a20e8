package payout

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrRejected is the default failure injected by MemoryTransferer.Fail.
var ErrRejected = errors.New("transfer rejected by recipient")

// Record is one transfer seen by MemoryTransferer.
type Record struct {
	To     common.Address
	Amount uint64
	Ref    string
}

// MemoryTransferer records transfers in memory. It backs tests and the
// dry-run mode of the daemon.
type MemoryTransferer struct {
	mu      sync.Mutex
	records []Record
	fail    map[common.Address]error
	hook    func(ctx context.Context, to common.Address)
}

func NewMemoryTransferer() *MemoryTransferer {
	return &MemoryTransferer{fail: make(map[common.Address]error)}
}

// Fail makes every transfer to addr fail with err (ErrRejected if nil).
func (m *MemoryTransferer) Fail(addr common.Address, err error) {
	if err == nil {
		err = ErrRejected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[addr] = err
}

// Recover clears an injected failure.
func (m *MemoryTransferer) Recover(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fail, addr)
}

// OnTransfer installs a callback run on every transfer before it is
// recorded, standing in for code executed by the recipient.
func (m *MemoryTransferer) OnTransfer(fn func(ctx context.Context, to common.Address)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

func (m *MemoryTransferer) Transfer(ctx context.Context, to common.Address, amount uint64, ref string) error {
	m.mu.Lock()
	hook := m.hook
	err := m.fail[to]
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, to)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, Record{To: to, Amount: amount, Ref: ref})
	return nil
}

// Records returns a copy of the successful transfers.
func (m *MemoryTransferer) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Total returns the sum paid to addr.
func (m *MemoryTransferer) Total(addr common.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum uint64
	for _, r := range m.records {
		if r.To == addr {
			sum += r.Amount
		}
	}
	return sum
}
