package core

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/oracle"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/holiman/uint256"
)

// Result is what a command returns to its caller. Fields unused by a
// command type are zero.
type Result struct {
	Epoch         uint64       `json:"epoch,omitempty"`
	OracleRoundID *uint256.Int `json:"oracle_round_id,omitempty"`
	Price         int64        `json:"price,omitempty"`
	// Amount is the total paid by Claim or drained by ClaimTreasury.
	Amount uint64 `json:"amount,omitempty"`
}

// Changeset is everything one command commits: the post-images of the
// records it touched, the ledger batch and the sealed event envelopes.
// A store writes it in one transaction; the engine then applies it to
// memory.
type Changeset struct {
	CommandID   string
	CommandType event.CommandType
	Caller      common.Address
	Timestamp   int64

	Rounds   []*state.Round
	Bets     []ledger.BetInfo
	Treasury *uint64
	Oracle   *oracle.Reading

	Batch *ledger.Batch
	// Balances holds the post-commit balance of every account Batch touches.
	Balances map[ledger.AccountKey]int64

	Events []*event.EventEnvelope

	Result Result
	// RecordResult is false for the first half of a claim or drain: the
	// result is stored only once the transfer succeeded.
	RecordResult bool

	// deferEmit holds back sink emission until the transfer completes.
	deferEmit bool
}

func (cs *Changeset) addEvent(evt event.Event, epoch uint64) {
	cs.Events = append(cs.Events, &event.EventEnvelope{
		CommandID: cs.CommandID,
		EventType: evt.EventType(),
		Epoch:     epoch,
		Timestamp: cs.Timestamp,
		Payload:   evt,
	})
}

// LastSequence returns the sequence of the last sealed event, or 0.
func (cs *Changeset) LastSequence() int64 {
	if len(cs.Events) == 0 {
		return 0
	}
	return cs.Events[len(cs.Events)-1].Sequence
}

// CommandRecord is a stored command result, used to warm the idempotency
// cache after a restart.
type CommandRecord struct {
	CommandType string
	Caller      common.Address
	RequestID   string
	Result      Result
}

// State is the full engine state loaded at startup.
type State struct {
	Sequence  int64
	StateHash [32]byte
	Rounds    []*state.Round
	Bets      []ledger.BetInfo
	Treasury  uint64
	Watermark *uint256.Int
	Balances  map[ledger.AccountKey]int64
	Commands  []CommandRecord
}

// CoreOutput is one committed event, fanned out to sinks (NATS, websocket).
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch // set on the first envelope of a command only
}

// Store durably commits changesets.
type Store interface {
	Commit(ctx context.Context, cs *Changeset) error
	SaveResult(ctx context.Context, commandType string, caller common.Address, requestID string, sequence int64, res Result) error
}

// Projector maintains a read model of committed state.
type Projector interface {
	Apply(cs *Changeset)
}

// Transferer moves value out of the market. It is the only external call a
// command makes after its effects are committed.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount uint64, ref string) error
}

// CallerFilter screens participant addresses, e.g. rejecting contracts.
type CallerFilter interface {
	Allow(ctx context.Context, addr common.Address) error
}

// PriceOracle is the validated oracle read used by Lock and End.
type PriceOracle interface {
	Peek(ctx context.Context) (oracle.Reading, error)
	Accept(r oracle.Reading) error
	Watermark() *uint256.Int
	Restore(w *uint256.Int)
}

// Clock supplies the command timestamp. The core never reads wall time
// directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type transferKey struct{}

// WithTransfer marks ctx as belonging to an in-flight value transfer.
func WithTransfer(ctx context.Context) context.Context {
	return context.WithValue(ctx, transferKey{}, true)
}

// InTransfer reports whether ctx was derived from a transfer call. Commands
// submitted with such a context are re-entrant and rejected.
func InTransfer(ctx context.Context) bool {
	v, _ := ctx.Value(transferKey{}).(bool)
	return v
}
