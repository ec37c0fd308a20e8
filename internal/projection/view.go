package projection

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/holiman/uint256"
)

// View is the in-memory read model of committed market state.
//
// The engine calls Apply at the end of every successful commit, from its own
// goroutine; any number of readers query concurrently. Reads never enter the
// command loop and always observe whole changesets.
type View struct {
	mu sync.RWMutex

	rounds    *state.RoundManager
	bets      *ledger.BetBook
	treasury  uint64
	watermark *uint256.Int
	balances  map[ledger.AccountKey]int64
	payouts   *PayoutHistory

	lastSeq int64
}

var _ core.Projector = (*View)(nil)

func NewView() *View {
	return &View{
		rounds:    state.NewRoundManager(state.RoundPolicy{}),
		bets:      ledger.NewBetBook(),
		watermark: new(uint256.Int),
		balances:  make(map[ledger.AccountKey]int64),
		payouts:   NewPayoutHistory(),
	}
}

// Reset replaces the read model with a full state, e.g. after the engine
// restored from the store.
func (v *View) Reset(st *core.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rounds.Restore(st.Rounds)
	v.bets.Restore(st.Bets)
	v.treasury = st.Treasury
	v.watermark = new(uint256.Int)
	if st.Watermark != nil {
		v.watermark = st.Watermark.Clone()
	}
	v.balances = make(map[ledger.AccountKey]int64, len(st.Balances))
	for k, b := range st.Balances {
		v.balances[k] = b
	}
	v.payouts = NewPayoutHistory()
	v.lastSeq = st.Sequence
}

// Apply folds one committed changeset into the view.
func (v *View) Apply(cs *core.Changeset) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, r := range cs.Rounds {
		v.rounds.Put(r)
	}
	for _, b := range cs.Bets {
		v.bets.Put(b)
	}
	if cs.Treasury != nil {
		v.treasury = *cs.Treasury
	}
	if cs.Oracle != nil && cs.Oracle.RoundID != nil {
		v.watermark = cs.Oracle.RoundID.Clone()
	}
	for k, b := range cs.Balances {
		v.balances[k] = b
	}
	for _, env := range cs.Events {
		v.payouts.Observe(env)
	}
	if seq := cs.LastSequence(); seq > v.lastSeq {
		v.lastSeq = seq
	}
}

// AsOfSequence is the sequence of the last event folded into the view.
func (v *View) AsOfSequence() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastSeq
}

func (v *View) CurrentEpoch() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rounds.CurrentEpoch()
}

// Round returns a copy of the round for epoch.
func (v *View) Round(epoch uint64) (*state.Round, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rounds.Get(epoch)
}

// Rounds pages through rounds in epoch order, starting after the given
// epoch. A non-positive limit returns every remaining round.
func (v *View) Rounds(after uint64, limit int) []*state.Round {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []*state.Round
	for _, r := range v.rounds.All() {
		if r.Epoch <= after {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out
}

func (v *View) Bet(epoch uint64, participant common.Address) (ledger.BetInfo, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.bets.Get(epoch, participant)
}

// UserRounds pages through the participant's wagers, oldest epoch first.
// It returns the page, the next cursor and the total number of wagers.
func (v *View) UserRounds(participant common.Address, cursor, size int) ([]ledger.BetInfo, int, int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	page, next := v.bets.UserRounds(participant, cursor, size)
	return page, next, v.bets.UserRoundsLength(participant)
}

// Claimable reports whether participant holds an unclaimed winning wager
// in a resolved epoch.
func (v *View) Claimable(epoch uint64, participant common.Address) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	r, ok := v.rounds.Get(epoch)
	if !ok {
		return false
	}
	bet, _ := v.bets.Get(epoch, participant)
	return ledger.Claimable(r, bet)
}

// Refundable reports whether participant can recover the stake of an epoch
// that was never resolved and whose close time passed before now.
func (v *View) Refundable(epoch uint64, participant common.Address, now int64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	r, ok := v.rounds.Get(epoch)
	if !ok {
		return false
	}
	bet, _ := v.bets.Get(epoch, participant)
	return ledger.Refundable(r, bet, now)
}

func (v *View) Treasury() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.treasury
}

// Watermark is the highest oracle round id accepted so far.
func (v *View) Watermark() *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.watermark.Clone()
}

// Balance returns the ledger balance of one account.
func (v *View) Balance(key ledger.AccountKey) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balances[key]
}

// Balances returns a copy of every ledger balance.
func (v *View) Balances() map[ledger.AccountKey]int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[ledger.AccountKey]int64, len(v.balances))
	for k, b := range v.balances {
		out[k] = b
	}
	return out
}

// Payouts returns the participant's most recent payouts, newest first.
func (v *View) Payouts(participant common.Address, limit int) []PayoutEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.payouts.QueryByParticipant(participant, limit)
}
