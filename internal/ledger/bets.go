package ledger

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
)

// BetInfo is a participant's single wager in an epoch.
type BetInfo struct {
	Epoch       uint64
	Participant common.Address
	Position    event.Position
	Amount      uint64
	Claimed     bool
}

type betKey struct {
	epoch       uint64
	participant common.Address
}

// BetBook holds every wager, keyed by (epoch, participant), plus the ordered
// list of epochs each participant wagered in.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type BetBook struct {
	bets   map[betKey]*BetInfo
	rounds map[common.Address][]uint64
}

func NewBetBook() *BetBook {
	return &BetBook{
		bets:   make(map[betKey]*BetInfo),
		rounds: make(map[common.Address][]uint64),
	}
}

// Get returns a copy of the wager for (epoch, participant).
func (b *BetBook) Get(epoch uint64, participant common.Address) (BetInfo, bool) {
	bet, ok := b.bets[betKey{epoch, participant}]
	if !ok {
		return BetInfo{}, false
	}
	return *bet, true
}

// Put installs a committed wager.
func (b *BetBook) Put(bet BetInfo) {
	k := betKey{bet.Epoch, bet.Participant}
	if _, ok := b.bets[k]; !ok {
		b.rounds[bet.Participant] = insertSorted(b.rounds[bet.Participant], bet.Epoch)
	}
	c := bet
	b.bets[k] = &c
}

// UserRounds pages through the epochs a participant wagered in, oldest
// first. It returns the page and the cursor for the next call.
func (b *BetBook) UserRounds(participant common.Address, cursor, size int) ([]BetInfo, int) {
	epochs := b.rounds[participant]
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(epochs) || size <= 0 {
		return nil, cursor
	}
	end := cursor + size
	if end > len(epochs) {
		end = len(epochs)
	}
	out := make([]BetInfo, 0, end-cursor)
	for _, e := range epochs[cursor:end] {
		out = append(out, *b.bets[betKey{e, participant}])
	}
	return out, end
}

// UserRoundsLength returns how many epochs the participant wagered in.
func (b *BetBook) UserRoundsLength(participant common.Address) int {
	return len(b.rounds[participant])
}

// All returns every wager ordered by epoch then participant.
func (b *BetBook) All() []BetInfo {
	out := make([]BetInfo, 0, len(b.bets))
	for _, bet := range b.bets {
		out = append(out, *bet)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Epoch != out[j].Epoch {
			return out[i].Epoch < out[j].Epoch
		}
		return out[i].Participant.Cmp(out[j].Participant) < 0
	})
	return out
}

// ForEpoch returns the wagers of one epoch ordered by participant.
func (b *BetBook) ForEpoch(epoch uint64) []BetInfo {
	var out []BetInfo
	for k, bet := range b.bets {
		if k.epoch == epoch {
			out = append(out, *bet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant.Cmp(out[j].Participant) < 0 })
	return out
}

// Restore replaces all wagers during recovery.
func (b *BetBook) Restore(bets []BetInfo) {
	b.bets = make(map[betKey]*BetInfo, len(bets))
	b.rounds = make(map[common.Address][]uint64)
	for _, bet := range bets {
		b.Put(bet)
	}
}

// Outstanding sums what is still owed to participants: unclaimed winning
// shares of resolved rounds and unclaimed stakes of unresolved rounds.
func (b *BetBook) Outstanding(round func(epoch uint64) (*state.Round, bool)) uint64 {
	var total uint64
	for _, bet := range b.bets {
		if bet.Claimed {
			continue
		}
		r, ok := round(bet.Epoch)
		if !ok {
			continue
		}
		if !r.Resolved() {
			total += bet.Amount
			continue
		}
		if win, ok := r.Winner(); ok && win == bet.Position && r.RewardBaseCalAmount > 0 {
			// floor share, matching what Claim pays
			share, err := fpmath.Payout(bet.Amount, r.RewardAmount, r.RewardBaseCalAmount)
			if err == nil {
				total += share
			}
		}
	}
	return total
}

// Claimable reports whether the participant can collect a winning share.
func Claimable(r *state.Round, bet BetInfo) bool {
	if r == nil || !r.Resolved() || bet.Amount == 0 || bet.Claimed {
		return false
	}
	win, ok := r.Winner()
	return ok && win == bet.Position
}

// Refundable reports whether the participant can recover the stake of a
// round that was never resolved.
func Refundable(r *state.Round, bet BetInfo, now int64) bool {
	if r == nil || r.Resolved() || bet.Amount == 0 || bet.Claimed {
		return false
	}
	return now > r.CloseTimestamp
}

func insertSorted(epochs []uint64, epoch uint64) []uint64 {
	i := sort.Search(len(epochs), func(i int) bool { return epochs[i] >= epoch })
	epochs = append(epochs, 0)
	copy(epochs[i+1:], epochs[i:])
	epochs[i] = epoch
	return epochs
}
