package query

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/persistence"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/projection"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
)

// ErrNotFound is returned when a round or wager does not exist.
var ErrNotFound = errors.New("not found")

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Archive is the durable history behind the in-memory view.
type Archive interface {
	JournalForEpoch(ctx context.Context, epoch uint64) ([]persistence.JournalRow, error)
	VerifyEventLog(ctx context.Context, batchSize int) ([32]byte, int64, error)
}

// Options sets the decimals used to render prices and amounts.
type Options struct {
	PriceDecimals  uint8
	AmountDecimals uint8
}

// QueryService serves read-only queries from the projection view. Journal
// history and integrity checks go to the archive when one is configured.
// All responses include as_of_sequence for freshness semantics.
type QueryService struct {
	view    *projection.View
	archive Archive
	clock   core.Clock
	opts    Options
}

func NewQueryService(view *projection.View, archive Archive, clock core.Clock, opts Options) *QueryService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &QueryService{view: view, archive: archive, clock: clock, opts: opts}
}

// Status summarizes the current round, treasury and oracle watermark.
func (qs *QueryService) Status(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{
		CurrentEpoch:  qs.view.CurrentEpoch(),
		Treasury:      qs.view.Treasury(),
		OracleRoundID: qs.view.Watermark().Dec(),
		AsOfSequence:  qs.view.AsOfSequence(),
	}
	if r, ok := qs.view.Round(resp.CurrentEpoch); ok {
		resp.CurrentStatus = r.Status(qs.now()).String()
	}
	return resp, nil
}

// GetRound returns one round.
func (qs *QueryService) GetRound(ctx context.Context, epoch uint64) (*RoundResponse, error) {
	r, ok := qs.view.Round(epoch)
	if !ok {
		return nil, fmt.Errorf("round %d: %w", epoch, ErrNotFound)
	}
	resp := qs.roundResponse(r)
	return &resp, nil
}

// ListRounds returns rounds in epoch order, starting after the given epoch.
func (qs *QueryService) ListRounds(ctx context.Context, after uint64, limit int) ([]RoundResponse, error) {
	rounds := qs.view.Rounds(after, pageSize(limit))
	out := make([]RoundResponse, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, qs.roundResponse(r))
	}
	return out, nil
}

// GetBet returns the participant's wager in epoch.
func (qs *QueryService) GetBet(ctx context.Context, epoch uint64, participant common.Address) (*BetResponse, error) {
	bet, ok := qs.view.Bet(epoch, participant)
	if !ok {
		return nil, fmt.Errorf("bet %d/%s: %w", epoch, participant.Hex(), ErrNotFound)
	}
	resp := qs.betResponse(bet)
	return &resp, nil
}

// UserRounds pages through a participant's wagers, oldest epoch first.
func (qs *QueryService) UserRounds(ctx context.Context, participant common.Address, cursor, size int) (*UserRoundsResponse, error) {
	bets, next, total := qs.view.UserRounds(participant, cursor, pageSize(size))
	resp := &UserRoundsResponse{
		Participant:  participant.Hex(),
		Bets:         make([]BetResponse, 0, len(bets)),
		Cursor:       next,
		Total:        total,
		AsOfSequence: qs.view.AsOfSequence(),
	}
	for _, b := range bets {
		resp.Bets = append(resp.Bets, qs.betResponse(b))
	}
	return resp, nil
}

// Claimable reports whether participant can collect a winning share of epoch.
func (qs *QueryService) Claimable(ctx context.Context, epoch uint64, participant common.Address) (*PredicateResponse, error) {
	return &PredicateResponse{
		Epoch:        epoch,
		Participant:  participant.Hex(),
		Value:        qs.view.Claimable(epoch, participant),
		AsOfSequence: qs.view.AsOfSequence(),
	}, nil
}

// Refundable reports whether participant can recover the stake of epoch.
func (qs *QueryService) Refundable(ctx context.Context, epoch uint64, participant common.Address) (*PredicateResponse, error) {
	return &PredicateResponse{
		Epoch:        epoch,
		Participant:  participant.Hex(),
		Value:        qs.view.Refundable(epoch, participant, qs.now()),
		AsOfSequence: qs.view.AsOfSequence(),
	}, nil
}

func (qs *QueryService) Treasury(ctx context.Context) (*TreasuryResponse, error) {
	bal := qs.view.Treasury()
	return &TreasuryResponse{
		Balance:        bal,
		BalanceDisplay: fpmath.FormatAmount(bal, qs.opts.AmountDecimals),
		AsOfSequence:   qs.view.AsOfSequence(),
	}, nil
}

func (qs *QueryService) Oracle(ctx context.Context) (*OracleResponse, error) {
	return &OracleResponse{
		Watermark:    qs.view.Watermark().Dec(),
		AsOfSequence: qs.view.AsOfSequence(),
	}, nil
}

// Payouts returns the participant's most recent payouts, newest first.
func (qs *QueryService) Payouts(ctx context.Context, participant common.Address, limit int) ([]PayoutResponse, error) {
	entries := qs.view.Payouts(participant, pageSize(limit))
	out := make([]PayoutResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, PayoutResponse{
			Epoch:         e.Epoch,
			Amount:        e.Amount,
			AmountDisplay: fpmath.FormatAmount(e.Amount, qs.opts.AmountDecimals),
			Refund:        e.Refund,
			Reverted:      e.Reverted,
			Sequence:      e.Sequence,
			Timestamp:     e.Timestamp,
		})
	}
	return out, nil
}

// GetJournalHistory returns the journal entries recorded for one round.
func (qs *QueryService) GetJournalHistory(ctx context.Context, epoch uint64) ([]JournalHistoryEntry, error) {
	if qs.archive == nil {
		return nil, errors.New("journal history requires a store")
	}
	rows, err := qs.archive.JournalForEpoch(ctx, epoch)
	if err != nil {
		return nil, fmt.Errorf("journal for epoch %d: %w", epoch, err)
	}
	entries := make([]JournalHistoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, JournalHistoryEntry{
			JournalID:     r.JournalID,
			BatchID:       r.BatchID,
			EventRef:      r.EventRef,
			Sequence:      r.Sequence,
			DebitAccount:  r.DebitAccount,
			CreditAccount: r.CreditAccount,
			Amount:        r.Amount,
			JournalType:   ledger.JournalType(r.JournalType).String(),
			Epoch:         r.Epoch,
			Timestamp:     r.Timestamp,
		})
	}
	return entries, nil
}

// --- Admin APIs ---

// VerifyIntegrity re-verifies the event log hash chain and checks that the
// ledger sums to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	for _, b := range qs.view.Balances() {
		report.GlobalImbalance += b
	}

	if qs.archive != nil {
		tip, n, err := qs.archive.VerifyEventLog(ctx, 1000)
		report.EventsVerified = n
		report.ChainTip = hex.EncodeToString(tip[:])
		if err != nil {
			report.ChainError = err.Error()
		}
	}

	report.IsHealthy = report.ChainError == "" && report.GlobalImbalance == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) now() int64 {
	return qs.clock.Now().Unix()
}

func (qs *QueryService) roundResponse(r *state.Round) RoundResponse {
	resp := RoundResponse{
		Epoch:               r.Epoch,
		Status:              r.Status(qs.now()).String(),
		StartTimestamp:      r.StartTimestamp,
		LockTimestamp:       r.LockTimestamp,
		CloseTimestamp:      r.CloseTimestamp,
		LockPrice:           r.LockPrice,
		LockPriceDisplay:    fpmath.FormatFixed(r.LockPrice, qs.opts.PriceDecimals),
		ClosePrice:          r.ClosePrice,
		ClosePriceDisplay:   fpmath.FormatFixed(r.ClosePrice, qs.opts.PriceDecimals),
		TotalAmount:         r.TotalAmount,
		TotalAmountDisplay:  fpmath.FormatAmount(r.TotalAmount, qs.opts.AmountDecimals),
		BullAmount:          r.BullAmount,
		BearAmount:          r.BearAmount,
		RewardBaseCalAmount: r.RewardBaseCalAmount,
		RewardAmount:        r.RewardAmount,
		Locked:              r.Locked,
		Closed:              r.OracleCalled,
		AsOfSequence:        qs.view.AsOfSequence(),
	}
	if r.LockOracleID != nil {
		resp.LockOracleID = r.LockOracleID.Dec()
	}
	if r.CloseOracleID != nil {
		resp.CloseOracleID = r.CloseOracleID.Dec()
	}
	if win, ok := r.Winner(); ok {
		resp.Winner = win.String()
	} else if r.Tie() {
		resp.Winner = "tie"
	}
	return resp
}

func (qs *QueryService) betResponse(bet ledger.BetInfo) BetResponse {
	return BetResponse{
		Epoch:         bet.Epoch,
		Participant:   bet.Participant.Hex(),
		Position:      bet.Position.String(),
		Amount:        bet.Amount,
		AmountDisplay: fpmath.FormatAmount(bet.Amount, qs.opts.AmountDecimals),
		Claimed:       bet.Claimed,
		Claimable:     qs.view.Claimable(bet.Epoch, bet.Participant),
		Refundable:    qs.view.Refundable(bet.Epoch, bet.Participant, qs.now()),
		AsOfSequence:  qs.view.AsOfSequence(),
	}
}

func pageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	}
	return n
}
