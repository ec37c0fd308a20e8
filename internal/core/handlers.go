package core

import (
	"context"
	"math"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/settlement"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
)

// === Round lifecycle ===

func (e *Engine) handleStartRound(ctx context.Context, c *event.StartRound, now int64) (Result, error) {
	r, err := e.rounds.PrepareStart(now, c.LiveSeconds, c.LockSeconds)
	if err != nil {
		return Result{}, err
	}

	cs := e.newChangeset(c, now)
	cs.Rounds = []*state.Round{r}
	cs.addEvent(&event.RoundStarted{
		Epoch:          r.Epoch,
		StartTimestamp: r.StartTimestamp,
		LockTimestamp:  r.LockTimestamp,
		CloseTimestamp: r.CloseTimestamp,
	}, r.Epoch)
	cs.Result = Result{Epoch: r.Epoch}

	if err := e.commit(ctx, cs); err != nil {
		return Result{}, err
	}
	if e.metrics != nil {
		e.metrics.RoundsStarted.Inc()
	}
	e.logger.Info().
		Uint64("epoch", r.Epoch).
		Int64("lock_at", r.LockTimestamp).
		Int64("close_at", r.CloseTimestamp).
		Msg("round started")
	return cs.Result, nil
}

// handleLockRound checks the lifecycle, reads the oracle, then checks that the
// round is not already locked. A repeated lock against an oracle that has not
// advanced is therefore reported as stale.
func (e *Engine) handleLockRound(ctx context.Context, c *event.LockRound, now int64) (Result, error) {
	if _, err := e.rounds.CheckLock(now); err != nil {
		return Result{}, err
	}
	reading, err := e.oracle.Peek(ctx)
	if err != nil {
		return Result{}, err
	}
	r, err := e.rounds.PrepareLock(now, reading.RoundID, reading.Price)
	if err != nil {
		return Result{}, err
	}

	cs := e.newChangeset(c, now)
	cs.Rounds = []*state.Round{r}
	cs.Oracle = &reading
	cs.addEvent(&event.RoundLocked{
		Epoch:          r.Epoch,
		OracleRoundID:  reading.RoundID,
		Price:          reading.Price,
		CloseTimestamp: r.CloseTimestamp,
	}, r.Epoch)
	cs.Result = Result{Epoch: r.Epoch, OracleRoundID: reading.RoundID, Price: reading.Price}

	if err := e.commit(ctx, cs); err != nil {
		return Result{}, err
	}
	e.logger.Info().
		Uint64("epoch", r.Epoch).
		Str("oracle_round_id", reading.RoundID.Dec()).
		Int64("price", reading.Price).
		Int64("close_at", r.CloseTimestamp).
		Msg("round locked")
	return cs.Result, nil
}

// handleEndRound records the close price and settles the round in the same
// commit.
func (e *Engine) handleEndRound(ctx context.Context, c *event.EndRound, now int64) (Result, error) {
	if _, err := e.rounds.CheckEnd(now); err != nil {
		return Result{}, err
	}
	reading, err := e.oracle.Peek(ctx)
	if err != nil {
		return Result{}, err
	}
	r, err := e.rounds.PrepareEnd(now, reading.RoundID, reading.Price)
	if err != nil {
		return Result{}, err
	}

	res, err := e.settlement.Settle(r)
	if err != nil {
		return Result{}, err
	}
	e.settlement.Apply(r, res)

	cs := e.newChangeset(c, now)
	cs.Rounds = []*state.Round{r}
	cs.Oracle = &reading

	if res.TreasuryDelta > 0 {
		next, err := e.treasury.PrepareCredit(res.TreasuryDelta)
		if err != nil {
			return Result{}, err
		}
		jg := ledger.NewJournalGenerator(e.journalRef(cs), e.sequence+1, now)
		if err := jg.TieSweep(r.Epoch, res.TreasuryDelta); err != nil {
			return Result{}, err
		}
		cs.Treasury = &next
		cs.Batch = jg.Batch()
	}

	cs.addEvent(&event.RoundEnded{
		Epoch:         r.Epoch,
		OracleRoundID: reading.RoundID,
		Price:         reading.Price,
	}, r.Epoch)
	cs.addEvent(res.Event(r.Epoch), r.Epoch)
	cs.Result = Result{Epoch: r.Epoch, OracleRoundID: reading.RoundID, Price: reading.Price}

	if err := e.commit(ctx, cs); err != nil {
		return Result{}, err
	}

	residual := settlement.Residual(res, e.winnerStakes(r.Epoch, res.Outcome))
	if e.metrics != nil {
		e.metrics.RoundsSettled.WithLabelValues(res.Outcome.String()).Inc()
		e.metrics.SettlementResidual.Set(float64(residual))
	}
	e.logger.Info().
		Uint64("epoch", r.Epoch).
		Str("oracle_round_id", reading.RoundID.Dec()).
		Int64("lock_price", r.LockPrice).
		Int64("close_price", r.ClosePrice).
		Str("outcome", res.Outcome.String()).
		Uint64("reward_amount", res.RewardAmount).
		Uint64("reward_base", res.RewardBaseCalAmount).
		Uint64("treasury_delta", res.TreasuryDelta).
		Uint64("residual", residual).
		Msg("round ended")
	return cs.Result, nil
}

func (e *Engine) winnerStakes(epoch uint64, outcome settlement.Outcome) []uint64 {
	want := event.PositionBull
	if outcome == settlement.OutcomeBear {
		want = event.PositionBear
	}
	var stakes []uint64
	for _, bet := range e.bets.ForEpoch(epoch) {
		if bet.Position == want && !bet.Claimed {
			stakes = append(stakes, bet.Amount)
		}
	}
	return stakes
}

// === Wagers ===

func (e *Engine) handlePlaceBet(ctx context.Context, c *event.PlaceBet, now int64) (Result, error) {
	current := e.rounds.CurrentEpoch()
	if c.Epoch != current {
		return Result{}, errs.ErrWrongEpoch.With("bet on epoch %d, current %d", c.Epoch, current)
	}
	r, ok := e.rounds.Get(c.Epoch)
	if !ok {
		return Result{}, errs.ErrNotStarted.With("no round has been started")
	}
	if !r.AcceptingBets(now) {
		return Result{}, errs.ErrNotLive.With("epoch %d accepts bets in (%d, %d), now %d",
			r.Epoch, r.StartTimestamp, r.LockTimestamp, now)
	}
	if c.Amount == 0 {
		return Result{}, errs.ErrZeroAmount
	}
	if !c.Position.Valid() {
		return Result{}, errs.ErrInvalidPosition.With("position %d", c.Position)
	}
	if _, exists := e.bets.Get(c.Epoch, c.Caller); exists {
		return Result{}, errs.ErrDoubleBet.With("epoch %d participant %s", c.Epoch, c.Caller.Hex())
	}

	total, err := fpmath.AddUint64(r.TotalAmount, c.Amount)
	if err != nil {
		return Result{}, errs.ErrAmountOverflow.With("epoch %d total", r.Epoch)
	}
	if escrow := e.balances.EscrowBalance(); escrow < 0 || c.Amount > uint64(math.MaxInt64-escrow) {
		return Result{}, errs.ErrAmountOverflow.With("escrow %d + %d", escrow, c.Amount)
	}
	r.TotalAmount = total
	if c.Position == event.PositionBull {
		r.BullAmount += c.Amount
	} else {
		r.BearAmount += c.Amount
	}

	cs := e.newChangeset(c, now)
	jg := ledger.NewJournalGenerator(e.journalRef(cs), e.sequence+1, now)
	if err := jg.Wager(c.Caller, c.Epoch, c.Amount); err != nil {
		return Result{}, err
	}
	cs.Rounds = []*state.Round{r}
	cs.Bets = []ledger.BetInfo{{
		Epoch:       c.Epoch,
		Participant: c.Caller,
		Position:    c.Position,
		Amount:      c.Amount,
	}}
	cs.Batch = jg.Batch()
	cs.addEvent(&event.BetPlaced{
		Participant: c.Caller,
		Epoch:       c.Epoch,
		Amount:      c.Amount,
		Position:    c.Position,
	}, c.Epoch)
	cs.Result = Result{Epoch: c.Epoch, Amount: c.Amount}

	if err := e.commit(ctx, cs); err != nil {
		return Result{}, err
	}
	if e.metrics != nil {
		e.metrics.AmountWagered.WithLabelValues(c.Position.String()).Add(float64(c.Amount))
	}
	return cs.Result, nil
}

// === Claims ===

// handleClaim pays every listed epoch in one transfer. Claimed flags are
// committed before the transfer; a failed transfer commits a compensating
// changeset that restores them.
func (e *Engine) handleClaim(ctx context.Context, c *event.Claim, now int64) (Result, error) {
	if len(c.Epochs) == 0 {
		return Result{}, errs.ErrEmptyClaim
	}

	cs := e.newChangeset(c, now)
	jg := ledger.NewJournalGenerator(e.journalRef(cs), e.sequence+1, now)

	seen := make(map[uint64]struct{}, len(c.Epochs))
	before := make([]*state.Round, 0)
	var total uint64
	var refunded uint64

	for _, epoch := range c.Epochs {
		if _, dup := seen[epoch]; dup {
			return Result{}, errs.ErrDuplicateEpoch.With("epoch %d listed twice", epoch)
		}
		seen[epoch] = struct{}{}

		r, ok := e.rounds.Get(epoch)
		if !ok || r.StartTimestamp == 0 {
			return Result{}, errs.ErrNotStarted.With("epoch %d", epoch)
		}
		if now <= r.CloseTimestamp {
			return Result{}, errs.ErrTooEarly.With("epoch %d closes at %d, now %d", epoch, r.CloseTimestamp, now)
		}
		bet, _ := e.bets.Get(epoch, c.Caller)

		var amount uint64
		refund := false
		if r.Resolved() {
			if !ledger.Claimable(r, bet) {
				return Result{}, errs.ErrNotClaimable.With("epoch %d", epoch)
			}
			share, err := fpmath.Payout(bet.Amount, r.RewardAmount, r.RewardBaseCalAmount)
			if err != nil {
				return Result{}, errs.ErrNotClaimable.Wrap(err)
			}
			amount = share
			if err := jg.Payout(c.Caller, epoch, amount); err != nil {
				return Result{}, err
			}
		} else {
			if !ledger.Refundable(r, bet, now) {
				return Result{}, errs.ErrNotRefundable.With("epoch %d", epoch)
			}
			amount = bet.Amount
			refund = true
			if err := jg.Refund(c.Caller, epoch, amount); err != nil {
				return Result{}, err
			}
			// The refunded stake leaves the round so a late End only
			// distributes what is still in escrow.
			before = append(before, r.Clone())
			r.TotalAmount -= bet.Amount
			if bet.Position == event.PositionBull {
				r.BullAmount -= bet.Amount
			} else {
				r.BearAmount -= bet.Amount
			}
			cs.Rounds = append(cs.Rounds, r)
			refunded += amount
		}

		next, err := fpmath.AddUint64(total, amount)
		if err != nil {
			return Result{}, errs.ErrAmountOverflow.With("claim total")
		}
		total = next

		bet.Claimed = true
		cs.Bets = append(cs.Bets, bet)
		cs.addEvent(&event.Claimed{
			Participant: c.Caller,
			Epoch:       epoch,
			Amount:      amount,
			Refund:      refund,
		}, epoch)
	}

	cs.Batch = jg.Batch()
	cs.Result = Result{Amount: total}
	cs.RecordResult = false
	cs.deferEmit = true

	if err := e.commit(ctx, cs); err != nil {
		return Result{}, err
	}

	if err := e.transfer.Transfer(WithTransfer(ctx), c.Caller, total, transferRef(cs)); err != nil {
		return Result{}, e.revertClaim(ctx, cs, before, err)
	}

	e.finish(ctx, cs)
	if e.metrics != nil {
		e.metrics.AmountPaid.WithLabelValues("payout").Add(float64(total - refunded))
		e.metrics.AmountPaid.WithLabelValues("refund").Add(float64(refunded))
	}
	return cs.Result, nil
}

func (e *Engine) revertClaim(ctx context.Context, orig *Changeset, before []*state.Round, cause error) error {
	if e.metrics != nil {
		e.metrics.TransferFailures.WithLabelValues(orig.CommandType.String()).Inc()
	}

	rev := e.newRevertChangeset(orig)
	rev.Rounds = before
	epochs := make([]uint64, 0, len(orig.Bets))
	for _, bet := range orig.Bets {
		bet.Claimed = false
		rev.Bets = append(rev.Bets, bet)
		epochs = append(epochs, bet.Epoch)
	}
	rev.Batch = ledger.Reverse(orig.Batch, e.journalRef(rev)+":revert", e.sequence+1, orig.Timestamp)
	rev.addEvent(&event.ClaimReverted{
		Participant: orig.Caller,
		Epochs:      epochs,
		Amount:      orig.Result.Amount,
		Reason:      cause.Error(),
	}, 0)

	return e.commitRevert(ctx, rev, cause)
}

// === Treasury ===

func (e *Engine) handleClaimTreasury(ctx context.Context, c *event.ClaimTreasury, now int64) (Result, error) {
	amount, err := e.treasury.PrepareDrain()
	if err != nil {
		return Result{}, err
	}

	cs := e.newChangeset(c, now)
	jg := ledger.NewJournalGenerator(e.journalRef(cs), e.sequence+1, now)
	if err := jg.TreasuryDrain(c.Caller, amount); err != nil {
		return Result{}, err
	}
	var zero uint64
	cs.Treasury = &zero
	cs.Batch = jg.Batch()
	cs.addEvent(&event.TreasuryDrained{Recipient: c.Caller, Amount: amount}, 0)
	cs.Result = Result{Amount: amount}
	cs.RecordResult = false
	cs.deferEmit = true

	if err := e.commit(ctx, cs); err != nil {
		return Result{}, err
	}

	if err := e.transfer.Transfer(WithTransfer(ctx), c.Caller, amount, transferRef(cs)); err != nil {
		if e.metrics != nil {
			e.metrics.TransferFailures.WithLabelValues(cs.CommandType.String()).Inc()
		}
		rev := e.newRevertChangeset(cs)
		rev.Treasury = &amount
		rev.Batch = ledger.Reverse(cs.Batch, e.journalRef(rev)+":revert", e.sequence+1, cs.Timestamp)
		rev.addEvent(&event.DrainReverted{Amount: amount, Reason: err.Error()}, 0)
		return Result{}, e.commitRevert(ctx, rev, err)
	}

	e.finish(ctx, cs)
	if e.metrics != nil {
		e.metrics.AmountPaid.WithLabelValues("treasury").Add(float64(amount))
	}
	e.logger.Info().
		Str("recipient", c.Caller.Hex()).
		Uint64("amount", amount).
		Msg("treasury drained")
	return cs.Result, nil
}

// === Two-phase helpers ===

func (e *Engine) newRevertChangeset(orig *Changeset) *Changeset {
	return &Changeset{
		CommandID:   orig.CommandID,
		CommandType: orig.CommandType,
		Caller:      orig.Caller,
		Timestamp:   orig.Timestamp,
	}
}

// commitRevert commits a compensating changeset. The events of a reverted
// command are never emitted to sinks.
func (e *Engine) commitRevert(ctx context.Context, rev *Changeset, cause error) error {
	rev.deferEmit = true
	if err := e.commit(ctx, rev); err != nil {
		// The effects stay committed without a transfer; an operator has to
		// reconcile from the journal.
		e.logger.Error().
			Err(err).
			AnErr("transfer_error", cause).
			Str("command", rev.CommandType.String()).
			Str("caller", rev.Caller.Hex()).
			Msg("compensating commit failed")
		return errs.ErrTransferFailed.With("rollback failed: %v", err).Wrap(cause)
	}
	e.logger.Warn().
		Err(cause).
		Str("command", rev.CommandType.String()).
		Str("caller", rev.Caller.Hex()).
		Msg("transfer failed, effects reverted")
	return errs.ErrTransferFailed.Wrap(cause)
}

// finish records the result of a transferred command and emits its events.
func (e *Engine) finish(ctx context.Context, cs *Changeset) {
	if e.store != nil && cs.CommandID != "" {
		if err := e.store.SaveResult(context.WithoutCancel(ctx), cs.CommandType.String(), cs.Caller, cs.CommandID, cs.LastSequence(), cs.Result); err != nil {
			if e.metrics != nil {
				e.metrics.PersistErrors.WithLabelValues("save_result").Inc()
			}
			e.logger.Warn().Err(err).Str("request_id", cs.CommandID).Msg("failed to record command result")
		}
	}
	e.emit(cs)
}
