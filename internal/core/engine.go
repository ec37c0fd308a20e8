package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/settlement"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/rs/zerolog"
)

// Config holds the engine's static parameters.
type Config struct {
	Admin               common.Address
	Policy              state.RoundPolicy
	IdempotencyCapacity int
}

// Deps are the collaborators injected into the engine. Store, Projector,
// Filter and Metrics may be nil.
type Deps struct {
	Oracle      PriceOracle
	Transfer    Transferer
	Clock       Clock
	Store       Store
	Idempotency DBIdempotencyChecker
	Projector   Projector
	Filter      CallerFilter
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

// Engine is the single-threaded command processor. Every command runs the
// same pipeline: dedupe, authorize, validate and build a changeset without
// touching state, commit it durably, apply it to memory, post-check
// invariants, then project and emit.
// Not thread-safe — drive it from one goroutine (see Processor).
type Engine struct {
	sequence int64
	hasher   *StateHasher

	rounds     *state.RoundManager
	bets       *ledger.BetBook
	treasury   *state.Treasury
	balances   *ledger.BalanceTracker
	validator  *ledger.InvariantValidator
	settlement *settlement.Engine

	idempotency *IdempotencyChecker

	admin     common.Address
	oracle    PriceOracle
	transfer  Transferer
	clock     Clock
	store     Store
	projector Projector
	filter    CallerFilter
	metrics   *observability.Metrics
	logger    zerolog.Logger

	sinks []chan<- CoreOutput
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = 100_000
	}
	balances := ledger.NewBalanceTracker()

	return &Engine{
		hasher:      NewStateHasher(),
		rounds:      state.NewRoundManager(cfg.Policy),
		bets:        ledger.NewBetBook(),
		treasury:    state.NewTreasury(),
		balances:    balances,
		validator:   ledger.NewInvariantValidator(balances),
		settlement:  settlement.NewEngine(),
		idempotency: NewIdempotencyChecker(cfg.IdempotencyCapacity, deps.Idempotency),
		admin:       cfg.Admin,
		oracle:      deps.Oracle,
		transfer:    deps.Transfer,
		clock:       deps.Clock,
		store:       deps.Store,
		projector:   deps.Projector,
		filter:      deps.Filter,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Subscribe registers a sink for committed events. Sends are non-blocking:
// a full sink drops the event. Call before the engine starts processing.
func (e *Engine) Subscribe(ch chan<- CoreOutput) {
	e.sinks = append(e.sinks, ch)
}

// Execute runs one command to completion.
func (e *Engine) Execute(ctx context.Context, cmd event.Command) (Result, error) {
	start := time.Now()
	cmdType := cmd.CommandType().String()

	if InTransfer(ctx) {
		err := errs.ErrReentrantCall.With("%s submitted during a transfer", cmdType)
		e.reject(cmd, err)
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	requestID := cmd.IdempotencyKey()
	if requestID != "" {
		if res, ok := e.idempotency.Lookup(ctx, cmdType, cmd.Sender(), requestID); ok {
			if e.metrics != nil {
				e.metrics.IdempotencyDuplicates.WithLabelValues(cmdType, "cache").Inc()
			}
			return res, nil
		}
	}

	if err := e.authorize(ctx, cmd); err != nil {
		e.reject(cmd, err)
		return Result{}, err
	}

	now := e.clock.Now().Unix()
	res, err := e.dispatch(ctx, cmd, now)
	if err != nil {
		e.reject(cmd, err)
		return Result{}, err
	}

	if requestID != "" {
		e.idempotency.MarkProcessed(cmdType, cmd.Sender(), requestID, res)
	}
	if e.metrics != nil {
		e.metrics.CoreCommandsApplied.WithLabelValues(cmdType).Inc()
		e.metrics.CoreCommandDuration.WithLabelValues(cmdType).Observe(time.Since(start).Seconds())
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.Size()))
	}
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, cmd event.Command, now int64) (Result, error) {
	switch c := cmd.(type) {
	case *event.StartRound:
		return e.handleStartRound(ctx, c, now)
	case *event.LockRound:
		return e.handleLockRound(ctx, c, now)
	case *event.EndRound:
		return e.handleEndRound(ctx, c, now)
	case *event.PlaceBet:
		return e.handlePlaceBet(ctx, c, now)
	case *event.Claim:
		return e.handleClaim(ctx, c, now)
	case *event.ClaimTreasury:
		return e.handleClaimTreasury(ctx, c, now)
	default:
		return Result{}, fmt.Errorf("unknown command type: %T", cmd)
	}
}

func (e *Engine) authorize(ctx context.Context, cmd event.Command) error {
	if cmd.CommandType().Privileged() {
		if cmd.Sender() != e.admin {
			return errs.ErrNotAdmin.With("%s by %s", cmd.CommandType(), cmd.Sender().Hex())
		}
		return nil
	}
	if e.filter != nil {
		return e.filter.Allow(ctx, cmd.Sender())
	}
	return nil
}

func (e *Engine) reject(cmd event.Command, err error) {
	kind := errs.KindOf(err)
	reason := errs.ReasonOf(err)
	if e.metrics != nil {
		e.metrics.CoreCommandsRejected.WithLabelValues(cmd.CommandType().String(), kind.String(), reason).Inc()
	}

	var classified *errs.Error
	lvl := zerolog.WarnLevel
	if errors.As(err, &classified) {
		lvl = zerolog.DebugLevel
	}
	e.logger.WithLevel(lvl).
		Err(err).
		Str("command", cmd.CommandType().String()).
		Str("request_id", cmd.IdempotencyKey()).
		Str("sender", cmd.Sender().Hex()).
		Msg("command rejected")
}

func (e *Engine) newChangeset(cmd event.Command, now int64) *Changeset {
	return &Changeset{
		CommandID:    cmd.IdempotencyKey(),
		CommandType:  cmd.CommandType(),
		Caller:       cmd.Sender(),
		Timestamp:    now,
		RecordResult: true,
	}
}

// journalRef is the event reference carried by journal entries.
func (e *Engine) journalRef(cs *Changeset) string {
	if cs.CommandID != "" {
		return cs.CommandID
	}
	return fmt.Sprintf("%s@%d", cs.CommandType, e.sequence+1)
}

// transferRef identifies the payout of a committed changeset. Request ids
// are only unique per caller, so the ref is keyed on the sequence of the
// first sealed event instead.
func transferRef(cs *Changeset) string {
	var seq int64
	if len(cs.Events) > 0 {
		seq = cs.Events[0].Sequence
	}
	return fmt.Sprintf("%s:%s:%d", cs.CommandType, cs.Caller.Hex(), seq)
}

// commit seals, persists and applies cs. Nothing in memory changes unless
// the store accepted the changeset.
func (e *Engine) commit(ctx context.Context, cs *Changeset) error {
	if err := e.seal(cs); err != nil {
		return err
	}
	if !cs.Batch.Empty() {
		if err := e.validator.ValidateBatchBalance(cs.Batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		cs.Balances = e.balances.Preview(cs.Batch)
	}

	if e.store != nil {
		// A durable commit must not be abandoned halfway because the caller
		// went away.
		if err := e.store.Commit(context.WithoutCancel(ctx), cs); err != nil {
			if e.metrics != nil {
				e.metrics.PersistErrors.WithLabelValues("commit").Inc()
			}
			return fmt.Errorf("commit %s: %w", cs.CommandType, err)
		}
	}

	e.apply(cs)

	if err := e.postCheckInvariants(cs); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	if e.projector != nil {
		e.projector.Apply(cs)
	}
	if !cs.deferEmit {
		e.emit(cs)
	}
	return nil
}

// seal assigns sequences and chains hashes without moving the tip.
func (e *Engine) seal(cs *Changeset) error {
	prev := e.hasher.Tip()
	seq := e.sequence
	for _, env := range cs.Events {
		seq++
		env.Sequence = seq
		env.PrevHash = prev
		digest, err := EnvelopeDigest(env)
		if err != nil {
			return fmt.Errorf("digest %s: %w", env.EventType, err)
		}
		env.StateHash = Chain(prev, seq, digest)
		prev = env.StateHash
	}
	return nil
}

func (e *Engine) apply(cs *Changeset) {
	for _, r := range cs.Rounds {
		e.rounds.Put(r)
	}
	for _, b := range cs.Bets {
		e.bets.Put(b)
	}
	if cs.Treasury != nil {
		e.treasury.Set(*cs.Treasury)
	}
	if cs.Oracle != nil {
		if err := e.oracle.Accept(*cs.Oracle); err != nil {
			panic(fmt.Sprintf("FATAL: committed oracle reading rejected: %v", err))
		}
	}
	if !cs.Batch.Empty() {
		if err := e.balances.ApplyBatch(cs.Batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch failed: %v", err))
		}
		if e.metrics != nil {
			for _, j := range cs.Batch.Journals {
				e.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}
	if n := len(cs.Events); n > 0 {
		e.sequence = cs.Events[n-1].Sequence
		e.hasher.SetTip(cs.Events[n-1].StateHash)
	}

	if e.metrics != nil {
		e.metrics.CoreSequence.Set(float64(e.sequence))
		e.metrics.TreasuryBalance.Set(float64(e.treasury.Balance()))
		e.metrics.CurrentEpoch.Set(float64(e.rounds.CurrentEpoch()))
	}
}

func (e *Engine) postCheckInvariants(cs *Changeset) error {
	for _, r := range cs.Rounds {
		if err := state.ValidateRoundTotals(r); err != nil {
			return err
		}
	}
	if err := e.validator.ValidateAll(e.treasury.Balance()); err != nil {
		return err
	}
	if cs.CommandType == event.CommandTypeClaim || cs.CommandType == event.CommandTypeEndRound {
		if err := e.validator.ValidateEscrowCovers(e.bets.Outstanding(e.rounds.Get)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emit(cs *Changeset) {
	for i, env := range cs.Events {
		out := CoreOutput{Envelope: env}
		if i == 0 {
			out.Batch = cs.Batch
		}
		for _, sink := range e.sinks {
			select {
			case sink <- out:
			default:
				if e.metrics != nil {
					e.metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

// --- Restore & Accessors ---

// Restore loads committed state at startup, before any command runs.
func (e *Engine) Restore(st *State) error {
	e.sequence = st.Sequence
	if st.Sequence == 0 {
		e.hasher.SetTip(GenesisHash())
	} else {
		e.hasher.SetTip(st.StateHash)
	}
	e.rounds.Restore(st.Rounds)
	e.bets.Restore(st.Bets)
	e.treasury.Set(st.Treasury)
	e.oracle.Restore(st.Watermark)
	e.balances.Restore(st.Balances)
	e.idempotency.Warm(st.Commands)

	if err := e.rounds.ValidateAccumulators(); err != nil {
		return fmt.Errorf("restored rounds: %w", err)
	}
	if err := e.validator.ValidateAll(st.Treasury); err != nil {
		return fmt.Errorf("restored balances: %w", err)
	}

	e.logger.Info().
		Int64("sequence", e.sequence).
		Uint64("epoch", e.rounds.CurrentEpoch()).
		Int("bets", len(st.Bets)).
		Uint64("treasury", st.Treasury).
		Msg("state restored")
	return nil
}

// Snapshot copies the full in-memory state, e.g. to seed a read model.
func (e *Engine) Snapshot() *State {
	return &State{
		Sequence:  e.sequence,
		StateHash: e.hasher.Tip(),
		Rounds:    e.rounds.All(),
		Bets:      e.bets.All(),
		Treasury:  e.treasury.Balance(),
		Watermark: e.oracle.Watermark(),
		Balances:  e.balances.Snapshot(),
	}
}

func (e *Engine) GetSequence() int64 {
	return e.sequence
}

func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.Tip()
}

func (e *Engine) Admin() common.Address {
	return e.admin
}
