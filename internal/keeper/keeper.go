// Package keeper drives the round lifecycle on a schedule: it starts a
// round, locks it once its lock time passes, ends it once its close time
// passes and then starts the next one. It acts as the administrator.
package keeper

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Action is what a tick submitted.
type Action string

const (
	ActionNone  Action = "none"
	ActionStart Action = "start"
	ActionLock  Action = "lock"
	ActionEnd   Action = "end"
)

type Submitter interface {
	Submit(ctx context.Context, cmd event.Command) (core.Result, error)
}

// RoundReader is the read model the keeper inspects.
type RoundReader interface {
	CurrentEpoch() uint64
	Round(epoch uint64) (*state.Round, bool)
}

type Config struct {
	// Schedule is a six-field cron spec (with seconds), e.g. "*/5 * * * * *".
	Schedule    string
	LiveSeconds int64
	LockSeconds int64
}

type Keeper struct {
	cfg       Config
	admin     common.Address
	submitter Submitter
	rounds    RoundReader
	clock     core.Clock
	logger    zerolog.Logger

	cron *cron.Cron
	mu   sync.Mutex
}

func New(cfg Config, admin common.Address, submitter Submitter, rounds RoundReader, clock core.Clock, logger zerolog.Logger) *Keeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "*/5 * * * * *"
	}
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Keeper{
		cfg:       cfg,
		admin:     admin,
		submitter: submitter,
		rounds:    rounds,
		clock:     clock,
		logger:    logger,
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules Tick and starts the cron loop. Ticks run with ctx.
func (k *Keeper) Start(ctx context.Context) error {
	if _, err := k.cron.AddFunc(k.cfg.Schedule, func() {
		if _, err := k.Tick(ctx); err != nil {
			k.logger.Warn().Err(err).Msg("keeper tick")
		}
	}); err != nil {
		return fmt.Errorf("keeper schedule %q: %w", k.cfg.Schedule, err)
	}
	k.cron.Start()
	k.logger.Info().Str("schedule", k.cfg.Schedule).Msg("keeper started")
	return nil
}

// Stop waits for a running tick to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
	k.logger.Info().Msg("keeper stopped")
}

// Tick submits at most one lifecycle command for the current round. Request
// ids are derived from the epoch, so a tick repeated after a crash replays
// the stored result instead of acting twice.
func (k *Keeper) Tick(ctx context.Context) (Action, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.clock.Now().Unix()
	epoch := k.rounds.CurrentEpoch()

	var (
		action Action
		cmd    event.Command
	)
	r, ok := k.rounds.Round(epoch)
	switch {
	case epoch == 0 || !ok || r.Resolved():
		action = ActionStart
		cmd = &event.StartRound{
			RequestID:   requestID(ActionStart, epoch+1),
			Caller:      k.admin,
			LiveSeconds: k.cfg.LiveSeconds,
			LockSeconds: k.cfg.LockSeconds,
		}
	case !r.Locked && now >= r.LockTimestamp:
		action = ActionLock
		cmd = &event.LockRound{RequestID: requestID(ActionLock, epoch), Caller: k.admin}
	case r.Locked && now >= r.CloseTimestamp:
		action = ActionEnd
		cmd = &event.EndRound{RequestID: requestID(ActionEnd, epoch), Caller: k.admin}
	default:
		return ActionNone, nil
	}

	res, err := k.submitter.Submit(ctx, cmd)
	if err != nil {
		return action, fmt.Errorf("%s epoch %d: %w", action, epoch, err)
	}
	k.logger.Info().
		Str("action", string(action)).
		Uint64("epoch", res.Epoch).
		Int64("price", res.Price).
		Msg("keeper advanced round")
	return action, nil
}

func requestID(a Action, epoch uint64) string {
	return fmt.Sprintf("keeper:%s:%d", a, epoch)
}

