package core

import (
	"context"
	"errors"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Submit once the processor loop has exited.
var ErrStopped = errors.New("processor stopped")

type request struct {
	ctx   context.Context
	cmd   event.Command
	reply chan response
}

type response struct {
	res Result
	err error
}

// Processor serializes commands from any number of goroutines (gRPC
// handlers, the NATS subscriber, the keeper) onto the single goroutine that
// owns the Engine.
type Processor struct {
	engine  *Engine
	reqs    chan request
	done    chan struct{}
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewProcessor(engine *Engine, queueSize int, logger zerolog.Logger, metrics *observability.Metrics) *Processor {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Processor{
		engine:  engine,
		reqs:    make(chan request, queueSize),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Submit enqueues cmd and waits for its result. A command submitted from
// inside a transfer callback is rejected before it reaches the queue: the
// loop is blocked on that transfer and would never serve it.
func (p *Processor) Submit(ctx context.Context, cmd event.Command) (Result, error) {
	if InTransfer(ctx) {
		return Result{}, errs.ErrReentrantCall.With("%s submitted during a transfer", cmd.CommandType())
	}

	req := request{ctx: ctx, cmd: cmd, reply: make(chan response, 1)}
	select {
	case p.reqs <- req:
	case <-p.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	p.observeDepth()

	select {
	case resp := <-req.reply:
		return resp.res, resp.err
	case <-p.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		// The command may still run; a retry with the same request id
		// returns its result.
		return Result{}, ctx.Err()
	}
}

// Run executes queued commands until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	defer close(p.done)
	p.logger.Info().Int("queue_size", cap(p.reqs)).Msg("processor started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Int64("sequence", p.engine.GetSequence()).Msg("processor stopped")
			return nil
		case req := <-p.reqs:
			p.observeDepth()
			if err := req.ctx.Err(); err != nil {
				req.reply <- response{err: err}
				continue
			}
			res, err := p.engine.Execute(req.ctx, req.cmd)
			req.reply <- response{res: res, err: err}
		}
	}
}

func (p *Processor) observeDepth() {
	if p.metrics != nil {
		p.metrics.ProcessorQueueDepth.Set(float64(len(p.reqs)))
	}
}
