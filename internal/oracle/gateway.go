package oracle

import (
	"context"
	"time"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/holiman/uint256"
)

// Reading is an accepted price snapshot.
type Reading struct {
	RoundID   *uint256.Int
	Price     int64
	UpdatedAt int64
}

// Gateway enforces that every accepted snapshot carries a feed round id
// strictly greater than the last one accepted, across all rounds.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type Gateway struct {
	feed         Feed
	timeout      time.Duration
	lastAccepted *uint256.Int
	metrics      *observability.Metrics
}

func NewGateway(feed Feed, timeout time.Duration, metrics *observability.Metrics) *Gateway {
	return &Gateway{
		feed:         feed,
		timeout:      timeout,
		lastAccepted: uint256.NewInt(0),
		metrics:      metrics,
	}
}

// FetchPrice reads and validates the latest snapshot, then advances the watermark.
func (g *Gateway) FetchPrice(ctx context.Context) (Reading, error) {
	r, err := g.Peek(ctx)
	if err != nil {
		return Reading{}, err
	}
	if err := g.Accept(r); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// Peek reads and validates the latest snapshot without advancing the
// watermark. The core peeks while validating a transition and accepts only
// once the transition is committed.
func (g *Gateway) Peek(ctx context.Context) (Reading, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	data, err := g.feed.LatestRoundData(ctx)
	if err != nil {
		g.record("unavailable")
		return Reading{}, errs.ErrOracleUnavailable.Wrap(err)
	}

	r, err := g.validate(data)
	if err != nil {
		g.record(errs.ReasonOf(err))
		return Reading{}, err
	}
	g.record("ok")
	return r, nil
}

// Accept advances the watermark to r.RoundID.
func (g *Gateway) Accept(r Reading) error {
	if r.RoundID == nil || !r.RoundID.Gt(g.lastAccepted) {
		return errs.ErrOracleStale.With("round id %s <= watermark %s", r.RoundID, g.lastAccepted)
	}
	g.lastAccepted = r.RoundID.Clone()
	if g.metrics != nil {
		g.metrics.OracleWatermark.Set(float64(g.lastAccepted.Uint64()))
	}
	return nil
}

func (g *Gateway) validate(d RoundData) (Reading, error) {
	if d.UpdatedAt == 0 || d.RoundID == nil {
		return Reading{}, errs.ErrOracleIncomplete.With("feed round not finalized")
	}
	if !d.RoundID.Gt(g.lastAccepted) {
		return Reading{}, errs.ErrOracleStale.With("round id %s <= watermark %s", d.RoundID, g.lastAccepted)
	}
	if d.Answer == nil || !d.Answer.IsInt64() {
		return Reading{}, errs.ErrAnswerOutOfRange.With("answer %v", d.Answer)
	}

	updatedAt := int64(d.UpdatedAt)
	if updatedAt < 0 {
		return Reading{}, errs.ErrOracleIncomplete.With("updatedAt %d out of range", d.UpdatedAt)
	}

	return Reading{
		RoundID:   d.RoundID.Clone(),
		Price:     d.Answer.Int64(),
		UpdatedAt: updatedAt,
	}, nil
}

// Watermark returns a copy of the last accepted feed round id.
func (g *Gateway) Watermark() *uint256.Int {
	return g.lastAccepted.Clone()
}

// Restore sets the watermark during recovery.
func (g *Gateway) Restore(w *uint256.Int) {
	if w == nil {
		g.lastAccepted = uint256.NewInt(0)
		return
	}
	g.lastAccepted = w.Clone()
}

func (g *Gateway) record(result string) {
	if g.metrics != nil {
		g.metrics.OracleReads.WithLabelValues(result).Inc()
	}
}
