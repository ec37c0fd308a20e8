package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	EventStream        = "PREDICT_EVENTS"
	EventSubjectPrefix = "predict.events"
)

// EventSubject returns predict.events.<type> for an event type.
func EventSubject(t event.EventType) string {
	return EventSubjectPrefix + "." + t.String()
}

// OutboundPublisher publishes committed events to NATS for downstream
// consumers. Events reach it only after the store committed them.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.CoreOutput
	logger    zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan core.CoreOutput, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, out.Envelope); err != nil {
				// Non-fatal: downstream consumers can read the event log.
				op.logger.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env *event.EventEnvelope) error {
	wire, err := event.NewWireEvent(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// The sequence is the message id so a republish after reconnect is
	// deduplicated by the stream.
	_, err = op.js.Publish(ctx, EventSubject(env.EventType), data,
		jetstream.WithMsgID(strconv.FormatInt(env.Sequence, 10)))
	return err
}
