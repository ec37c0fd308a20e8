package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandStream        = "PREDICT_COMMANDS"
	CommandSubjectPrefix = "predict.commands"
	CommandConsumer      = "predictd-commands"

	// AuthHeader carries "Bearer <jwt>" on every command message.
	AuthHeader = "Authorization"
)

// Submitter executes a command against the core.
type Submitter interface {
	Submit(ctx context.Context, cmd event.Command) (core.Result, error)
}

// TokenVerifier resolves a bearer token to its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Message is the part of jetstream.Msg the subscriber uses.
type Message interface {
	Subject() string
	Data() []byte
	Headers() nats.Header
	Ack() error
	Nak() error
	Term() error
}

// Outcome is what the subscriber did with a message.
type Outcome string

const (
	OutcomeAck  Outcome = "ack"
	OutcomeNak  Outcome = "nak"
	OutcomeTerm Outcome = "term"
)

// NATSSubscriber consumes commands from JetStream and submits them to the
// core. A message is acked once the core gave a final answer (success or a
// classified rejection), nak'd on infrastructure failures so it is
// redelivered, and terminated when it can never be parsed or authenticated.
type NATSSubscriber struct {
	js        jetstream.JetStream
	submitter Submitter
	verifier  TokenVerifier
	logger    zerolog.Logger
	metrics   *observability.Metrics

	submitTimeout time.Duration
	consumer      jetstream.ConsumeContext
}

func NewNATSSubscriber(js jetstream.JetStream, submitter Submitter, verifier TokenVerifier, logger zerolog.Logger, metrics *observability.Metrics) *NATSSubscriber {
	return &NATSSubscriber{
		js:            js,
		submitter:     submitter,
		verifier:      verifier,
		logger:        logger,
		metrics:       metrics,
		submitTimeout: 30 * time.Second,
	}
}

// Subscribe creates the durable consumer and starts delivering messages.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, CommandStream, jetstream.ConsumerConfig{
		Durable:       CommandConsumer,
		FilterSubject: CommandSubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", CommandConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ns.Handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", CommandConsumer, err)
	}
	ns.consumer = cc
	ns.logger.Info().Str("consumer", CommandConsumer).Msg("subscribed to command stream")
	return nil
}

// Handle processes one message and settles it. It is exported so the
// delivery loop and tests share the same path.
func (ns *NATSSubscriber) Handle(ctx context.Context, msg Message) Outcome {
	ct, cmd, err := ns.decode(msg)
	if err != nil {
		ns.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping command message")
		return ns.settle(msg, ct, OutcomeTerm)
	}

	subCtx, cancel := context.WithTimeout(ctx, ns.submitTimeout)
	defer cancel()

	res, err := ns.submitter.Submit(subCtx, cmd)
	switch {
	case err == nil:
		ns.logger.Debug().
			Str("command", ct.String()).
			Str("caller", cmd.Sender().Hex()).
			Uint64("epoch", res.Epoch).
			Msg("command applied")
		return ns.settle(msg, ct, OutcomeAck)

	case errs.KindOf(err) != errs.KindUnknown:
		// A classified rejection is final; redelivery would be rejected again.
		ns.logger.Info().
			Err(err).
			Str("command", ct.String()).
			Str("caller", cmd.Sender().Hex()).
			Msg("command rejected")
		return ns.settle(msg, ct, OutcomeAck)

	default:
		ns.logger.Error().Err(err).Str("command", ct.String()).Msg("command failed, requesting redelivery")
		return ns.settle(msg, ct, OutcomeNak)
	}
}

func (ns *NATSSubscriber) decode(msg Message) (event.CommandType, event.Command, error) {
	ct, err := CommandTypeFromSubject(msg.Subject())
	if err != nil {
		return event.CommandTypeUnknown, nil, err
	}

	hdr := msg.Headers()
	token := auth.BearerToken(hdr.Get(AuthHeader))
	if token == "" {
		return ct, nil, auth.ErrMissingToken
	}
	claims, err := ns.verifier.Verify(token)
	if err != nil {
		return ct, nil, err
	}
	caller, err := claims.Address()
	if err != nil {
		return ct, nil, errors.Join(auth.ErrInvalidToken, err)
	}

	cmd, err := ParseCommand(ct, caller, hdr.Get(nats.MsgIdHdr), msg.Data())
	if err != nil {
		return ct, nil, err
	}
	return ct, cmd, nil
}

func (ns *NATSSubscriber) settle(msg Message, ct event.CommandType, outcome Outcome) Outcome {
	var err error
	switch outcome {
	case OutcomeAck:
		err = msg.Ack()
	case OutcomeNak:
		err = msg.Nak()
	case OutcomeTerm:
		err = msg.Term()
	}
	if err != nil {
		ns.logger.Warn().Err(err).Str("outcome", string(outcome)).Msg("settle command message")
	}
	if ns.metrics != nil {
		ns.metrics.IngestMessages.WithLabelValues(ct.String(), string(outcome)).Inc()
	}
	return outcome
}

// Stop stops the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	ns.logger.Info().Msg("NATS subscriber stopped")
}

// EnsureStreams creates the command and event streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:       CommandStream,
			Subjects:   []string{CommandSubjectPrefix + ".>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Duplicates: 10 * time.Minute,
			Replicas:   1,
		},
		{
			Name:      EventStream,
			Subjects:  []string{EventSubjectPrefix + ".>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("predictiond"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
