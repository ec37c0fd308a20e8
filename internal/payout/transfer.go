// Package payout moves value out of the market once a claim or treasury
// drain has been committed.
package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// ErrDuplicateRef is returned when the stream already holds an instruction
// with the same ref.
var ErrDuplicateRef = errors.New("duplicate payout ref")

const (
	StreamName    = "PREDICT_PAYOUTS"
	SubjectPrefix = "predict.payouts"
)

// Instruction is the transfer order handed to the settlement wallet.
type Instruction struct {
	To          string    `json:"to"`
	Amount      uint64    `json:"amount"`
	Ref         string    `json:"ref"`
	RequestedAt time.Time `json:"requested_at"`
}

// JetStreamTransferer publishes transfer instructions to a JetStream stream
// consumed by the wallet service. A transfer succeeds once the stream has
// acknowledged the instruction; ref doubles as the JetStream message id.
// Refs are unique per committed payout, so a duplicate ack means the
// instruction was not queued and the transfer fails.
type JetStreamTransferer struct {
	js      jetstream.JetStream
	timeout time.Duration
	logger  zerolog.Logger
}

func NewJetStreamTransferer(js jetstream.JetStream, timeout time.Duration, logger zerolog.Logger) *JetStreamTransferer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &JetStreamTransferer{js: js, timeout: timeout, logger: logger}
}

// Subject returns the subject an instruction for to is published on.
func Subject(to common.Address) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, strings.ToLower(to.Hex()))
}

func (t *JetStreamTransferer) Transfer(ctx context.Context, to common.Address, amount uint64, ref string) error {
	data, err := json.Marshal(Instruction{
		To:          to.Hex(),
		Amount:      amount,
		Ref:         ref,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal instruction: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ack, err := t.js.Publish(ctx, Subject(to), data, jetstream.WithMsgID(ref))
	if err != nil {
		return fmt.Errorf("publish payout %s: %w", ref, err)
	}
	if ack.Duplicate {
		return fmt.Errorf("publish payout %s: %w", ref, ErrDuplicateRef)
	}
	t.logger.Debug().
		Str("to", to.Hex()).
		Uint64("amount", amount).
		Str("ref", ref).
		Uint64("stream_seq", ack.Sequence).
		Msg("payout published")
	return nil
}

// EnsureStream creates the payout stream. Work-queue retention removes an
// instruction once the wallet service acknowledged it.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.WorkQueuePolicy,
		Duplicates: 24 * time.Hour,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create payout stream: %w", err)
	}
	return nil
}
