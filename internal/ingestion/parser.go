package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
)

// Subject tokens for each command type. A command is published on
// predict.commands.<token>.
var subjectTokens = map[string]event.CommandType{
	"start_round":    event.CommandTypeStartRound,
	"lock_round":     event.CommandTypeLockRound,
	"end_round":      event.CommandTypeEndRound,
	"place_bet":      event.CommandTypePlaceBet,
	"claim":          event.CommandTypeClaim,
	"claim_treasury": event.CommandTypeClaimTreasury,
}

// CommandSubject returns the subject a command of type ct is published on.
func CommandSubject(ct event.CommandType) string {
	for token, t := range subjectTokens {
		if t == ct {
			return CommandSubjectPrefix + "." + token
		}
	}
	return CommandSubjectPrefix + ".unknown"
}

// CommandTypeFromSubject maps predict.commands.<token>[.<anything>] to a
// command type.
func CommandTypeFromSubject(subject string) (event.CommandType, error) {
	rest, ok := strings.CutPrefix(subject, CommandSubjectPrefix+".")
	if !ok {
		return event.CommandTypeUnknown, fmt.Errorf("subject %q outside %s", subject, CommandSubjectPrefix)
	}
	token, _, _ := strings.Cut(rest, ".")
	ct, ok := subjectTokens[token]
	if !ok {
		return event.CommandTypeUnknown, fmt.Errorf("unknown command subject token %q", token)
	}
	return ct, nil
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. The caller never
// comes from the payload: it is the address of the verified bearer token.

type startRoundJSON struct {
	RequestID   string `json:"request_id"`
	LiveSeconds int64  `json:"live_seconds"`
	LockSeconds int64  `json:"lock_seconds"`
}

type adminJSON struct {
	RequestID string `json:"request_id"`
}

type placeBetJSON struct {
	RequestID string      `json:"request_id"`
	Epoch     uint64      `json:"epoch"`
	Position  string      `json:"position"`
	Amount    json.Number `json:"amount"`
}

type claimJSON struct {
	RequestID string   `json:"request_id"`
	Epochs    []uint64 `json:"epochs"`
}

// ParseCommand decodes a command payload of type ct sent by caller.
// requestID is used when the payload does not carry one (typically the
// Nats-Msg-Id header).
func ParseCommand(ct event.CommandType, caller common.Address, requestID string, data []byte) (event.Command, error) {
	switch ct {
	case event.CommandTypeStartRound:
		var j startRoundJSON
		if err := decode(data, &j); err != nil {
			return nil, fmt.Errorf("parse StartRound: %w", err)
		}
		return &event.StartRound{
			RequestID:   pick(j.RequestID, requestID),
			Caller:      caller,
			LiveSeconds: j.LiveSeconds,
			LockSeconds: j.LockSeconds,
		}, nil

	case event.CommandTypeLockRound, event.CommandTypeEndRound, event.CommandTypeClaimTreasury:
		var j adminJSON
		if err := decode(data, &j); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ct, err)
		}
		id := pick(j.RequestID, requestID)
		switch ct {
		case event.CommandTypeLockRound:
			return &event.LockRound{RequestID: id, Caller: caller}, nil
		case event.CommandTypeEndRound:
			return &event.EndRound{RequestID: id, Caller: caller}, nil
		default:
			return &event.ClaimTreasury{RequestID: id, Caller: caller}, nil
		}

	case event.CommandTypePlaceBet:
		var j placeBetJSON
		if err := decode(data, &j); err != nil {
			return nil, fmt.Errorf("parse PlaceBet: %w", err)
		}
		pos, err := event.ParsePosition(j.Position)
		if err != nil {
			return nil, fmt.Errorf("parse position: %w", err)
		}
		amount, err := parseAmount(j.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		return &event.PlaceBet{
			RequestID: pick(j.RequestID, requestID),
			Caller:    caller,
			Epoch:     j.Epoch,
			Position:  pos,
			Amount:    amount,
		}, nil

	case event.CommandTypeClaim:
		var j claimJSON
		if err := decode(data, &j); err != nil {
			return nil, fmt.Errorf("parse Claim: %w", err)
		}
		return &event.Claim{
			RequestID: pick(j.RequestID, requestID),
			Caller:    caller,
			Epochs:    j.Epochs,
		}, nil

	default:
		return nil, fmt.Errorf("unknown command type: %s", ct)
	}
}

// decode accepts an empty body for commands without parameters.
func decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseAmount accepts the amount as a JSON number or a decimal string, since
// wei amounts overflow float64 precision in most producers.
func parseAmount(n json.Number) (uint64, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", n)
	}
	return v, nil
}

func pick(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
