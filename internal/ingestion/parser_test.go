package ingestion_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bob = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

func TestCommandTypeFromSubject(t *testing.T) {
	cases := map[string]event.CommandType{
		"predict.commands.start_round":     event.CommandTypeStartRound,
		"predict.commands.lock_round":      event.CommandTypeLockRound,
		"predict.commands.end_round":       event.CommandTypeEndRound,
		"predict.commands.place_bet.0xb0b": event.CommandTypePlaceBet,
		"predict.commands.claim":           event.CommandTypeClaim,
		"predict.commands.claim_treasury":  event.CommandTypeClaimTreasury,
	}
	for subject, want := range cases {
		got, err := ingestion.CommandTypeFromSubject(subject)
		require.NoError(t, err, subject)
		assert.Equal(t, want, got, subject)
	}

	_, err := ingestion.CommandTypeFromSubject("predict.commands.withdraw")
	assert.Error(t, err)
	_, err = ingestion.CommandTypeFromSubject("market.trades.x")
	assert.Error(t, err)
}

func TestCommandSubjectRoundTrip(t *testing.T) {
	for _, ct := range []event.CommandType{
		event.CommandTypeStartRound, event.CommandTypeLockRound, event.CommandTypeEndRound,
		event.CommandTypePlaceBet, event.CommandTypeClaim, event.CommandTypeClaimTreasury,
	} {
		got, err := ingestion.CommandTypeFromSubject(ingestion.CommandSubject(ct))
		require.NoError(t, err)
		assert.Equal(t, ct, got)
	}
}

func TestParsePlaceBet(t *testing.T) {
	data := []byte(`{"request_id":"r-1","epoch":7,"position":"Bear","amount":"1000000000000000000"}`)

	cmd, err := ingestion.ParseCommand(event.CommandTypePlaceBet, bob, "msg-id", data)
	require.NoError(t, err)

	bet, ok := cmd.(*event.PlaceBet)
	require.True(t, ok, "expected *event.PlaceBet, got %T", cmd)
	assert.Equal(t, "r-1", bet.RequestID)
	assert.Equal(t, bob, bet.Caller)
	assert.Equal(t, uint64(7), bet.Epoch)
	assert.Equal(t, event.PositionBear, bet.Position)
	assert.Equal(t, uint64(1_000_000_000_000_000_000), bet.Amount)
}

func TestParsePlaceBet_NumericAmountAndHeaderID(t *testing.T) {
	data := []byte(`{"epoch":3,"position":"bull","amount":250}`)

	cmd, err := ingestion.ParseCommand(event.CommandTypePlaceBet, bob, "msg-id", data)
	require.NoError(t, err)

	bet := cmd.(*event.PlaceBet)
	assert.Equal(t, "msg-id", bet.RequestID)
	assert.Equal(t, uint64(250), bet.Amount)
}

func TestParsePlaceBet_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad position":   `{"epoch":1,"position":"sideways","amount":1}`,
		"negative":       `{"epoch":1,"position":"bull","amount":-1}`,
		"fractional":     `{"epoch":1,"position":"bull","amount":1.5}`,
		"unknown field":  `{"epoch":1,"position":"bull","amount":1,"caller":"0x01"}`,
		"malformed json": `{"epoch":`,
	}
	for name, data := range cases {
		_, err := ingestion.ParseCommand(event.CommandTypePlaceBet, bob, "", []byte(data))
		assert.Error(t, err, name)
	}
}

func TestParseAdminCommands(t *testing.T) {
	cmd, err := ingestion.ParseCommand(event.CommandTypeStartRound, bob, "",
		[]byte(`{"request_id":"s-1","live_seconds":300,"lock_seconds":300}`))
	require.NoError(t, err)
	start := cmd.(*event.StartRound)
	assert.Equal(t, int64(300), start.LiveSeconds)
	assert.Equal(t, int64(300), start.LockSeconds)
	assert.Equal(t, "s-1", start.RequestID)

	// Lock, end and treasury take no parameters; an empty body is fine.
	cmd, err = ingestion.ParseCommand(event.CommandTypeLockRound, bob, "h-1", nil)
	require.NoError(t, err)
	assert.IsType(t, &event.LockRound{}, cmd)
	assert.Equal(t, "h-1", cmd.IdempotencyKey())

	cmd, err = ingestion.ParseCommand(event.CommandTypeEndRound, bob, "", []byte(" "))
	require.NoError(t, err)
	assert.IsType(t, &event.EndRound{}, cmd)

	cmd, err = ingestion.ParseCommand(event.CommandTypeClaimTreasury, bob, "", []byte(`{}`))
	require.NoError(t, err)
	assert.IsType(t, &event.ClaimTreasury{}, cmd)
	assert.Equal(t, bob, cmd.Sender())
}

func TestParseClaim(t *testing.T) {
	cmd, err := ingestion.ParseCommand(event.CommandTypeClaim, bob, "", []byte(`{"epochs":[1,2,5]}`))
	require.NoError(t, err)

	claim := cmd.(*event.Claim)
	assert.Equal(t, []uint64{1, 2, 5}, claim.Epochs)
	assert.Equal(t, bob, claim.Caller)
}

func TestParseUnknownType(t *testing.T) {
	_, err := ingestion.ParseCommand(event.CommandTypeUnknown, bob, "", nil)
	assert.Error(t, err)
}
