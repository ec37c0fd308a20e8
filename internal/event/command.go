package event

import "github.com/ethereum/go-ethereum/common"

// CommandType discriminator for inbound commands
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeStartRound
	CommandTypeLockRound
	CommandTypeEndRound
	CommandTypePlaceBet
	CommandTypeClaim
	CommandTypeClaimTreasury
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTypeStartRound:
		return "StartRound"
	case CommandTypeLockRound:
		return "LockRound"
	case CommandTypeEndRound:
		return "EndRound"
	case CommandTypePlaceBet:
		return "PlaceBet"
	case CommandTypeClaim:
		return "Claim"
	case CommandTypeClaimTreasury:
		return "ClaimTreasury"
	default:
		return "Unknown"
	}
}

// Privileged reports whether the command is restricted to the administrator.
func (ct CommandType) Privileged() bool {
	switch ct {
	case CommandTypeStartRound, CommandTypeLockRound, CommandTypeEndRound, CommandTypeClaimTreasury:
		return true
	default:
		return false
	}
}

// Command is the interface all state-mutating requests implement
type Command interface {
	CommandType() CommandType

	// IdempotencyKey returns the caller-supplied request id ("" disables dedup)
	IdempotencyKey() string

	// Sender returns the authenticated caller
	Sender() common.Address
}

type StartRound struct {
	RequestID   string
	Caller      common.Address
	LiveSeconds int64
	LockSeconds int64
}

func (c *StartRound) CommandType() CommandType { return CommandTypeStartRound }
func (c *StartRound) IdempotencyKey() string   { return c.RequestID }
func (c *StartRound) Sender() common.Address   { return c.Caller }

type LockRound struct {
	RequestID string
	Caller    common.Address
}

func (c *LockRound) CommandType() CommandType { return CommandTypeLockRound }
func (c *LockRound) IdempotencyKey() string   { return c.RequestID }
func (c *LockRound) Sender() common.Address   { return c.Caller }

type EndRound struct {
	RequestID string
	Caller    common.Address
}

func (c *EndRound) CommandType() CommandType { return CommandTypeEndRound }
func (c *EndRound) IdempotencyKey() string   { return c.RequestID }
func (c *EndRound) Sender() common.Address   { return c.Caller }

// PlaceBet carries the wager value in Amount.
type PlaceBet struct {
	RequestID string
	Caller    common.Address
	Epoch     uint64
	Position  Position
	Amount    uint64
}

func (c *PlaceBet) CommandType() CommandType { return CommandTypePlaceBet }
func (c *PlaceBet) IdempotencyKey() string   { return c.RequestID }
func (c *PlaceBet) Sender() common.Address   { return c.Caller }

type Claim struct {
	RequestID string
	Caller    common.Address
	Epochs    []uint64
}

func (c *Claim) CommandType() CommandType { return CommandTypeClaim }
func (c *Claim) IdempotencyKey() string   { return c.RequestID }
func (c *Claim) Sender() common.Address   { return c.Caller }

type ClaimTreasury struct {
	RequestID string
	Caller    common.Address
}

func (c *ClaimTreasury) CommandType() CommandType { return CommandTypeClaimTreasury }
func (c *ClaimTreasury) IdempotencyKey() string   { return c.RequestID }
func (c *ClaimTreasury) Sender() common.Address   { return c.Caller }
