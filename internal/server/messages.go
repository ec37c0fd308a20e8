package server

import (
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/query"
)

// Request and response messages of prediction.v1.Prediction. Request ids
// are optional; a retried command with the same id returns the original
// result.

type StartRoundRequest struct {
	RequestID   string `json:"request_id,omitempty"`
	LiveSeconds int64  `json:"live_seconds"`
	LockSeconds int64  `json:"lock_seconds"`
}

// AdminRequest is the body of LockRound, EndRound and ClaimTreasury.
type AdminRequest struct {
	RequestID string `json:"request_id,omitempty"`
}

type BetRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Epoch     uint64 `json:"epoch"`
	Position  string `json:"position"` // bull or bear
	Amount    uint64 `json:"amount,string"`
}

type ClaimRequest struct {
	RequestID string   `json:"request_id,omitempty"`
	Epochs    []uint64 `json:"epochs"`
}

type CommandResponse struct {
	Epoch         uint64 `json:"epoch,omitempty"`
	OracleRoundID string `json:"oracle_round_id,omitempty"`
	Price         int64  `json:"price,omitempty"`
	Amount        uint64 `json:"amount,omitempty,string"`
}

func commandResponse(res core.Result) *CommandResponse {
	out := &CommandResponse{Epoch: res.Epoch, Price: res.Price, Amount: res.Amount}
	if res.OracleRoundID != nil {
		out.OracleRoundID = res.OracleRoundID.Dec()
	}
	return out
}

type Empty struct{}

type EpochRequest struct {
	Epoch uint64 `json:"epoch"`
}

type ListRoundsRequest struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit"`
}

type ListRoundsResponse struct {
	Rounds []query.RoundResponse `json:"rounds"`
}

// ParticipantRequest addresses one participant's wager. An empty
// participant means the caller.
type ParticipantRequest struct {
	Epoch       uint64 `json:"epoch"`
	Participant string `json:"participant,omitempty"`
}

type UserRoundsRequest struct {
	Participant string `json:"participant,omitempty"`
	Cursor      int    `json:"cursor"`
	Size        int    `json:"size"`
}

type PayoutsRequest struct {
	Participant string `json:"participant,omitempty"`
	Limit       int    `json:"limit"`
}

type PayoutsResponse struct {
	Payouts []query.PayoutResponse `json:"payouts"`
}

type LedgerResponse struct {
	Accounts []query.AccountBalance `json:"accounts"`
}

type JournalResponse struct {
	Entries []query.JournalHistoryEntry `json:"entries"`
}

// Query responses are served as the query package renders them.
type (
	StatusResponse     = query.StatusResponse
	RoundResponse      = query.RoundResponse
	BetResponse        = query.BetResponse
	UserRoundsResponse = query.UserRoundsResponse
	PredicateResponse  = query.PredicateResponse
	TreasuryResponse   = query.TreasuryResponse
	OracleResponse     = query.OracleResponse
	BalanceResponse    = query.BalanceResponse
	IntegrityReport    = query.IntegrityReport
)
