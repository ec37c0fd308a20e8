package server

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/query"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Submitter executes commands; *core.Processor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, cmd event.Command) (core.Result, error)
}

// predictionService implements PredictionServer on top of the command
// processor and the query service. The caller of every command is the
// address the bearer token names; authorization stays with the engine.
// Errors are returned unconverted: ErrorInterceptor maps them for gRPC and
// writeError for HTTP.
type predictionService struct {
	commands Submitter
	qs       *query.QueryService
}

var _ PredictionServer = (*predictionService)(nil)

func NewPredictionService(commands Submitter, qs *query.QueryService) PredictionServer {
	return &predictionService{commands: commands, qs: qs}
}

func (s *predictionService) submit(ctx context.Context, cmd event.Command) (*CommandResponse, error) {
	res, err := s.commands.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return commandResponse(res), nil
}

func (s *predictionService) StartRound(ctx context.Context, req *StartRoundRequest) (*CommandResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, &event.StartRound{
		RequestID:   req.RequestID,
		Caller:      caller,
		LiveSeconds: req.LiveSeconds,
		LockSeconds: req.LockSeconds,
	})
}

func (s *predictionService) LockRound(ctx context.Context, req *AdminRequest) (*CommandResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, &event.LockRound{RequestID: req.RequestID, Caller: caller})
}

func (s *predictionService) EndRound(ctx context.Context, req *AdminRequest) (*CommandResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, &event.EndRound{RequestID: req.RequestID, Caller: caller})
}

func (s *predictionService) ClaimTreasury(ctx context.Context, req *AdminRequest) (*CommandResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, &event.ClaimTreasury{RequestID: req.RequestID, Caller: caller})
}

func (s *predictionService) Bet(ctx context.Context, req *BetRequest) (*CommandResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := event.ParsePosition(req.Position)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "position: %v", err)
	}
	return s.submit(ctx, &event.PlaceBet{
		RequestID: req.RequestID,
		Caller:    caller,
		Epoch:     req.Epoch,
		Position:  pos,
		Amount:    req.Amount,
	})
}

func (s *predictionService) Claim(ctx context.Context, req *ClaimRequest) (*CommandResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, &event.Claim{RequestID: req.RequestID, Caller: caller, Epochs: req.Epochs})
}

// --- Queries ---

func (s *predictionService) GetStatus(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	return s.qs.Status(ctx)
}

func (s *predictionService) GetRound(ctx context.Context, req *EpochRequest) (*RoundResponse, error) {
	return s.qs.GetRound(ctx, req.Epoch)
}

func (s *predictionService) ListRounds(ctx context.Context, req *ListRoundsRequest) (*ListRoundsResponse, error) {
	rounds, err := s.qs.ListRounds(ctx, req.After, req.Limit)
	if err != nil {
		return nil, err
	}
	return &ListRoundsResponse{Rounds: rounds}, nil
}

func (s *predictionService) GetBet(ctx context.Context, req *ParticipantRequest) (*BetResponse, error) {
	addr, err := participant(ctx, req.Participant)
	if err != nil {
		return nil, err
	}
	return s.qs.GetBet(ctx, req.Epoch, addr)
}

func (s *predictionService) ListUserRounds(ctx context.Context, req *UserRoundsRequest) (*UserRoundsResponse, error) {
	addr, err := participant(ctx, req.Participant)
	if err != nil {
		return nil, err
	}
	return s.qs.UserRounds(ctx, addr, req.Cursor, req.Size)
}

func (s *predictionService) Claimable(ctx context.Context, req *ParticipantRequest) (*PredicateResponse, error) {
	addr, err := participant(ctx, req.Participant)
	if err != nil {
		return nil, err
	}
	return s.qs.Claimable(ctx, req.Epoch, addr)
}

func (s *predictionService) Refundable(ctx context.Context, req *ParticipantRequest) (*PredicateResponse, error) {
	addr, err := participant(ctx, req.Participant)
	if err != nil {
		return nil, err
	}
	return s.qs.Refundable(ctx, req.Epoch, addr)
}

func (s *predictionService) GetTreasury(ctx context.Context, _ *Empty) (*TreasuryResponse, error) {
	return s.qs.Treasury(ctx)
}

func (s *predictionService) GetOracle(ctx context.Context, _ *Empty) (*OracleResponse, error) {
	return s.qs.Oracle(ctx)
}

func (s *predictionService) GetBalance(ctx context.Context, req *UserRoundsRequest) (*BalanceResponse, error) {
	addr, err := participant(ctx, req.Participant)
	if err != nil {
		return nil, err
	}
	return s.qs.GetBalance(ctx, addr)
}

func (s *predictionService) ListPayouts(ctx context.Context, req *PayoutsRequest) (*PayoutsResponse, error) {
	addr, err := participant(ctx, req.Participant)
	if err != nil {
		return nil, err
	}
	payouts, err := s.qs.Payouts(ctx, addr, req.Limit)
	if err != nil {
		return nil, err
	}
	return &PayoutsResponse{Payouts: payouts}, nil
}

func (s *predictionService) ListLedger(ctx context.Context, _ *Empty) (*LedgerResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	accounts, err := s.qs.LedgerBalances(ctx)
	if err != nil {
		return nil, err
	}
	return &LedgerResponse{Accounts: accounts}, nil
}

func (s *predictionService) GetJournal(ctx context.Context, req *EpochRequest) (*JournalResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	entries, err := s.qs.GetJournalHistory(ctx, req.Epoch)
	if err != nil {
		return nil, err
	}
	return &JournalResponse{Entries: entries}, nil
}

func (s *predictionService) VerifyIntegrity(ctx context.Context, _ *Empty) (*IntegrityReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.qs.VerifyIntegrity(ctx)
}

// --- helpers ---

func callerFrom(ctx context.Context) (common.Address, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return common.Address{}, status.Error(codes.Unauthenticated, auth.ErrMissingToken.Error())
	}
	addr, err := claims.Address()
	if err != nil {
		return common.Address{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return addr, nil
}

// participant resolves an explicit address, or the caller when empty.
func participant(ctx context.Context, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return callerFrom(ctx)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, status.Errorf(codes.InvalidArgument, "invalid participant address %q", s)
	}
	return common.HexToAddress(s), nil
}

// requireAdmin screens operator-only queries. Commands are authorized by
// the engine against the configured administrator instead.
func requireAdmin(ctx context.Context) error {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, auth.ErrMissingToken.Error())
	}
	if !claims.IsAdmin() {
		return status.Error(codes.PermissionDenied, "admin role required")
	}
	return nil
}
