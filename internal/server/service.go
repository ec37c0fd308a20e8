package server

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "prediction.v1.Prediction"

// PredictionServer is the server API of prediction.v1.Prediction.
type PredictionServer interface {
	// Administrative commands
	StartRound(context.Context, *StartRoundRequest) (*CommandResponse, error)
	LockRound(context.Context, *AdminRequest) (*CommandResponse, error)
	EndRound(context.Context, *AdminRequest) (*CommandResponse, error)
	ClaimTreasury(context.Context, *AdminRequest) (*CommandResponse, error)

	// Participant commands
	Bet(context.Context, *BetRequest) (*CommandResponse, error)
	Claim(context.Context, *ClaimRequest) (*CommandResponse, error)

	// Queries
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	GetRound(context.Context, *EpochRequest) (*RoundResponse, error)
	ListRounds(context.Context, *ListRoundsRequest) (*ListRoundsResponse, error)
	GetBet(context.Context, *ParticipantRequest) (*BetResponse, error)
	ListUserRounds(context.Context, *UserRoundsRequest) (*UserRoundsResponse, error)
	Claimable(context.Context, *ParticipantRequest) (*PredicateResponse, error)
	Refundable(context.Context, *ParticipantRequest) (*PredicateResponse, error)
	GetTreasury(context.Context, *Empty) (*TreasuryResponse, error)
	GetOracle(context.Context, *Empty) (*OracleResponse, error)
	GetBalance(context.Context, *UserRoundsRequest) (*BalanceResponse, error)
	ListPayouts(context.Context, *PayoutsRequest) (*PayoutsResponse, error)
	ListLedger(context.Context, *Empty) (*LedgerResponse, error)
	GetJournal(context.Context, *EpochRequest) (*JournalResponse, error)
	VerifyIntegrity(context.Context, *Empty) (*IntegrityReport, error)
}

// unary builds the method descriptor of one request/response method the way
// protoc-gen-go-grpc would, decoding into a fresh Req.
func unary[Req any](name string, call func(PredictionServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PredictionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PredictionServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// PredictionServiceDesc is the grpc.ServiceDesc for prediction.v1.Prediction.
var PredictionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartRound", func(s PredictionServer, ctx context.Context, in *StartRoundRequest) (any, error) { return s.StartRound(ctx, in) }),
		unary("LockRound", func(s PredictionServer, ctx context.Context, in *AdminRequest) (any, error) { return s.LockRound(ctx, in) }),
		unary("EndRound", func(s PredictionServer, ctx context.Context, in *AdminRequest) (any, error) { return s.EndRound(ctx, in) }),
		unary("ClaimTreasury", func(s PredictionServer, ctx context.Context, in *AdminRequest) (any, error) { return s.ClaimTreasury(ctx, in) }),
		unary("Bet", func(s PredictionServer, ctx context.Context, in *BetRequest) (any, error) { return s.Bet(ctx, in) }),
		unary("Claim", func(s PredictionServer, ctx context.Context, in *ClaimRequest) (any, error) { return s.Claim(ctx, in) }),
		unary("GetStatus", func(s PredictionServer, ctx context.Context, in *Empty) (any, error) { return s.GetStatus(ctx, in) }),
		unary("GetRound", func(s PredictionServer, ctx context.Context, in *EpochRequest) (any, error) { return s.GetRound(ctx, in) }),
		unary("ListRounds", func(s PredictionServer, ctx context.Context, in *ListRoundsRequest) (any, error) { return s.ListRounds(ctx, in) }),
		unary("GetBet", func(s PredictionServer, ctx context.Context, in *ParticipantRequest) (any, error) { return s.GetBet(ctx, in) }),
		unary("ListUserRounds", func(s PredictionServer, ctx context.Context, in *UserRoundsRequest) (any, error) { return s.ListUserRounds(ctx, in) }),
		unary("Claimable", func(s PredictionServer, ctx context.Context, in *ParticipantRequest) (any, error) { return s.Claimable(ctx, in) }),
		unary("Refundable", func(s PredictionServer, ctx context.Context, in *ParticipantRequest) (any, error) { return s.Refundable(ctx, in) }),
		unary("GetTreasury", func(s PredictionServer, ctx context.Context, in *Empty) (any, error) { return s.GetTreasury(ctx, in) }),
		unary("GetOracle", func(s PredictionServer, ctx context.Context, in *Empty) (any, error) { return s.GetOracle(ctx, in) }),
		unary("GetBalance", func(s PredictionServer, ctx context.Context, in *UserRoundsRequest) (any, error) { return s.GetBalance(ctx, in) }),
		unary("ListPayouts", func(s PredictionServer, ctx context.Context, in *PayoutsRequest) (any, error) { return s.ListPayouts(ctx, in) }),
		unary("ListLedger", func(s PredictionServer, ctx context.Context, in *Empty) (any, error) { return s.ListLedger(ctx, in) }),
		unary("GetJournal", func(s PredictionServer, ctx context.Context, in *EpochRequest) (any, error) { return s.GetJournal(ctx, in) }),
		unary("VerifyIntegrity", func(s PredictionServer, ctx context.Context, in *Empty) (any, error) { return s.VerifyIntegrity(ctx, in) }),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "prediction/v1/prediction",
}

// RegisterPredictionServer registers srv on s.
func RegisterPredictionServer(s grpc.ServiceRegistrar, srv PredictionServer) {
	s.RegisterService(&PredictionServiceDesc, srv)
}

// PredictionClient calls prediction.v1.Prediction over a JSON-coded
// connection.
type PredictionClient struct {
	cc grpc.ClientConnInterface
}

func NewPredictionClient(cc grpc.ClientConnInterface) *PredictionClient {
	return &PredictionClient{cc: cc}
}

// Invoke calls method with in and decodes the reply into out.
func (c *PredictionClient) Invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func invoke[Resp any](ctx context.Context, c *PredictionClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := c.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PredictionClient) StartRound(ctx context.Context, in *StartRoundRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c, "StartRound", in, opts)
}

func (c *PredictionClient) LockRound(ctx context.Context, in *AdminRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c, "LockRound", in, opts)
}

func (c *PredictionClient) EndRound(ctx context.Context, in *AdminRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c, "EndRound", in, opts)
}

func (c *PredictionClient) ClaimTreasury(ctx context.Context, in *AdminRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c, "ClaimTreasury", in, opts)
}

func (c *PredictionClient) Bet(ctx context.Context, in *BetRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c, "Bet", in, opts)
}

func (c *PredictionClient) Claim(ctx context.Context, in *ClaimRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c, "Claim", in, opts)
}

func (c *PredictionClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "GetStatus", &Empty{}, opts)
}

func (c *PredictionClient) Claimable(ctx context.Context, in *ParticipantRequest, opts ...grpc.CallOption) (*PredicateResponse, error) {
	return invoke[PredicateResponse](ctx, c, "Claimable", in, opts)
}
