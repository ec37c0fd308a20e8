package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/projection"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/query"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/server"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var (
	admin = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

// fakeSubmitter records commands and answers with a fixed result or error.
type fakeSubmitter struct {
	mu   sync.Mutex
	cmds []event.Command
	res  core.Result
	err  error
}

func (f *fakeSubmitter) Submit(ctx context.Context, cmd event.Command) (core.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.res, f.err
}

func (f *fakeSubmitter) last() event.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cmds) == 0 {
		return nil
	}
	return f.cmds[len(f.cmds)-1]
}

type harness struct {
	srv       *server.GRPCServer
	submitter *fakeSubmitter
	jwt       auth.JWT
	hub       *server.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	view := projection.NewView()
	view.Apply(&core.Changeset{
		Rounds: []*state.Round{{Epoch: 1, StartTimestamp: 100, LockTimestamp: 110, CloseTimestamp: 410, BullAmount: 5, TotalAmount: 5}},
		Bets:   []ledger.BetInfo{{Epoch: 1, Participant: alice, Position: event.PositionBull, Amount: 5}},
	})
	qs := query.NewQueryService(view, nil, testutil.NewFakeClock(200), query.Options{PriceDecimals: 8, AmountDecimals: 18})

	h := &harness{
		submitter: &fakeSubmitter{},
		jwt:       auth.JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour},
	}
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	h.hub = server.NewHub(zerolog.Nop(), metrics)

	srv, err := server.NewGRPCServer("", "", &server.ServerDeps{
		Service:       server.NewPredictionService(h.submitter, qs),
		JWT:           h.jwt,
		Hub:           h.hub,
		HealthChecker: observability.NewHealthChecker(),
		Metrics:       metrics,
		Gatherer:      prometheus.NewRegistry(),
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	h.srv = srv
	return h
}

func (h *harness) token(t *testing.T, addr common.Address, role string) string {
	t.Helper()
	tok, _, err := h.jwt.Issue(addr, role)
	require.NoError(t, err)
	return tok
}

func (h *harness) dial(t *testing.T) *server.PredictionClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.srv.Serve(ctx, lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return server.NewPredictionClient(conn)
}

func withToken(ctx context.Context, tok string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
}

func TestGRPC_BetUsesTokenAddress(t *testing.T) {
	h := newHarness(t)
	client := h.dial(t)
	ctx := context.Background()

	_, err := client.Bet(ctx, &server.BetRequest{Epoch: 1, Position: "bull", Amount: 10})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Nil(t, h.submitter.last())

	resp, err := client.Bet(withToken(ctx, h.token(t, alice, auth.RoleParticipant)),
		&server.BetRequest{RequestID: "r1", Epoch: 1, Position: "bear", Amount: 1e18})
	require.NoError(t, err)
	assert.NotNil(t, resp)

	cmd, ok := h.submitter.last().(*event.PlaceBet)
	require.True(t, ok)
	assert.Equal(t, alice, cmd.Caller)
	assert.Equal(t, event.PositionBear, cmd.Position)
	assert.Equal(t, uint64(1e18), cmd.Amount)
	assert.Equal(t, "r1", cmd.RequestID)
}

func TestGRPC_ErrorKindsMapToCodes(t *testing.T) {
	h := newHarness(t)
	client := h.dial(t)
	ctx := withToken(context.Background(), h.token(t, alice, auth.RoleParticipant))

	cases := []struct {
		err  error
		code codes.Code
	}{
		{errs.ErrNotAdmin, codes.PermissionDenied},
		{errs.ErrDoubleBet.With("epoch 1"), codes.FailedPrecondition},
		{errs.ErrTooEarly, codes.FailedPrecondition},
		{errs.ErrLockIntervalTooShort, codes.InvalidArgument},
		{errs.ErrOracleStale, codes.Unavailable},
		{errs.ErrTransferFailed, codes.Aborted},
		{core.ErrStopped, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
	}
	for _, tc := range cases {
		h.submitter.err = tc.err
		_, err := client.LockRound(ctx, &server.AdminRequest{})
		assert.Equal(t, tc.code, status.Code(err), tc.err.Error())
	}
}

func TestGRPC_QueriesAndInvalidPosition(t *testing.T) {
	h := newHarness(t)
	client := h.dial(t)
	ctx := context.Background()

	st, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.CurrentEpoch)
	assert.Equal(t, "live", st.CurrentStatus)

	c, err := client.Claimable(ctx, &server.ParticipantRequest{Epoch: 1, Participant: alice.Hex()})
	require.NoError(t, err)
	assert.False(t, c.Value)

	_, err = client.Bet(withToken(ctx, h.token(t, alice, auth.RoleParticipant)), &server.BetRequest{Epoch: 1, Position: "sideways", Amount: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func doHTTP(t *testing.T, h http.Handler, method, path, tok string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHTTP_CommandRoutes(t *testing.T) {
	h := newHarness(t)
	handler := h.srv.Handler()
	tok := h.token(t, admin, auth.RoleAdmin)

	h.submitter.res = core.Result{Epoch: 2}
	rec, body := doHTTP(t, handler, "POST", "/v1/admin/rounds/start", tok, map[string]any{"live_seconds": 10, "lock_seconds": 300})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, body["epoch"])
	cmd := h.submitter.last().(*event.StartRound)
	assert.Equal(t, admin, cmd.Caller)
	assert.Equal(t, int64(300), cmd.LockSeconds)

	h.submitter.err = errs.ErrDoubleBet.With("epoch 1")
	rec, body = doHTTP(t, handler, "POST", "/v1/bets", tok, map[string]any{"epoch": 1, "position": "bull", "amount": "5"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "economic", body["kind"])
	assert.Equal(t, "double_bet", body["reason"])

	rec, _ = doHTTP(t, handler, "POST", "/v1/claims", "garbage", map[string]any{"epochs": []int{1}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTP_QueryRoutes(t *testing.T) {
	h := newHarness(t)
	handler := h.srv.Handler()

	rec, body := doHTTP(t, handler, "GET", "/v1/rounds/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "live", body["status"])

	rec, _ = doHTTP(t, handler, "GET", "/v1/rounds/99", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doHTTP(t, handler, "GET", "/v1/rounds/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doHTTP(t, handler, "GET", "/v1/participants/"+alice.Hex()+"/rounds?size=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, _ = doHTTP(t, handler, "GET", "/v1/admin/ledger", h.token(t, alice, auth.RoleParticipant), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = doHTTP(t, handler, "GET", "/v1/admin/ledger", h.token(t, admin, auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doHTTP(t, handler, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHub_StreamsCommittedEvents(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan core.CoreOutput, 1)
	go h.hub.Run(ctx, in)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	in <- core.CoreOutput{Envelope: &event.EventEnvelope{
		Sequence:  7,
		EventType: event.EventTypeRoundStarted,
		Epoch:     3,
		Payload:   &event.RoundStarted{Epoch: 3},
	}}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got event.WireEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(7), got.Sequence)
	assert.Equal(t, "RoundStarted", got.Type)
	assert.Contains(t, string(got.Payload), `"epoch":3`)
}
