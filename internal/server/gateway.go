package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxBodyBytes = 1 << 20

// binder fills a request message from an HTTP request.
type binder[Req any] func(r *http.Request, params map[string]string, req *Req) error

// route adapts one PredictionServer method to a gateway handler.
func route[Req, Resp any](call func(context.Context, *Req) (*Resp, error), bind binder[Req]) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		req := new(Req)
		if bind != nil {
			if err := bind(r, params, req); err != nil {
				writeError(w, status.Error(codes.InvalidArgument, err.Error()))
				return
			}
		}
		resp, err := call(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func jsonBody[Req any](r *http.Request, _ map[string]string, req *Req) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func bindEpoch(r *http.Request, params map[string]string, req *EpochRequest) error {
	var err error
	req.Epoch, err = strconv.ParseUint(params["epoch"], 10, 64)
	if err != nil {
		return fmt.Errorf("epoch: %w", err)
	}
	return nil
}

func bindParticipant(r *http.Request, params map[string]string, req *ParticipantRequest) error {
	var err error
	if req.Epoch, err = strconv.ParseUint(params["epoch"], 10, 64); err != nil {
		return fmt.Errorf("epoch: %w", err)
	}
	req.Participant = params["participant"]
	return nil
}

func bindListRounds(r *http.Request, _ map[string]string, req *ListRoundsRequest) error {
	q := r.URL.Query()
	var err error
	if v := q.Get("after"); v != "" {
		if req.After, err = strconv.ParseUint(v, 10, 64); err != nil {
			return fmt.Errorf("after: %w", err)
		}
	}
	req.Limit, err = queryInt(q.Get("limit"))
	return err
}

func bindUserRounds(r *http.Request, params map[string]string, req *UserRoundsRequest) error {
	q := r.URL.Query()
	req.Participant = params["participant"]
	var err error
	if req.Cursor, err = queryInt(q.Get("cursor")); err != nil {
		return err
	}
	req.Size, err = queryInt(q.Get("size"))
	return err
}

func bindPayouts(r *http.Request, params map[string]string, req *PayoutsRequest) error {
	req.Participant = params["participant"]
	var err error
	req.Limit, err = queryInt(r.URL.Query().Get("limit"))
	return err
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

// NewGatewayMux serves the prediction service as HTTP/JSON routes.
func NewGatewayMux(svc PredictionServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method, pattern string
		h               runtime.HandlerFunc
	}{
		// Administrative commands
		{"POST", "/v1/admin/rounds/start", route(svc.StartRound, jsonBody[StartRoundRequest])},
		{"POST", "/v1/admin/rounds/lock", route(svc.LockRound, jsonBody[AdminRequest])},
		{"POST", "/v1/admin/rounds/end", route(svc.EndRound, jsonBody[AdminRequest])},
		{"POST", "/v1/admin/treasury/claim", route(svc.ClaimTreasury, jsonBody[AdminRequest])},
		{"GET", "/v1/admin/ledger", route(svc.ListLedger, nil)},
		{"GET", "/v1/admin/rounds/{epoch}/journal", route(svc.GetJournal, bindEpoch)},
		{"GET", "/v1/admin/integrity", route(svc.VerifyIntegrity, nil)},

		// Participant commands
		{"POST", "/v1/bets", route(svc.Bet, jsonBody[BetRequest])},
		{"POST", "/v1/claims", route(svc.Claim, jsonBody[ClaimRequest])},

		// Queries
		{"GET", "/v1/status", route(svc.GetStatus, nil)},
		{"GET", "/v1/treasury", route(svc.GetTreasury, nil)},
		{"GET", "/v1/oracle", route(svc.GetOracle, nil)},
		{"GET", "/v1/rounds", route(svc.ListRounds, bindListRounds)},
		{"GET", "/v1/rounds/{epoch}", route(svc.GetRound, bindEpoch)},
		{"GET", "/v1/rounds/{epoch}/bets/{participant}", route(svc.GetBet, bindParticipant)},
		{"GET", "/v1/rounds/{epoch}/claimable/{participant}", route(svc.Claimable, bindParticipant)},
		{"GET", "/v1/rounds/{epoch}/refundable/{participant}", route(svc.Refundable, bindParticipant)},
		{"GET", "/v1/participants/{participant}/rounds", route(svc.ListUserRounds, bindUserRounds)},
		{"GET", "/v1/participants/{participant}/balance", route(svc.GetBalance, bindUserRounds)},
		{"GET", "/v1/participants/{participant}/payouts", route(svc.ListPayouts, bindPayouts)},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.h); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, body := errorBody(err)
	writeJSON(w, code, body)
}
