package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/query"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorBody is the JSON error returned by the HTTP routes.
type ErrorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// grpcCode maps a command or query error to its gRPC status code.
func grpcCode(err error) codes.Code {
	switch errs.KindOf(err) {
	case errs.KindAuthorization:
		return codes.PermissionDenied
	case errs.KindState, errs.KindEconomic:
		return codes.FailedPrecondition
	case errs.KindPolicy:
		return codes.InvalidArgument
	case errs.KindOracle:
		return codes.Unavailable
	case errs.KindTransfer:
		return codes.Aborted
	}
	switch {
	case errors.Is(err, query.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return codes.Unauthenticated
	case errors.Is(err, core.ErrStopped):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Internal
}

// toStatus converts err into a gRPC status error. Infrastructure failures
// are reported as Internal without their detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return err
	}
	code := grpcCode(err)
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

// httpStatus maps a gRPC code to the HTTP status of the JSON routes.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Aborted:
		return http.StatusBadGateway
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) (int, ErrorBody) {
	st, _ := status.FromError(toStatus(err))
	body := ErrorBody{
		Code:    st.Code().String(),
		Message: st.Message(),
	}
	if k := errs.KindOf(err); k != errs.KindUnknown {
		body.Kind = k.String()
		body.Reason = errs.ReasonOf(err)
	}
	return httpStatus(st.Code()), body
}
