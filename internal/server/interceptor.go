package server

import (
	"context"
	"net/http"
	"path"
	"runtime/debug"
	"time"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthInterceptor verifies the bearer token in the "authorization" metadata
// and stores its claims in the context. Calls without a token proceed
// anonymously; commands then fail with Unauthenticated.
func AuthInterceptor(j auth.JWT) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var tok string
		if vals := md.Get("authorization"); len(vals) > 0 {
			tok = auth.BearerToken(vals[0])
		}
		if tok == "" {
			return handler(ctx, req)
		}
		claims, err := j.Verify(tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, auth.ErrInvalidToken.Error())
		}
		return handler(auth.WithClaims(ctx, claims), req)
	}
}

// LoggingInterceptor logs every call and records query metrics.
func LoggingInterceptor(logger zerolog.Logger, metrics *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		method := path.Base(info.FullMethod)
		if metrics != nil {
			metrics.QueryRequests.WithLabelValues(method, code.String()).Inc()
			metrics.QueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}

		ev := logger.Debug()
		if code == codes.Internal || code == codes.Unknown {
			ev = logger.Error()
		}
		ev.Str("method", method).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("grpc call")
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into Internal. Engine
// invariant panics never reach here: they fire on the processor goroutine.
func RecoveryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Interface("panic", r).
					Str("method", info.FullMethod).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// authMiddleware is the HTTP counterpart of AuthInterceptor.
func authMiddleware(j auth.JWT, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := auth.BearerToken(r.Header.Get("Authorization"))
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			writeError(w, status.Error(codes.Unauthenticated, auth.ErrInvalidToken.Error()))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// ErrorInterceptor converts command and query errors to gRPC statuses.
func ErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return nil, toStatus(err)
		}
		return resp, nil
	}
}
