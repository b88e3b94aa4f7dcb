package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ModeAPIKey is the only mode that enforces a key.
const ModeAPIKey = "apikey"

// APIKeyInterceptor returns a gRPC UnaryServerInterceptor that enforces API key
// authentication on every incoming call.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all calls are allowed (pass-through).
//   - Otherwise the interceptor reads the value of header from the incoming
//     gRPC metadata and compares it to key.
//   - A missing, empty, or incorrect key returns codes.Unauthenticated.
//
// header should be lowercase; gRPC normalises metadata keys.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !enforced(mode, key) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		vals := md.Get(header)
		if len(vals) == 0 || !matches(vals[0], key) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}

		return handler(ctx, req)
	}
}

// HTTPMiddleware applies the interceptor's rules to HTTP requests, reading the
// key from the named request header. Rejections are JSON 401s.
func HTTPMiddleware(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enforced(mode, key) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !matches(r.Header.Get(header), key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid api key"}` + "\n")) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enforced(mode, key string) bool {
	return mode == ModeAPIKey && key != ""
}

func matches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
