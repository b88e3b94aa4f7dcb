// Package auth provides API-key authentication for flowbench-server.
//
// APIKeyInterceptor(mode, header, key) guards the gRPC RecordService;
// HTTPMiddleware(mode, header, key) guards the REST API with the same rules.
//
// When mode != "apikey" or key == "", all calls pass through (useful for local
// development with auth disabled). A missing or incorrect key is rejected with
// codes.Unauthenticated or 401.
package auth
