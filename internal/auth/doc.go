// Package auth provides API key authentication for the phenowatch server.
//
// APIKeyInterceptor(mode, header, key) returns a gRPC UnaryServerInterceptor
// that validates the API key from the named gRPC metadata header.
// APIKeyMiddleware(mode, header, key) does the same for HTTP handlers.
//
// When mode != "apikey" or key == "", all calls pass through (useful for local
// development with auth disabled). When the key is incorrect or absent, the
// interceptor returns codes.Unauthenticated and the middleware responds 401.
package auth
