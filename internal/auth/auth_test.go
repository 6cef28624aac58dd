package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// passHandler is a grpc.UnaryHandler that returns ("ok", nil).
func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func callWithKey(t *testing.T, interceptor grpc.UnaryServerInterceptor, header, key string) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	if key != "" {
		md := metadata.Pairs(header, key)
		ctx = metadata.NewIncomingContext(ctx, md)
	}
	return interceptor(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		key      string
		sent     string
		wantCode codes.Code
	}{
		{"mode none passes", "none", "secret", "", codes.OK},
		{"empty key passes", "apikey", "", "", codes.OK},
		{"correct key", "apikey", "supersecret", "supersecret", codes.OK},
		{"wrong key", "apikey", "supersecret", "nope", codes.Unauthenticated},
		{"missing key", "apikey", "supersecret", "", codes.Unauthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			i := APIKeyInterceptor(tc.mode, "x-api-key", tc.key)
			res, err := callWithKey(t, i, "x-api-key", tc.sent)
			if got := status.Code(err); got != tc.wantCode {
				t.Fatalf("code: got %v, want %v", got, tc.wantCode)
			}
			if tc.wantCode == codes.OK && res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor_HeaderCaseInsensitive(t *testing.T) {
	i := APIKeyInterceptor("apikey", "X-Api-Key", "supersecret")
	if _, err := callWithKey(t, i, "x-api-key", "supersecret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name   string
		mode   string
		key    string
		header string
		query  string
		want   int
	}{
		{"disabled", "none", "k", "", "", http.StatusTeapot},
		{"no key configured", "apikey", "", "", "", http.StatusTeapot},
		{"header key", "apikey", "k", "k", "", http.StatusTeapot},
		{"query key", "apikey", "k", "", "k", http.StatusTeapot},
		{"wrong key", "apikey", "k", "x", "", http.StatusUnauthorized},
		{"missing key", "apikey", "k", "", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := APIKeyMiddleware(tc.mode, "x-api-key", tc.key)(ok)
			target := "/api/v1/weeks"
			if tc.query != "" {
				target += "?api_key=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("x-api-key", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status: got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
