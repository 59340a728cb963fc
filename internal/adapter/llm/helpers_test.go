package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"tidgi-agent/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusInternalServerError, domain.ErrServerFailure},
		{http.StatusBadGateway, domain.ErrServerFailure},
		{http.StatusBadRequest, domain.ErrProviderError},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
		if !errors.Is(err, tt.want) {
			t.Errorf("mapHTTPError(%d) = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestIsClientError(t *testing.T) {
	if !isClientError(nil) {
		t.Error("nil should count as success")
	}
	if !isClientError(mapHTTPError(http.StatusUnauthorized, nil)) {
		t.Error("auth failures should not trip the breaker")
	}
	if isClientError(mapHTTPError(http.StatusServiceUnavailable, nil)) {
		t.Error("server failures should trip the breaker")
	}
	if isClientError(errors.New("connection reset")) {
		t.Error("unknown errors should trip the breaker")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestOpenRouterTransport(t *testing.T) {
	var captured *http.Request
	transport := &openrouterTransport{base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: make(http.Header)}, nil
	})}

	orig, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://example.com", nil)
	orig.Header.Set("Authorization", "Bearer test-key")

	if _, err := transport.RoundTrip(orig); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if captured.Header.Get("X-Title") != "tidgi-agent" {
		t.Errorf("X-Title = %q", captured.Header.Get("X-Title"))
	}
	if captured.Header.Get("HTTP-Referer") == "" {
		t.Error("HTTP-Referer missing")
	}
	if captured.Header.Get("Authorization") != "Bearer test-key" {
		t.Errorf("Authorization = %q", captured.Header.Get("Authorization"))
	}
	if orig.Header.Get("X-Title") != "" {
		t.Error("original request must not be mutated")
	}
}
