package platform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradesmart/internal/config"
)

func TestExchangeAuthCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		if formValue(string(body), "grant_type") != "authorization_code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"unsupported_grant_type"}`))
			return
		}
		w.Write([]byte(`{"access_token":"at-123","refresh_token":"rt-456","expires_in":3600}`))
	}))
	defer server.Close()

	cfg := config.BetfairConfig{
		AuthURL:      server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}
	token, err := ExchangeAuthCode(context.Background(), server.Client(), cfg, "auth-code")
	if err != nil {
		t.Fatalf("ExchangeAuthCode: %v", err)
	}
	if token.AccessToken != "at-123" || token.RefreshToken != "rt-456" {
		t.Fatalf("unexpected token pair: %+v", token)
	}
	if remaining := time.Until(token.ExpiresAt); remaining < 59*time.Minute || remaining > 61*time.Minute {
		t.Fatalf("expected expiry about an hour out, got %s", remaining)
	}
}

func TestExchangeAuthCodeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	_, err := ExchangeAuthCode(context.Background(), server.Client(), config.BetfairConfig{AuthURL: server.URL}, "stale")
	if !IsAuthentication(err) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestBetfairBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Application") != "app-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Header.Get("X-Authentication") != "session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"availableToBetBalance":250.75,"exposure":-40.25}`))
	}))
	defer server.Close()

	client := newBetfairClient(config.BetfairConfig{BaseURL: server.URL, AppKey: "app-key"},
		Credentials{AccessToken: "session-token"}, server.Client())

	balance, err := client.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Available.String() != "250.75" {
		t.Fatalf("expected available 250.75, got %s", balance.Available)
	}
	if balance.Exposure.String() != "40.25" {
		t.Fatalf("expected exposure 40.25, got %s", balance.Exposure)
	}
	if balance.Total.String() != "291" {
		t.Fatalf("expected total 291, got %s", balance.Total)
	}
	if !client.ValidateCredentials(context.Background()) {
		t.Fatalf("working session should validate")
	}
}

func TestBetfairExpiredSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"faultCode":"INVALID_SESSION_INFORMATION"}`))
	}))
	defer server.Close()

	client := newBetfairClient(config.BetfairConfig{BaseURL: server.URL, AppKey: "app-key"},
		Credentials{AccessToken: "expired"}, server.Client())

	_, err := client.GetBalance(context.Background())
	if !IsAuthentication(err) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if client.ValidateCredentials(context.Background()) {
		t.Fatalf("expired session must not validate")
	}
}
