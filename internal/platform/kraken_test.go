package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"tradesmart/internal/config"
)

func TestNonceSourceMonotonic(t *testing.T) {
	src := &nonceSource{}
	var mu sync.Mutex
	seen := make([]int64, 0, 1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := src.next()
				mu.Lock()
				seen = append(seen, n)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 1000 {
		t.Fatalf("expected 1000 nonces, got %d", len(seen))
	}
	unique := make(map[int64]struct{}, len(seen))
	for _, n := range seen {
		if _, dup := unique[n]; dup {
			t.Fatalf("duplicate nonce %d", n)
		}
		unique[n] = struct{}{}
	}
}

func TestKrakenSignatureVerifiesServerSide(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("kraken-test-secret"))
	var lastNonce int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		form := string(body)
		nonceStr := formValue(form, "nonce")
		nonce, err := strconv.ParseInt(nonceStr, 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"error":["EAPI:Invalid nonce"]}`))
			return
		}
		if nonce <= lastNonce {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"error":["EAPI:Invalid nonce"]}`))
			return
		}
		lastNonce = nonce

		rawSecret, _ := base64.StdEncoding.DecodeString(secret)
		digest := sha256.Sum256([]byte(nonceStr + form))
		mac := hmac.New(sha512.New, rawSecret)
		mac.Write([]byte(r.URL.Path))
		mac.Write(digest[:])
		want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		if got := r.Header.Get("API-Sign"); got != want {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"error":["EAPI:Invalid signature"]}`))
			return
		}
		w.Write([]byte(`{"error":[],"result":{"ZUSD":"1000.00","ZEUR":"250.50","XXBT":"0.5"}}`))
	}))
	defer server.Close()

	client := newKrakenClient(config.KrakenConfig{BaseURL: server.URL}, Credentials{
		APIKey:    "key",
		APISecret: secret,
	}, server.Client(), nil)

	for i := 0; i < 3; i++ {
		balance, err := client.GetBalance(context.Background())
		if err != nil {
			t.Fatalf("GetBalance call %d: %v", i, err)
		}
		if balance.Currency != "USD" {
			t.Fatalf("expected USD balance, got %s", balance.Currency)
		}
		// Fiat balances are summed; the crypto asset is skipped.
		if balance.Available.String() != "1250.5" {
			t.Fatalf("expected available 1250.5, got %s", balance.Available)
		}
		if !balance.Exposure.IsZero() {
			t.Fatalf("expected zero exposure, got %s", balance.Exposure)
		}
	}
}

func TestKrakenErrorClassification(t *testing.T) {
	cases := []struct {
		body string
		want Kind
	}{
		{`{"error":["EAPI:Invalid key"]}`, KindAuthentication},
		{`{"error":["EAPI:Invalid signature"]}`, KindAuthentication},
		{`{"error":["EAPI:Rate limit exceeded"]}`, KindRateLimited},
		{`{"error":["EService:Unavailable"]}`, KindUnavailable},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(tc.body))
		}))
		client := newKrakenClient(config.KrakenConfig{BaseURL: server.URL}, Credentials{
			APIKey:    "key",
			APISecret: base64.StdEncoding.EncodeToString([]byte("s")),
		}, server.Client(), nil)

		_, err := client.GetBalance(context.Background())
		server.Close()
		if err == nil {
			t.Fatalf("expected error for %s", tc.body)
		}
		if got := kindOf(err); got != tc.want {
			t.Fatalf("body %s: expected kind %s, got %s", tc.body, tc.want, got)
		}
	}
}

func TestKrakenOpenPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/private/OpenPositions" {
			w.Write([]byte(`{"error":["EGeneral:Unknown path"]}`))
			return
		}
		w.Write([]byte(`{"error":[],"result":{"TX1":{"pair":"XBTUSD","type":"sell","vol":"2","cost":"90000","net":"-120.5"}}}`))
	}))
	defer server.Close()

	client := newKrakenClient(config.KrakenConfig{BaseURL: server.URL}, Credentials{
		APIKey:    "key",
		APISecret: base64.StdEncoding.EncodeToString([]byte("s")),
	}, server.Client(), nil)

	positions, err := client.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	p := positions[0]
	if p.Market != "XBTUSD" || p.Side != "short" {
		t.Fatalf("unexpected position %+v", p)
	}
	if p.AvgPrice.String() != "45000" {
		t.Fatalf("expected avg price 45000, got %s", p.AvgPrice)
	}
	if p.UnrealizedPL.String() != "-120.5" {
		t.Fatalf("expected net -120.5, got %s", p.UnrealizedPL)
	}
}

func TestKrakenPositionsUnsupportedWithoutMargin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":["EGeneral:Permission denied"]}`))
	}))
	defer server.Close()

	client := newKrakenClient(config.KrakenConfig{BaseURL: server.URL}, Credentials{
		APIKey:    "key",
		APISecret: base64.StdEncoding.EncodeToString([]byte("s")),
	}, server.Client(), nil)

	_, err := client.GetPositions(context.Background())
	if !IsUnsupported(err) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestKrakenValidateCredentials(t *testing.T) {
	bodies := map[string]bool{
		`{"error":[],"result":{"ZUSD":"10.00"}}`: true,
		`{"error":["EAPI:Invalid key"]}`:         false,
	}
	for body, want := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		client := newKrakenClient(config.KrakenConfig{BaseURL: server.URL}, Credentials{
			APIKey:    "key",
			APISecret: base64.StdEncoding.EncodeToString([]byte("s")),
		}, server.Client(), nil)
		got := client.ValidateCredentials(context.Background())
		server.Close()
		if got != want {
			t.Fatalf("body %s: expected %v, got %v", body, want, got)
		}
	}
}

// formValue pulls a single key out of an urlencoded body.
func formValue(body, key string) string {
	for _, pair := range splitPairs(body) {
		if pair[0] == key {
			return pair[1]
		}
	}
	return ""
}

func splitPairs(body string) [][2]string {
	var out [][2]string
	start := 0
	for i := 0; i <= len(body); i++ {
		if i == len(body) || body[i] == '&' {
			segment := body[start:i]
			start = i + 1
			for j := 0; j < len(segment); j++ {
				if segment[j] == '=' {
					out = append(out, [2]string{segment[:j], segment[j+1:]})
					break
				}
			}
		}
	}
	return out
}
