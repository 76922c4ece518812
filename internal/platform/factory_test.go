package platform

import (
	"testing"

	"tradesmart/internal/config"
)

func TestFactoryDispatch(t *testing.T) {
	factory := NewFactory(config.PlatformsConfig{}, nil, nil)

	for _, name := range []string{Betfair, Kraken, IBKR} {
		client, err := factory.New(name, Credentials{APIKey: "k", APISecret: "cw==", AccessToken: "t"})
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if client.Name() != name {
			t.Fatalf("expected client name %s, got %s", name, client.Name())
		}
	}
}

func TestFactoryUnknownPlatform(t *testing.T) {
	factory := NewFactory(config.PlatformsConfig{}, nil, nil)
	client, err := factory.New("robinhood", Credentials{})
	if client != nil {
		t.Fatalf("expected nil client for unknown platform")
	}
	if !IsUnknownPlatform(err) {
		t.Fatalf("expected unknown platform error, got %v", err)
	}
}
