package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, string) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	return mr, "redis://" + mr.Addr()
}

func TestNew_Success(t *testing.T) {
	mr, redisURL := setupTestRedis(t)
	defer mr.Close()

	client, err := New(redisURL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNew_EmptyURL(t *testing.T) {
	client, err := New("")
	if err == nil {
		t.Error("Expected error for empty URL")
	}
	if client != nil {
		t.Error("Expected nil client on error")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	client, err := New("not-a-valid-redis-url")
	if err == nil {
		t.Error("Expected error for invalid URL")
	}
	if client != nil {
		t.Error("Expected nil client on error")
	}
}

func TestNewWithConfig_NilConfig(t *testing.T) {
	mr, redisURL := setupTestRedis(t)
	defer mr.Close()

	// Should use default config when nil
	client, err := NewWithConfig(redisURL, nil)
	if err != nil {
		t.Fatalf("Failed to create client with nil config: %v", err)
	}
	defer client.Close()
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.PoolSize != 100 {
		t.Errorf("Expected pool size 100, got %d", cfg.PoolSize)
	}
	if cfg.DialTimeout != 5*time.Second {
		t.Errorf("Expected dial timeout 5s, got %v", cfg.DialTimeout)
	}
}

func TestClient_IncrWithTTL(t *testing.T) {
	mr, redisURL := setupTestRedis(t)
	defer mr.Close()

	client, err := New(redisURL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	key := "leadcap:buyer-1:zone-1:20260830"

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, key, time.Hour)
		if err != nil {
			t.Fatalf("IncrWithTTL failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected counter %d, got %d", want, got)
		}
	}

	// Expiry must be attached by the first increment
	if mr.TTL(key) <= 0 {
		t.Error("Expected TTL on counter key")
	}
}

func TestClient_GetInt_Missing(t *testing.T) {
	mr, redisURL := setupTestRedis(t)
	defer mr.Close()

	client, err := New(redisURL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	got, err := client.GetInt(context.Background(), "leadcap:missing")
	if err != nil {
		t.Fatalf("GetInt failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Expected 0 for missing key, got %d", got)
	}
}

func TestClient_Decr(t *testing.T) {
	mr, redisURL := setupTestRedis(t)
	defer mr.Close()

	client, err := New(redisURL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	key := "leadcap:buyer-1:zone-1:20260830"

	if _, err := client.IncrWithTTL(ctx, key, time.Hour); err != nil {
		t.Fatalf("IncrWithTTL failed: %v", err)
	}
	got, err := client.Decr(ctx, key)
	if err != nil {
		t.Fatalf("Decr failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Expected counter 0 after decrement, got %d", got)
	}
}

func TestClient_Ping_AfterServerClosed(t *testing.T) {
	mr, redisURL := setupTestRedis(t)

	client, err := New(redisURL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	mr.Close()

	if err := client.Ping(context.Background()); err == nil {
		t.Error("Expected error pinging closed server")
	}
}
