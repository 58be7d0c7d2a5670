package redis

import (
	"testing"
	"time"

	"github.com/rifaescolar/raffle-backend/pkg/config"
)

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

func TestOptionsFromConfigAddress(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		Address:     "localhost:6379",
		Password:    "pw",
		DB:          2,
		PoolSize:    5,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 5 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestOptionsFromConfigURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/1"})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 1 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestKeyBuilders(t *testing.T) {
	c := &Client{}
	if got := c.IdempotencyKey("mp-webhook", "12345"); got != "rifa:idempotency:mp-webhook:12345" {
		t.Fatalf("unexpected idempotency key: %s", got)
	}
	if got := c.LockKey("cron-worker:prod"); got != "rifa:lock:cron-worker:prod" {
		t.Fatalf("unexpected lock key: %s", got)
	}
}
