package utils

import (
	"context"
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	d := PostgresPoolConfig{}.withDefaults()
	if d.MaxOpenConns != 25 || d.MaxIdleConns != 25 {
		t.Fatalf("unexpected pool defaults: %+v", d)
	}
	if d.ConnMaxLifetime != 30*time.Minute || d.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("unexpected lifetime defaults: %+v", d)
	}
	if d.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %v", d.PingTimeout)
	}

	// Explicit values pass through untouched.
	d = PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: time.Second}.withDefaults()
	if d.MaxOpenConns != 5 || d.PingTimeout != time.Second {
		t.Fatalf("explicit values overridden: %+v", d)
	}
}

func TestRedisDefaults(t *testing.T) {
	d := RedisConfig{}.withDefaults()
	if d.DialTimeout != 3*time.Second || d.ReadTimeout != 2*time.Second || d.WriteTimeout != 2*time.Second {
		t.Fatalf("unexpected timeout defaults: %+v", d)
	}
	if d.PoolSize != 20 || d.PoolTimeout != 4*time.Second {
		t.Fatalf("unexpected pool defaults: %+v", d)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}
