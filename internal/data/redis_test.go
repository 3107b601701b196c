package data

import (
	"testing"
	"time"

	"github.com/example/partition-keeper/internal/keepercfg"
)

func TestRedis_DisabledHasNoLease(t *testing.T) {
	r, err := NewRedis(keepercfg.RedisConfig{Enabled: false})
	if err != nil { t.Fatal(err) }
	if r.MaintenanceLease(time.Minute) != nil {
		t.Fatalf("disabled redis must not hand out a lease")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close on disabled client: %v", err)
	}
}

func TestPrefixed(t *testing.T) {
	if got := prefixed("", "keeper:maintain"); got != "keeper:maintain" {
		t.Fatalf("empty prefix: %s", got)
	}
	if got := prefixed("prod", "keeper:maintain"); got != "prod:keeper:maintain" {
		t.Fatalf("prefixed: %s", got)
	}
}
