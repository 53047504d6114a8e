package server

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return NewRedisDeduper(client, time.Minute), m
}

func TestRedisDeduperAdd(t *testing.T) {
	deduper, _ := newDeduper(t)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "board-1", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expected first add to succeed")
	}

	added, err = deduper.Add(ctx, "board-1", "key-1")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added {
		t.Fatal("expected duplicate key to be rejected")
	}
}

func TestRedisDeduperBoardNamespacing(t *testing.T) {
	deduper, _ := newDeduper(t)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "board-1", "key-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	added, err := deduper.Add(ctx, "board-2", "key-1")
	if err != nil {
		t.Fatalf("add other board: %v", err)
	}
	if !added {
		t.Fatal("same key on a different board must be independent")
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	deduper, _ := newDeduper(t)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "board-1", "key-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := deduper.Remove(ctx, "board-1", "key-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err := deduper.Add(ctx, "board-1", "key-1")
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !added {
		t.Fatal("removed key must be addable again")
	}
}
