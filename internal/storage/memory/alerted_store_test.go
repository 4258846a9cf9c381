package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

func TestAlertedStore_MarkIfAbsent(t *testing.T) {
	store := NewAlertedStore()
	ctx := context.Background()
	key := domain.NewAlertKey("a", domain.PatternTripleTopBuy, 20)

	ok, err := store.MarkIfAbsent(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Expected first mark to succeed, got %v, %v", ok, err)
	}

	ok, err = store.MarkIfAbsent(ctx, key)
	if err != nil || ok {
		t.Errorf("Expected second mark to report existing key, got %v, %v", ok, err)
	}

	has, _ := store.Contains(ctx, key)
	if !has {
		t.Error("Expected Contains to report the key")
	}

	other, _ := store.Contains(ctx, domain.NewAlertKey("a", domain.PatternTripleTopBuy, 21))
	if other {
		t.Error("Different level must be a different key")
	}

	if _, err := store.MarkIfAbsent(ctx, domain.AlertKey{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestAlertedStore_ConcurrentMarkSingleWinner(t *testing.T) {
	store := NewAlertedStore()
	key := domain.NewAlertKey("a", domain.PatternDoubleBottomSell, 5)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.MarkIfAbsent(context.Background(), key); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winner, got %d", wins)
	}
}
