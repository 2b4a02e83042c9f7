package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"OptionVault/internal/core"
)

// ============================================================================
// Test: serialized execution
// ============================================================================

func TestSerializer_NoInterleaving(t *testing.T) {
	s := core.NewSerializer(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// A plain int is safe only if operations never interleave.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Do(ctx, func() error {
					counter++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	var got int
	s.Do(ctx, func() error {
		got = counter
		return nil
	})
	if got != 800 {
		t.Errorf("counter = %d, want 800", got)
	}
}

func TestSerializer_PropagatesError(t *testing.T) {
	s := core.NewSerializer(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sentinel := errors.New("rejected")
	err := s.Do(ctx, func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("got %v, want sentinel error", err)
	}
}

func TestSerializer_CancelledContext(t *testing.T) {
	s := core.NewSerializer(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No Run loop; a cancelled context must not block the caller.
	err := s.Do(ctx, func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
