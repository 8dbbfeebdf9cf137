package ratelimit

import (
	"errors"
	"testing"
)

func TestBudget_EnforcesLimit(t *testing.T) {
	b := NewBudget(map[Service]int{Model: 2})

	for i := 0; i < 2; i++ {
		if err := b.Use(Model); err != nil {
			t.Fatalf("call %d: unexpected error %v", i+1, err)
		}
	}
	if err := b.Use(Model); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	stats := b.GetStats()
	if stats["model_used"] != 2 || stats["denied"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestBudget_ZeroIsUnlimited(t *testing.T) {
	b := NewBudget(map[Service]int{Image: 0})
	for i := 0; i < 100; i++ {
		if err := b.Use(Image); err != nil {
			t.Fatalf("unlimited budget refused call %d: %v", i+1, err)
		}
	}
}

func TestBudget_Reset(t *testing.T) {
	b := NewBudget(map[Service]int{Image: 1})
	_ = b.Use(Image)
	if err := b.Use(Image); err == nil {
		t.Fatal("expected budget to be spent")
	}

	b.Reset()
	if err := b.Use(Image); err != nil {
		t.Errorf("expected budget restored after Reset, got %v", err)
	}
}
