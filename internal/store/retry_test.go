package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/models"
)

func fastRetry(inner Store) *Retrying {
	return &Retrying{inner: inner, maxRetries: 2, baseDelay: time.Millisecond}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	mem := NewMemory()
	mem.SeedBanks([]models.Bank{{ID: uuid.New(), Name: "HDFC Bank"}})
	mem.FailOnce("ListBanks", &TransientError{Err: errors.New("connection refused")})
	mem.FailOnce("ListBanks", &TransientError{Err: errors.New("connection refused")})

	st := fastRetry(mem)
	banks, err := st.ListBanks(context.Background())
	if err != nil {
		t.Fatalf("ListBanks: %v", err)
	}
	if len(banks) != 1 {
		t.Errorf("banks = %d, want 1", len(banks))
	}
	if mem.Calls["ListBanks"] != 3 {
		t.Errorf("calls = %d, want 3 attempts", mem.Calls["ListBanks"])
	}
}

func TestRetryGivesUpAfterThreeAttempts(t *testing.T) {
	mem := NewMemory()
	cause := errors.New("connection refused")
	for i := 0; i < 4; i++ {
		mem.FailOnce("ListBanks", &TransientError{Err: cause})
	}

	st := fastRetry(mem)
	_, err := st.ListBanks(context.Background())
	if err == nil {
		t.Fatal("expected failure after retries exhausted")
	}
	if !IsTransient(err) {
		t.Errorf("exhausted error should still classify as transient: %v", err)
	}
	if mem.Calls["ListBanks"] != 3 {
		t.Errorf("calls = %d, want exactly 3 attempts", mem.Calls["ListBanks"])
	}
}

func TestRetryDoesNotRetryNonTransient(t *testing.T) {
	mem := NewMemory()
	st := fastRetry(mem)
	ctx := context.Background()

	// ErrNotFound is not retryable.
	if _, err := st.GetPending(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if mem.Calls["GetPending"] != 1 {
		t.Errorf("calls = %d, want 1", mem.Calls["GetPending"])
	}

	// ErrConflict is not retryable either.
	post := &models.SourcePost{SourceURL: "https://x.com/a/status/1", Text: "t", AuthorHandle: "a", PostedAt: time.Now()}
	if err := st.CreateSourcePost(ctx, post); err != nil {
		t.Fatalf("CreateSourcePost: %v", err)
	}
	dup := &models.SourcePost{SourceURL: "https://x.com/a/status/1", Text: "t", AuthorHandle: "a", PostedAt: time.Now()}
	if err := st.CreateSourcePost(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if mem.Calls["CreateSourcePost"] != 2 {
		t.Errorf("calls = %d, want 2 (one per invocation)", mem.Calls["CreateSourcePost"])
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
	if IsTransient(ErrNotFound) {
		t.Error("ErrNotFound is not transient")
	}
	wrapped := &TransientError{Err: errors.New("timeout")}
	if !IsTransient(wrapped) {
		t.Error("TransientError should classify as transient")
	}
	if !IsTransient(fmt.Errorf("load banks: %w", wrapped)) {
		t.Error("wrapped TransientError should still classify as transient")
	}
}
