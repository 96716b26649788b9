package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spherity/ethr-did/internal/model"
)

func TestMemoryStore_AppendListOperations(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	did := "did:ethr:dev:0xf3beac30c498d9e26865f34fcaa57dbb935b0d74"

	for i, op := range []string{model.OperationAddDelegate, model.OperationSetAttribute} {
		entry := model.OperationLogEntry{
			DID:         did,
			Operation:   op,
			PerformedAt: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC).Format(time.RFC3339),
			TxHash:      "0x01",
		}
		if err := store.AppendOperation(ctx, entry); err != nil {
			t.Fatalf("AppendOperation failed: %v", err)
		}
	}

	got, err := store.ListOperations(ctx, did)
	if err != nil {
		t.Fatalf("ListOperations failed: %v", err)
	}
	if len(got) != 2 || got[0].Operation != model.OperationAddDelegate || got[1].Operation != model.OperationSetAttribute {
		t.Fatalf("unexpected log %+v", got)
	}

	// mutating the returned slice must not affect the store
	got[0].Operation = "tampered"
	again, _ := store.ListOperations(ctx, did)
	if again[0].Operation != model.OperationAddDelegate {
		t.Fatalf("store returned shared slice")
	}
}

func TestMemoryStore_ListOperationsUnknownDID(t *testing.T) {
	got, err := NewMemory().ListOperations(context.Background(), "did:ethr:0x0")
	if err != nil {
		t.Fatalf("ListOperations failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(got))
	}
}

func TestMemoryStore_RememberRecall(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newMemory(func() time.Time { return now })
	ctx := context.Background()

	resp := StoredResponse{StatusCode: 202, Body: []byte(`{"data":{}}`), ExpiresAt: now.Add(time.Hour)}
	if err := store.Remember(ctx, "k1", resp); err != nil {
		t.Fatalf("Remember failed: %v", err)
	}
	if err := store.Remember(ctx, "k1", resp); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, ok := store.Recall(ctx, "k1")
	if !ok || got.StatusCode != 202 || string(got.Body) != `{"data":{}}` {
		t.Fatalf("unexpected recall %+v %v", got, ok)
	}
	if _, ok := store.Recall(ctx, "missing"); ok {
		t.Fatalf("expected miss for unknown key")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := store.Recall(ctx, "k1"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if err := store.Remember(ctx, "k1", StoredResponse{StatusCode: 200, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("Remember after expiry failed: %v", err)
	}
}
