package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/persistence/middleware"
	"github.com/aretw0/rewind/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewJournal()
	key := generateKey(t)
	journal := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})(underlying)

	ctx := context.Background()
	record := domain.JournalRecord{SessionID: "s", Type: domain.JournalAdded, Entry: "Set salary", Depth: 1}

	// 1. Append
	if err := journal.Append(ctx, "s", record); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// 2. Verify the underlying journal directly (should be encrypted)
	stored, err := underlying.Records(ctx, "s")
	if err != nil {
		t.Fatalf("Underlying read failed: %v", err)
	}
	if strings.Contains(stored[0].Entry, "salary") {
		t.Fatalf("Expected entry to be hidden, found: %v", stored[0].Entry)
	}
	if !strings.HasPrefix(stored[0].Entry, "enc:") {
		t.Fatalf("Expected an encrypted envelope, got: %v", stored[0].Entry)
	}
	if stored[0].Depth != 1 {
		t.Errorf("Expected clear-text depth, got: %d", stored[0].Depth)
	}

	// 3. Read via middleware (should be decrypted)
	records, err := journal.Records(ctx, "s")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if records[0].Entry != "Set salary" {
		t.Errorf("Expected decrypted entry, got: %v", records[0].Entry)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewJournal()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldJournal := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	if err := oldJournal.Append(ctx, "rot", domain.JournalRecord{Type: domain.JournalAdded, Entry: "Set name"}); err != nil {
		t.Fatal(err)
	}

	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)
	records, err := rotated.Records(ctx, "rot")
	if err != nil {
		t.Fatalf("Failed to read with fallback key: %v", err)
	}
	if records[0].Entry != "Set name" {
		t.Errorf("Got %v", records[0].Entry)
	}

	strict := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})(underlying)
	if _, err := strict.Records(ctx, "rot"); err == nil {
		t.Error("Expected decryption to fail without the old key")
	}
}

func TestEncryptionMiddleware_RejectsPlainRecords(t *testing.T) {
	underlying := memory.NewJournal()
	ctx := context.Background()
	if err := underlying.Append(ctx, "plain", domain.JournalRecord{Type: domain.JournalAdded, Entry: "Set name"}); err != nil {
		t.Fatal(err)
	}

	journal := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	if _, err := journal.Records(ctx, "plain"); err == nil {
		t.Error("Expected plain records to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for a short key")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
}

func TestChain_Contract(t *testing.T) {
	journal := middleware.Chain(memory.NewJournal(),
		middleware.NewPIIMiddleware([]string{"password"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)
	ports.RunJournalContract(t, journal)
}
