package localstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"cart-sync/internal/model"
)

func sampleItems() []model.LineItem {
	return []model.LineItem{
		{ProductID: 10, Quantity: 1, Title: "Milk", Shop: model.ShopSamokat, UnitPrice: decimal.NewFromInt(80)},
		{ProductID: 22, Quantity: 3, Title: "Bread", Shop: model.ShopLavka, UnitPrice: decimal.RequireFromString("45.5")},
	}
}

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"not json", "{{{", 0},
		{"object instead of array", `{"productId": 1, "quantity": 1}`, 0},
		{"null", "null", 0},
		{"valid", `[{"productId": 1, "quantity": 1}, {"productId": 2, "quantity": 2}]`, 2},
		{"browser record with price number", `[{"productId": 5, "title": "Milk", "shop": "SAMOKAT", "price": 80, "quantity": 1}]`, 1},
		{"invalid entries dropped", `[{"productId": 0, "quantity": 1}, {"productId": 3, "quantity": 0}, {"productId": 4, "quantity": 1}]`, 1},
		{"wrong field type", `[{"productId": "abc", "quantity": 1}]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeItems([]byte(tt.raw))
			if got == nil {
				t.Fatal("decodeItems returned nil, want non-nil slice")
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFileStore_RoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	// Absent record reads as empty
	got, err := store.Read(ctx, "cart")
	if err != nil {
		t.Fatalf("Read absent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("absent record = %d items, want 0", len(got))
	}

	if err := store.Write(ctx, "cart", sampleItems()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// A new store over the same directory sees the record (restart survival)
	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore reopen: %v", err)
	}
	got, err = reopened.Read(ctx, "cart")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read = %d items, want 2", len(got))
	}
	if got[0].ProductID != 10 || got[1].Quantity != 3 {
		t.Errorf("order or content changed: %+v", got)
	}
	if !got[1].UnitPrice.Equal(decimal.RequireFromString("45.5")) {
		t.Errorf("UnitPrice = %s, want 45.5", got[1].UnitPrice)
	}

	if err := store.Write(ctx, "cart", nil); err != nil {
		t.Fatalf("Write empty: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cart.json")); !os.IsNotExist(err) {
		t.Errorf("record file should be removed, stat err = %v", err)
	}

	// Clearing an absent record is fine
	if err := store.Write(ctx, "cart", nil); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestFileStore_MalformedRecordReadsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "cart.json"), []byte("not json at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got, err := store.Read(ctx, "cart")
	if err != nil {
		t.Fatalf("Read malformed should not fail: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("malformed record = %d items, want 0", len(got))
	}
}

func TestFileStore_RejectsUnsafeKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"", "../escape", `a\b`, ".."} {
		if _, err := store.Read(context.Background(), key); err == nil {
			t.Errorf("Read(%q) should fail", key)
		}
		if err := store.Write(context.Background(), key, sampleItems()); err == nil {
			t.Errorf("Write(%q) should fail", key)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.Seed("cart", []byte(`[{"productId": 1, "quantity": `))
	got, err := store.Read(ctx, "cart")
	if err != nil || len(got) != 0 {
		t.Errorf("truncated record = %v, %v; want empty, nil", got, err)
	}

	if err := store.Write(ctx, "cart", sampleItems()); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Read(ctx, "cart")
	if len(got) != 2 {
		t.Errorf("Read = %d items, want 2", len(got))
	}

	if err := store.Write(ctx, "cart", []model.LineItem{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Raw("cart"); ok {
		t.Error("empty write should delete the record")
	}
	if store.Writes() != 2 {
		t.Errorf("Writes() = %d, want 2", store.Writes())
	}
}
