package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/stockroom/internal/inventory"
)

func TestArticleStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArticleStore()

	a := inventory.Article{Name: "Bolts", Stock: 5, MinStock: 2, Code: "abcd1234"}
	if err := store.Create(ctx, &a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID != 1 || a.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be assigned, got %+v", a)
	}
	dup := inventory.Article{Name: "Nuts", Code: "abcd1234"}
	if err := store.Create(ctx, &dup); err == nil {
		t.Fatal("expected duplicate code to be rejected")
	}

	got, err := store.GetByCode(ctx, "abcd1234")
	if err != nil || got.ID != a.ID {
		t.Fatalf("GetByCode() = %+v, %v", got, err)
	}

	if err := store.SetImageName(ctx, a.ID, "1.jpg"); err != nil {
		t.Fatalf("SetImageName() error = %v", err)
	}
	got, _ = store.Get(ctx, a.ID)
	if got.ImageName != "1.jpg" {
		t.Fatalf("expected image name to be set, got %q", got.ImageName)
	}

	stale := got
	stale.ImageName = ""
	stale.Name = "Hex bolts"
	if err := store.Update(ctx, &stale); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ = store.Get(ctx, a.ID)
	if got.Name != "Hex bolts" || got.ImageName != "1.jpg" || got.Stock != 5 {
		t.Fatalf("update with unchanged link must keep the image pointer: %+v", got)
	}

	got.OrderLink = "https://other.example/p/2"
	if err := store.Update(ctx, &got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.ImageName != "" {
		t.Fatalf("changed order link must clear the image pointer: %+v", got)
	}
	got, _ = store.Get(ctx, a.ID)
	if got.ImageName != "" {
		t.Fatalf("expected cleared pointer to be stored, got %q", got.ImageName)
	}

	if err := store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, a.ID); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, a.ID); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestArticleStoreAdjustStockNeverNegative(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArticleStore()
	a := inventory.Article{Name: "Washers", Stock: 3, Code: "00000001"}
	if err := store.Create(ctx, &a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.AdjustStock(ctx, a.ID, -3)
	if err != nil || got.Stock != 0 {
		t.Fatalf("AdjustStock(-3) = %+v, %v", got, err)
	}
	if _, err := store.AdjustStock(ctx, a.ID, -1); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	got, _ = store.Get(ctx, a.ID)
	if got.Stock != 0 {
		t.Fatalf("expected stock to stay 0, got %d", got.Stock)
	}
}

func TestArticleStoreListOrdersByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArticleStore()
	for _, code := range []string{"c", "a", "b"} {
		a := inventory.Article{Name: code, Code: code}
		if err := store.Create(ctx, &a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for i, a := range list {
		if a.ID != int64(i+1) {
			t.Fatalf("expected ordered ids, got %+v", list)
		}
	}
}
