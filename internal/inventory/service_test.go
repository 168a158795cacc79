package inventory_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockroom/internal/codes"
	"github.com/JakeFAU/stockroom/internal/inventory"
	pubmem "github.com/JakeFAU/stockroom/internal/publisher/memory"
	"github.com/JakeFAU/stockroom/internal/storage/memory"
)

type fixture struct {
	svc   *inventory.Service
	store *memory.ArticleStore
	codes *codes.Generator
	pub   *pubmem.Publisher
	dir   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	gen, err := codes.New(codes.Config{Dir: dir}, nil)
	require.NoError(t, err)
	store := memory.NewArticleStore()
	pub := pubmem.New()
	svc, err := inventory.NewService(store, gen, pub, nil)
	require.NoError(t, err)
	return fixture{svc: svc, store: store, codes: gen, pub: pub, dir: dir}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := inventory.NewService(nil, nil, nil, nil)
	require.Error(t, err)
	_, err = inventory.NewService(memory.NewArticleStore(), nil, nil, nil)
	require.Error(t, err)
}

func TestCreateAssignsCodeAndIdentifierImage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, err := f.svc.Create(context.Background(), inventory.ArticleInput{
		Name:      "  M6 bolts ",
		Stock:     40,
		MinStock:  10,
		Location:  "A-3",
		OrderLink: " https://shop.example/p/123 ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, "M6 bolts", a.Name)
	assert.Equal(t, "https://shop.example/p/123", a.OrderLink)
	assert.Regexp(t, `^[0-9a-f]{8}$`, a.Code)
	assert.Empty(t, a.ImageName)

	_, err = os.Stat(filepath.Join(f.dir, a.Code+".png"))
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cases := map[string]inventory.ArticleInput{
		"missing name":   {Name: "   "},
		"long name":      {Name: strings.Repeat("x", inventory.MaxNameLength+1)},
		"negative stock": {Name: "a", Stock: -1},
		"negative min":   {Name: "a", MinStock: -1},
	}
	for name, in := range cases {
		_, err := f.svc.Create(context.Background(), in)
		require.ErrorIs(t, err, inventory.ErrInvalid, name)
	}
}

func TestUpdateChangedOrderLinkClearsImage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "Tape", OrderLink: "https://shop.example/p/1"})
	require.NoError(t, err)
	require.NoError(t, f.store.SetImageName(ctx, a.ID, "1.jpg"))

	var relinked []inventory.Article
	f.svc.OnRelink(func(_ context.Context, prev inventory.Article) error {
		relinked = append(relinked, prev)
		return errors.New("ignored")
	})

	same, err := f.svc.Update(ctx, a.ID, inventory.ArticleUpdate{Name: "Tape 50m", OrderLink: "https://shop.example/p/1"})
	require.NoError(t, err)
	assert.Equal(t, "1.jpg", same.ImageName)
	assert.Empty(t, relinked)

	moved, err := f.svc.Update(ctx, a.ID, inventory.ArticleUpdate{Name: "Tape 50m", OrderLink: "https://shop.example/p/2"})
	require.NoError(t, err)
	assert.Empty(t, moved.ImageName)
	require.Len(t, relinked, 1)
	assert.Equal(t, "1.jpg", relinked[0].ImageName)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ImageName)
}

// lateImageStore stores an image pointer after the service has read the
// article and before its update lands.
type lateImageStore struct {
	*memory.ArticleStore
	name string
}

func (s *lateImageStore) Update(ctx context.Context, a *inventory.Article) error {
	if err := s.SetImageName(ctx, a.ID, s.name); err != nil {
		return err
	}
	return s.ArticleStore.Update(ctx, a)
}

func TestUpdateKeepsImageStoredConcurrently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	gen, err := codes.New(codes.Config{Dir: dir}, nil)
	require.NoError(t, err)
	store := &lateImageStore{ArticleStore: memory.NewArticleStore(), name: "1.jpg"}
	svc, err := inventory.NewService(store, gen, pubmem.New(), nil)
	require.NoError(t, err)

	a, err := svc.Create(ctx, inventory.ArticleInput{Name: "Tape", OrderLink: "https://shop.example/p/1"})
	require.NoError(t, err)
	require.Empty(t, a.ImageName)

	updated, err := svc.Update(ctx, a.ID, inventory.ArticleUpdate{Name: "Tape 50m", OrderLink: "https://shop.example/p/1"})
	require.NoError(t, err)
	assert.Equal(t, "1.jpg", updated.ImageName)

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.jpg", stored.ImageName)
}

func TestAdjustPublishesOnTransitionToLow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "Gloves", Stock: 5, MinStock: 3})
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, a.ID, -2)
	require.NoError(t, err)
	assert.Empty(t, f.pub.Events(), "stock 3 with min 3 is not low")

	low, err := f.svc.Adjust(ctx, a.ID, -1)
	require.NoError(t, err)
	assert.True(t, low.IsLow())
	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, inventory.EventLowStock, events[0].Type)
	payload, ok := events[0].Payload.(inventory.LowStockEvent)
	require.True(t, ok)
	assert.Equal(t, a.ID, payload.ArticleID)
	assert.Equal(t, 2, payload.Stock)

	_, err = f.svc.Adjust(ctx, a.ID, -1)
	require.NoError(t, err)
	assert.Len(t, f.pub.Events(), 1, "already low articles do not publish again")
}

func TestAdjustPublishFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "Fuses", Stock: 1, MinStock: 1})
	require.NoError(t, err)
	f.pub.FailWith(errors.New("broker down"))

	got, err := f.svc.Adjust(ctx, a.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestAdjustNeverNegative(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "Cable", Stock: 2})
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, a.ID, -3)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
}

func TestAdjustByCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "Screws", Stock: 10})
	require.NoError(t, err)

	got, err := f.svc.AdjustByCode(ctx, a.Code, inventory.ActionAdd, 5)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Stock)

	got, err = f.svc.AdjustByCode(ctx, a.Code, inventory.ActionRemove, 7)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)

	_, err = f.svc.AdjustByCode(ctx, a.Code, "steal", 1)
	require.ErrorIs(t, err, inventory.ErrInvalid)
	_, err = f.svc.AdjustByCode(ctx, a.Code, inventory.ActionAdd, 0)
	require.ErrorIs(t, err, inventory.ErrInvalid)
	_, err = f.svc.AdjustByCode(ctx, "nope", inventory.ActionAdd, 1)
	require.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestDeleteRunsHooksAndRemovesIdentifierImage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "Drill"})
	require.NoError(t, err)

	var calls int
	f.svc.OnDelete(func(context.Context, inventory.Article) error {
		calls++
		return errors.New("blob store offline")
	})
	f.svc.OnDelete(func(_ context.Context, deleted inventory.Article) error {
		calls++
		assert.Equal(t, a.ID, deleted.ID)
		return nil
	})

	require.NoError(t, f.svc.Delete(ctx, a.ID))
	assert.Equal(t, 2, calls)
	_, err = os.Stat(filepath.Join(f.dir, a.Code+".png"))
	assert.True(t, os.IsNotExist(err))
	_, err = f.svc.Get(ctx, a.ID)
	require.ErrorIs(t, err, inventory.ErrNotFound)

	require.ErrorIs(t, f.svc.Delete(ctx, a.ID), inventory.ErrNotFound)
}

func TestLowStock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "ok", Stock: 5, MinStock: 1})
	require.NoError(t, err)
	low, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "low", Stock: 0, MinStock: 2})
	require.NoError(t, err)

	got, err := f.svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, low.ID, got[0].ID)
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, inventory.ArticleInput{Name: "Glue, fast", Stock: 1, MinStock: 4, Notes: "line1\nline2"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(ctx, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "name", "stock", "min_stock", "low", "code", "location", "order_link", "notes"}, rows[0])
	assert.Equal(t, []string{"1", "Glue, fast", "1", "4", "true", a.Code, "", "", "line1\nline2"}, rows[1])
}
