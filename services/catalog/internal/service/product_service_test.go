package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return pgx.ErrTxClosed }

type fakeStarter struct{}

func (fakeStarter) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type memProducts struct {
	products map[int64]*domain.Product
}

func (m *memProducts) Create(_ context.Context, _ pgx.Tx, p *domain.Product) (int64, error) {
	for _, existing := range m.products {
		if existing.Name == p.Name {
			return 0, repository.ErrProductExists
		}
	}
	p.ID = int64(len(m.products) + 1)
	stored := *p
	m.products[p.ID] = &stored
	return p.ID, nil
}

func (m *memProducts) GetByID(_ context.Context, _ pgx.Tx, id int64) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("%d: %w", id, repository.ErrProductNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) Update(ctx context.Context, tx pgx.Tx, id int64, in *domain.UpdateProductInput, now time.Time) (*domain.Product, error) {
	p, err := m.GetByID(ctx, tx, id)
	if err != nil || in.Empty() {
		return p, err
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	p.UpdatedAt = now
	m.products[id] = p
	return p, nil
}

type emitted struct {
	event   string
	key     string
	payload any
}

type recEmitter struct {
	events []emitted
}

func (r *recEmitter) Emit(_ context.Context, _ pgx.Tx, event, _, aggregateID string, payload any) error {
	r.events = append(r.events, emitted{event: event, key: aggregateID, payload: payload})
	return nil
}

func newService() (*productService, *memProducts, *recEmitter) {
	repo := &memProducts{products: map[int64]*domain.Product{}}
	emitter := &recEmitter{}
	svc := NewProductService(repo, emitter, fakeStarter{}, zap.NewNop()).(*productService)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return svc, repo, emitter
}

func TestCreate_AnnouncesProduct(t *testing.T) {
	svc, _, emitter := newService()

	product, err := svc.Create(context.Background(), domain.CreateProductInput{
		Name:     "Mug",
		Price:    decimal.RequireFromString("4.50"),
		Category: "Kitchen",
	})
	require.NoError(t, err)

	require.Len(t, emitter.events, 2)
	assert.Equal(t, generalDomain.EventProductAdded, emitter.events[0].event)
	assert.Equal(t, generalDomain.ProductAdded{ProductID: product.ID}, emitter.events[0].payload)
	assert.Equal(t, generalDomain.EventReplicateDB, emitter.events[1].event)
	assert.Equal(t, "1", emitter.events[1].key)

	_, err = svc.Create(context.Background(), domain.CreateProductInput{Name: "Mug", Category: "Kitchen"})
	assert.ErrorIs(t, err, repository.ErrProductExists)
	assert.Len(t, emitter.events, 2)
}

func TestUpdate_ReplicatesChangedProduct(t *testing.T) {
	svc, _, emitter := newService()
	ctx := context.Background()

	product, err := svc.Create(ctx, domain.CreateProductInput{Name: "Mug", Price: decimal.NewFromInt(4), Category: "Kitchen"})
	require.NoError(t, err)
	emitter.events = nil

	price := decimal.RequireFromString("5.25")
	updated, err := svc.Update(ctx, product.ID, domain.UpdateProductInput{Price: &price})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price))
	assert.Equal(t, "Mug", updated.Name)

	require.Len(t, emitter.events, 1)
	doc := emitter.events[0].payload.(domain.ProductDocument)
	assert.True(t, doc.Price.Equal(price))

	// an empty patch changes nothing and replicates nothing
	_, err = svc.Update(ctx, product.ID, domain.UpdateProductInput{})
	require.NoError(t, err)
	assert.Len(t, emitter.events, 1)

	_, err = svc.Update(ctx, 99, domain.UpdateProductInput{Price: &price})
	assert.ErrorIs(t, err, generalDomain.ErrNotFound)

	negative := decimal.NewFromInt(-1)
	_, err = svc.Update(ctx, product.ID, domain.UpdateProductInput{Price: &negative})
	assert.ErrorIs(t, err, generalDomain.ErrValidation)
}

type stubStore struct {
	field, value string
}

func (s *stubStore) Get(_ context.Context, id string) (querystore.Document, error) {
	return querystore.Document{"id": []byte(id)}, nil
}

func (s *stubStore) List(context.Context, int, int) ([]querystore.Document, int64, error) {
	return []querystore.Document{{}}, 1, nil
}

func (s *stubStore) ListBy(_ context.Context, field, value string, _, _ int) ([]querystore.Document, int64, error) {
	s.field, s.value = field, value
	return []querystore.Document{}, 0, nil
}

func TestProductQueryService_List(t *testing.T) {
	store := &stubStore{}
	queries := NewProductQueryService(store)

	page, err := queries.List(context.Background(), "", 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, int64(1), page.Total)

	_, err = queries.List(context.Background(), "Kitchen", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, IndexCategory, store.field)
	assert.Equal(t, "Kitchen", store.value)
}
