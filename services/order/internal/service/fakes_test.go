package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/services/order/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/order/internal/repository"
	"github.com/jackc/pgx/v5"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return pgx.ErrTxClosed }

type fakeStarter struct{}

func (fakeStarter) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type memOrders struct {
	nextID int64
	orders map[int64]domain.Order
	locks  int
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[int64]domain.Order{}}
}

func (m *memOrders) Create(_ context.Context, _ pgx.Tx, order *domain.Order) error {
	m.nextID++
	order.ID = m.nextID
	m.orders[order.ID] = *order
	return nil
}

func (m *memOrders) Get(_ context.Context, _ pgx.Tx, id int64) (*domain.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, repository.ErrOrderNotFound)
	}
	return &order, nil
}

func (m *memOrders) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	m.locks++
	return m.Get(ctx, tx, id)
}

func (m *memOrders) Update(_ context.Context, _ pgx.Tx, order *domain.Order) error {
	m.orders[order.ID] = *order
	return nil
}

type memBuyers struct {
	nextID   int64
	nextPMID int64
	buyers   map[int64]*domain.Buyer
}

func newMemBuyers() *memBuyers {
	return &memBuyers{buyers: map[int64]*domain.Buyer{}}
}

func (m *memBuyers) FindByUserID(_ context.Context, _ pgx.Tx, userID string) (*domain.Buyer, error) {
	for _, b := range m.buyers {
		if b.UserID == userID {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrBuyerNotFound
}

func (m *memBuyers) GetByID(_ context.Context, _ pgx.Tx, id int64) (*domain.Buyer, error) {
	b, ok := m.buyers[id]
	if !ok {
		return nil, repository.ErrBuyerNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *memBuyers) Upsert(_ context.Context, _ pgx.Tx, buyer *domain.Buyer) error {
	m.nextID++
	buyer.ID = m.nextID
	copied := *buyer
	m.buyers[buyer.ID] = &copied
	return nil
}

func (m *memBuyers) AddPaymentMethod(_ context.Context, _ pgx.Tx, pm *domain.PaymentMethod) error {
	m.nextPMID++
	pm.ID = m.nextPMID
	b := m.buyers[pm.BuyerID]
	b.PaymentMethods = append(b.PaymentMethods, *pm)
	return nil
}

type stepKey struct {
	orderID int64
	step    domain.SagaStep
}

type memSaga struct {
	steps map[stepKey]domain.SagaCheckpoint
}

func newMemSaga() *memSaga {
	return &memSaga{steps: map[stepKey]domain.SagaCheckpoint{}}
}

func (m *memSaga) Start(_ context.Context, _ pgx.Tx, orderID int64, step domain.SagaStep, deadline time.Time) error {
	key := stepKey{orderID, step}
	if _, ok := m.steps[key]; ok {
		return nil
	}
	m.steps[key] = domain.SagaCheckpoint{OrderID: orderID, Step: step, Status: domain.StepPending, Deadline: deadline}
	return nil
}

func (m *memSaga) Finish(_ context.Context, _ pgx.Tx, orderID int64, step domain.SagaStep, status domain.StepStatus, detail string) error {
	key := stepKey{orderID, step}
	cp, ok := m.steps[key]
	if !ok || cp.Status != domain.StepPending {
		return nil
	}
	cp.Status = status
	cp.Detail = detail
	m.steps[key] = cp
	return nil
}

func (m *memSaga) Extend(_ context.Context, _ pgx.Tx, orderID int64, step domain.SagaStep, deadline time.Time) (int, error) {
	key := stepKey{orderID, step}
	cp := m.steps[key]
	cp.Deadline = deadline
	cp.Attempts++
	m.steps[key] = cp
	return cp.Attempts, nil
}

func (m *memSaga) ListOverdue(_ context.Context, _ pgx.Tx, now time.Time, limit int) ([]domain.SagaCheckpoint, error) {
	var out []domain.SagaCheckpoint
	for _, cp := range m.steps {
		if cp.Overdue(now) {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSaga) ListByOrder(_ context.Context, _ pgx.Tx, orderID int64) ([]domain.SagaCheckpoint, error) {
	var out []domain.SagaCheckpoint
	for _, cp := range m.steps {
		if cp.OrderID == orderID {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func (m *memSaga) status(orderID int64, step domain.SagaStep) domain.StepStatus {
	return m.steps[stepKey{orderID, step}].Status
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

func (r *recEmitter) names() []string {
	var out []string
	for _, e := range r.events {
		if e.event != generalDomain.EventReplicateDB {
			out = append(out, e.event)
		}
	}
	return out
}

func (r *recEmitter) last(event string) (emitted, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == event {
			return r.events[i], true
		}
	}
	return emitted{}, false
}

func (r *recEmitter) reset() { r.events = nil }
