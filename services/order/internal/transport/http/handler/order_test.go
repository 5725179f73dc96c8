package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/pkg/server"
	"github.com/bsmi021/eahub-shopco/services/order/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/order/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCommands struct {
	shipErr     error
	cancelled   string
	cancelErr   error
	steps       []domain.SagaCheckpoint
	lastOrderID int64
}

func (f *fakeCommands) Ship(_ context.Context, id int64) error {
	f.lastOrderID = id
	return f.shipErr
}

func (f *fakeCommands) Cancel(_ context.Context, id int64, description string) error {
	f.lastOrderID = id
	f.cancelled = description
	return f.cancelErr
}

func (f *fakeCommands) SagaLog(_ context.Context, id int64) ([]domain.SagaCheckpoint, error) {
	return f.steps, nil
}

type fakeQueries struct {
	docs   map[int64]querystore.Document
	filter service.Filter
}

func (f *fakeQueries) Get(_ context.Context, id int64) (querystore.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, generalDomain.ErrNotFound)
	}
	return doc, nil
}

func (f *fakeQueries) List(_ context.Context, filter service.Filter, page, limit int) (*service.Page, error) {
	f.filter = filter
	return &service.Page{Items: []querystore.Document{}, Page: page, Limit: limit}, nil
}

func newTestApp(commands *fakeCommands, queries *fakeQueries) *fiber.App {
	app := server.NewHTTPApp("order-test", zap.NewNop())
	h := NewOrderHandler(commands, queries, 0, zap.NewNop())

	app.Get("/orders", h.List)
	app.Get("/orders/:id", h.FindByID)
	app.Get("/orders/:id/saga", h.SagaLog)
	app.Post("/orders/:id/ship", h.Ship)
	app.Post("/orders/:id/cancel", h.Cancel)

	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(raw)
}

func TestFindByID(t *testing.T) {
	queries := &fakeQueries{docs: map[int64]querystore.Document{
		7: {"id": json.RawMessage("7"), "order_status": json.RawMessage(`"paid"`)},
	}}
	app := newTestApp(&fakeCommands{}, queries)

	resp, body := do(t, app, http.MethodGet, "/orders/7", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":7,"order_status":"paid"}`, body)

	resp, _ = do(t, app, http.MethodGet, "/orders/8", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestList_PassesBuyerFilter(t *testing.T) {
	queries := &fakeQueries{}
	app := newTestApp(&fakeCommands{}, queries)

	resp, body := do(t, app, http.MethodGet, "/orders?buyer_id=3&page=2&limit=5", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", queries.filter.BuyerID)
	assert.JSONEq(t, `{"items":[],"total":0,"page":2,"limit":5}`, body)
}

func TestShip_MapsInvalidTransitionToConflict(t *testing.T) {
	commands := &fakeCommands{shipErr: fmt.Errorf("order 5: %w", generalDomain.ErrInvalidTransition)}
	app := newTestApp(commands, &fakeQueries{})

	resp, _ := do(t, app, http.MethodPost, "/orders/5/ship", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(5), commands.lastOrderID)
}

func TestCancel_PassesDescription(t *testing.T) {
	commands := &fakeCommands{}
	app := newTestApp(commands, &fakeQueries{})

	resp, body := do(t, app, http.MethodPost, "/orders/9/cancel", `{"description":"changed my mind"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "changed my mind", commands.cancelled)
	assert.JSONEq(t, `{"order_id":9,"status":"cancelled"}`, body)

	commands.cancelErr = fmt.Errorf("order 9: %w", generalDomain.ErrNotFound)
	resp, _ = do(t, app, http.MethodPost, "/orders/9/cancel", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSagaLog(t *testing.T) {
	commands := &fakeCommands{steps: []domain.SagaCheckpoint{
		{OrderID: 4, Step: domain.StepPayment, Status: domain.StepPending},
	}}
	app := newTestApp(commands, &fakeQueries{})

	resp, body := do(t, app, http.MethodGet, "/orders/4/saga", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"step":"payment"`)
}
