package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/order/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/order/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type OrderCommands interface {
	Ship(ctx context.Context, orderID int64) error
	Cancel(ctx context.Context, orderID int64, description string) error
	SagaLog(ctx context.Context, orderID int64) ([]domain.SagaCheckpoint, error)
}

type OrderQueries interface {
	Get(ctx context.Context, orderID int64) (querystore.Document, error)
	List(ctx context.Context, filter service.Filter, page, limit int) (*service.Page, error)
}

type OrderHandler struct {
	commands OrderCommands
	queries  OrderQueries
	timeout  time.Duration
	logger   *zap.Logger
}

func NewOrderHandler(commands OrderCommands, queries OrderQueries, timeout time.Duration, logger *zap.Logger) *OrderHandler {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	return &OrderHandler{
		commands: commands,
		queries:  queries,
		timeout:  timeout,
		logger:   logger,
	}
}

type CancelOrderInput struct {
	Description string `json:"description" validate:"max=500"`
}

func (h *OrderHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := orderID(c)
	if err != nil {
		return err
	}

	doc, err := h.queries.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	filter := service.Filter{
		BuyerID:    c.Query("buyer_id"),
		CustomerID: c.Query("customer_id"),
	}

	page, err := h.queries.List(ctx, filter, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}

	return c.JSON(page)
}

func (h *OrderHandler) Ship(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := orderID(c)
	if err != nil {
		return err
	}

	if err := h.commands.Ship(ctx, id); err != nil {
		mylogger.Warn(ctx, h.logger, "ship order failed", zap.Int64("order_id", id), zap.Error(err))
		return err
	}

	mylogger.Info(ctx, h.logger, "order shipped", zap.Int64("order_id", id))

	return c.JSON(fiber.Map{"order_id": id, "status": "shipped"})
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := orderID(c)
	if err != nil {
		return err
	}

	input := new(CancelOrderInput)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(input); err != nil {
			return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
		}
	}

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}

	if err := h.commands.Cancel(ctx, id, input.Description); err != nil {
		mylogger.Warn(ctx, h.logger, "cancel order failed", zap.Int64("order_id", id), zap.Error(err))
		return err
	}

	mylogger.Info(ctx, h.logger, "order cancelled", zap.Int64("order_id", id))

	return c.JSON(fiber.Map{"order_id": id, "status": "cancelled"})
}

func (h *OrderHandler) SagaLog(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := orderID(c)
	if err != nil {
		return err
	}

	steps, err := h.commands.SagaLog(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"order_id": id, "steps": steps})
}

func orderID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: order id %q is invalid", generalDomain.ErrValidation, raw)
	}

	return id, nil
}
