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
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type InventoryCommands interface {
	AddStock(ctx context.Context, productID, siteID int64, quantity int) (*service.StockChange, error)
	RemoveStock(ctx context.Context, productID, siteID int64, quantity int) (*service.StockChange, error)
	CheckAvailability(ctx context.Context, productID int64, units int) (domain.Availability, error)
	History(ctx context.Context, productID, siteID int64) ([]domain.InventoryItem, error)
}

type InventoryQueries interface {
	ByProduct(ctx context.Context, productID int64) ([]querystore.Document, error)
	BySite(ctx context.Context, siteID int64, page, limit int) (*service.Page, error)
}

type InventoryHandler struct {
	commands InventoryCommands
	queries  InventoryQueries
	timeout  time.Duration
	logger   *zap.Logger
}

func NewInventoryHandler(commands InventoryCommands, queries InventoryQueries, timeout time.Duration, logger *zap.Logger) *InventoryHandler {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	return &InventoryHandler{
		commands: commands,
		queries:  queries,
		timeout:  timeout,
		logger:   logger,
	}
}

type StockInput struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type StockChangeResponse struct {
	Changed int                      `json:"changed"`
	Item    domain.InventoryDocument `json:"item"`
}

func (h *InventoryHandler) AddStock(c *fiber.Ctx) error {
	return h.changeStock(c, "add", h.commands.AddStock)
}

func (h *InventoryHandler) RemoveStock(c *fiber.Ctx) error {
	return h.changeStock(c, "remove", h.commands.RemoveStock)
}

func (h *InventoryHandler) changeStock(
	c *fiber.Ctx,
	action string,
	apply func(ctx context.Context, productID, siteID int64, quantity int) (*service.StockChange, error),
) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, err := pathID(c, "productId")
	if err != nil {
		return err
	}

	siteID, err := pathID(c, "siteId")
	if err != nil {
		return err
	}

	input := new(StockInput)
	if err := c.BodyParser(input); err != nil {
		return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}

	change, err := apply(ctx, productID, siteID, input.Quantity)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "stock "+action+" failed",
			zap.Int64("product_id", productID),
			zap.Int64("site_id", siteID),
			zap.Error(err),
		)
		return err
	}

	return c.JSON(StockChangeResponse{
		Changed: change.Changed,
		Item:    domain.NewInventoryDocument(change.Item),
	})
}

func (h *InventoryHandler) ByProduct(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, err := pathID(c, "productId")
	if err != nil {
		return err
	}

	docs, err := h.queries.ByProduct(ctx, productID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"product_id": productID, "items": docs})
}

func (h *InventoryHandler) BySite(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	siteID, err := pathID(c, "siteId")
	if err != nil {
		return err
	}

	page, err := h.queries.BySite(ctx, siteID, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}

	return c.JSON(page)
}

func (h *InventoryHandler) Availability(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, err := pathID(c, "productId")
	if err != nil {
		return err
	}

	units := c.QueryInt("units", 1)
	if units <= 0 {
		return fmt.Errorf("%w: units must be positive", generalDomain.ErrValidation)
	}

	availability, err := h.commands.CheckAvailability(ctx, productID, units)
	if err != nil {
		return err
	}

	return c.JSON(availability)
}

func (h *InventoryHandler) History(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, err := pathID(c, "productId")
	if err != nil {
		return err
	}

	siteID, err := pathID(c, "siteId")
	if err != nil {
		return err
	}

	items, err := h.commands.History(ctx, productID, siteID)
	if err != nil {
		return err
	}

	versions := make([]domain.InventoryDocument, 0, len(items))
	for i := range items {
		versions = append(versions, domain.NewInventoryDocument(&items[i]))
	}

	return c.JSON(fiber.Map{"product_id": productID, "site_id": siteID, "versions": versions})
}

func pathID(c *fiber.Ctx, param string) (int64, error) {
	raw := c.Params(param)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s %q is invalid", generalDomain.ErrValidation, param, raw)
	}

	return id, nil
}
