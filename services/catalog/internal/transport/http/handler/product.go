package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ProductCommands interface {
	Create(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error)
	Update(ctx context.Context, id int64, input domain.UpdateProductInput) (*domain.Product, error)
}

type ProductQueries interface {
	Get(ctx context.Context, id int64) (querystore.Document, error)
	List(ctx context.Context, category string, page, limit int) (*service.Page, error)
}

type ProductHandler struct {
	commands ProductCommands
	queries  ProductQueries
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProductHandler(commands ProductCommands, queries ProductQueries, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	return &ProductHandler{
		commands: commands,
		queries:  queries,
		timeout:  timeout,
		logger:   logger,
	}
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(domain.CreateProductInput)
	if err := c.BodyParser(input); err != nil {
		return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}

	product, err := h.commands.Create(ctx, *input)
	if err != nil {
		h.logger.Warn("create product failed", zap.Error(err))
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(domain.NewProductDocument(product))
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := productID(c)
	if err != nil {
		return err
	}

	input := new(domain.UpdateProductInput)
	if err := c.BodyParser(input); err != nil {
		return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}

	product, err := h.commands.Update(ctx, id, *input)
	if err != nil {
		h.logger.Warn("update product failed", zap.Int64("product_id", id), zap.Error(err))
		return err
	}

	return c.JSON(domain.NewProductDocument(product))
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := productID(c)
	if err != nil {
		return err
	}

	doc, err := h.queries.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	page, err := h.queries.List(ctx, c.Query("category"), c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}

	return c.JSON(page)
}

func productID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: product id %q is invalid", generalDomain.ErrValidation, raw)
	}

	return id, nil
}
