package handler

import (
	"context"
	"fmt"
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

type SiteCommands interface {
	Create(ctx context.Context, in domain.SiteInput) (*domain.Site, error)
	Update(ctx context.Context, siteID int64, update domain.SiteUpdate) (*domain.Site, error)
}

type SiteQueries interface {
	Get(ctx context.Context, siteID int64) (querystore.Document, error)
	List(ctx context.Context, page, limit int) (*service.Page, error)
}

type SiteHandler struct {
	commands SiteCommands
	queries  SiteQueries
	timeout  time.Duration
	logger   *zap.Logger
}

func NewSiteHandler(commands SiteCommands, queries SiteQueries, timeout time.Duration, logger *zap.Logger) *SiteHandler {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	return &SiteHandler{
		commands: commands,
		queries:  queries,
		timeout:  timeout,
		logger:   logger,
	}
}

func (h *SiteHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(domain.SiteInput)
	if err := c.BodyParser(input); err != nil {
		return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}

	site, err := h.commands.Create(ctx, *input)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "create site failed", zap.Error(err))
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(domain.NewSiteDocument(site))
}

func (h *SiteHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	update := new(domain.SiteUpdate)
	if err := c.BodyParser(update); err != nil {
		return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
	}

	if err := utils.ValidateStruct(update); err != nil {
		return err
	}

	site, err := h.commands.Update(ctx, id, *update)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "update site failed", zap.Int64("site_id", id), zap.Error(err))
		return err
	}

	return c.JSON(domain.NewSiteDocument(site))
}

func (h *SiteHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	doc, err := h.queries.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

func (h *SiteHandler) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	page, err := h.queries.List(ctx, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}

	return c.JSON(page)
}
