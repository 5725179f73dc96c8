package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/basket/internal/domain"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type BasketService interface {
	Get(ctx context.Context, buyerID string) (*generalDomain.Basket, error)
	Update(ctx context.Context, buyerID string, input domain.UpdateBasketInput) (*generalDomain.Basket, error)
	Delete(ctx context.Context, buyerID string) error
	Checkout(ctx context.Context, buyerID string, input domain.CheckoutInput) error
}

type BasketHandler struct {
	service BasketService
	timeout time.Duration
	logger  *zap.Logger
}

func NewBasketHandler(service BasketService, timeout time.Duration, logger *zap.Logger) *BasketHandler {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	return &BasketHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *BasketHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	buyerID, err := pathBuyerID(c)
	if err != nil {
		return err
	}

	basket, err := h.service.Get(ctx, buyerID)
	if err != nil {
		return err
	}

	return c.JSON(basket)
}

func (h *BasketHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	buyerID, err := pathBuyerID(c)
	if err != nil {
		return err
	}

	input := new(domain.UpdateBasketInput)
	if err := c.BodyParser(input); err != nil {
		return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}

	basket, err := h.service.Update(ctx, buyerID, *input)
	if err != nil {
		h.logger.Warn("update basket failed", zap.String("buyer_id", buyerID), zap.Error(err))
		return err
	}

	return c.JSON(basket)
}

func (h *BasketHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	buyerID, err := pathBuyerID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(ctx, buyerID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *BasketHandler) Checkout(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	buyerID, err := pathBuyerID(c)
	if err != nil {
		return err
	}

	input := new(domain.CheckoutInput)
	if err := c.BodyParser(input); err != nil {
		return fmt.Errorf("%w: error parsing body", generalDomain.ErrValidation)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}

	if err := h.service.Checkout(ctx, buyerID, *input); err != nil {
		h.logger.Warn("checkout failed", zap.String("buyer_id", buyerID), zap.Error(err))
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"buyer_id": buyerID,
		"status":   "submitted",
	})
}

func pathBuyerID(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("buyerId"))
	if id == "" || len(id) > 64 {
		return "", fmt.Errorf("%w: buyer id %q is invalid", generalDomain.ErrValidation, id)
	}

	return id, nil
}
