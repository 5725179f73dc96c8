package service

import (
	"context"
	"errors"
	"fmt"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/basket/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/basket/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, event, key string, payload any) error
}

type BasketService interface {
	Get(ctx context.Context, buyerID string) (*generalDomain.Basket, error)
	Update(ctx context.Context, buyerID string, input domain.UpdateBasketInput) (*generalDomain.Basket, error)
	Delete(ctx context.Context, buyerID string) error
	Checkout(ctx context.Context, buyerID string, input domain.CheckoutInput) error
}

type basketService struct {
	repo      repository.BasketRepository
	publisher Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	newID     func() string
}

func NewBasketService(repo repository.BasketRepository, publisher Publisher, logger *zap.Logger) BasketService {
	return &basketService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("service/basket_service"),
		newID:     uuid.NewString,
	}
}

// Get returns an empty basket for buyers that have none stored.
func (s *basketService) Get(ctx context.Context, buyerID string) (*generalDomain.Basket, error) {
	ctx, span := s.tracer.Start(ctx, "BasketService.Get")
	defer span.End()

	basket, err := s.repo.Get(ctx, buyerID)
	if errors.Is(err, repository.ErrBasketNotFound) {
		return domain.EmptyBasket(buyerID), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return basket, nil
}

func (s *basketService) Update(ctx context.Context, buyerID string, input domain.UpdateBasketInput) (*generalDomain.Basket, error) {
	ctx, span := s.tracer.Start(ctx, "BasketService.Update")
	defer span.End()

	basket, err := domain.NewBasket(buyerID, input, s.newID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("items", len(basket.Items)))

	if err := s.repo.Save(ctx, basket); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return basket, nil
}

func (s *basketService) Delete(ctx context.Context, buyerID string) error {
	ctx, span := s.tracer.Start(ctx, "BasketService.Delete")
	defer span.End()

	return s.repo.Delete(ctx, buyerID)
}

// Checkout publishes the basket snapshot and clears the basket. The basket is
// put back when the event cannot be published.
func (s *basketService) Checkout(ctx context.Context, buyerID string, input domain.CheckoutInput) error {
	ctx, span := s.tracer.Start(ctx, "BasketService.Checkout")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	basket, err := s.repo.Take(ctx, buyerID)
	if err != nil {
		return err
	}

	event, err := domain.NewCheckoutAccepted(basket, input)
	if err != nil {
		return errors.Join(err, s.repo.Restore(ctx, basket))
	}

	if err := s.publisher.Publish(ctx, generalDomain.EventUserCheckoutAccepted, buyerID, event); err != nil {
		span.RecordError(err)

		if restoreErr := s.repo.Restore(context.WithoutCancel(ctx), basket); restoreErr != nil {
			mylogger.Error(ctx, s.logger, "Failed to restore basket after checkout failure",
				zap.String("buyer_id", buyerID),
				zap.Error(restoreErr),
			)
		}

		return fmt.Errorf("checkout basket %s: %w", buyerID, err)
	}

	mylogger.Info(ctx, s.logger, "Basket checked out",
		zap.String("buyer_id", buyerID),
		zap.Int("items", len(basket.Items)),
		zap.String("total", domain.Total(basket).String()),
	)

	return nil
}
