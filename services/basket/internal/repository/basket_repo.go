package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrBasketNotFound = fmt.Errorf("basket %w", generalDomain.ErrNotFound)

type BasketRepository interface {
	Get(ctx context.Context, buyerID string) (*generalDomain.Basket, error)
	Save(ctx context.Context, basket *generalDomain.Basket) error
	Delete(ctx context.Context, buyerID string) error
	// Take removes the basket and returns what was stored, so two concurrent
	// checkouts cannot both see it.
	Take(ctx context.Context, buyerID string) (*generalDomain.Basket, error)
	// Restore puts a taken basket back unless the buyer already started a new one.
	Restore(ctx context.Context, basket *generalDomain.Basket) error
}

type basketRepo struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	tracer trace.Tracer
}

func NewBasketRepository(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) BasketRepository {
	return &basketRepo{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		tracer: otel.Tracer("basket_repository"),
	}
}

func key(buyerID string) string {
	return fmt.Sprintf("basket:%s", buyerID)
}

func (r *basketRepo) Get(ctx context.Context, buyerID string) (*generalDomain.Basket, error) {
	ctx, span := r.tracer.Start(ctx, "BasketRepository.Get")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	val, err := r.rdb.Get(ctx, key(buyerID)).Bytes()
	return r.decode(ctx, span, buyerID, val, err)
}

func (r *basketRepo) Save(ctx context.Context, basket *generalDomain.Basket) error {
	ctx, span := r.tracer.Start(ctx, "BasketRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("buyer_id", basket.BuyerID),
		attribute.Int("items", len(basket.Items)),
	)

	data, err := json.Marshal(basket)
	if err != nil {
		return fmt.Errorf("marshal basket %s: %w", basket.BuyerID, err)
	}

	if err := r.rdb.Set(ctx, key(basket.BuyerID), data, r.ttl).Err(); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to save basket",
			zap.String("buyer_id", basket.BuyerID),
			zap.Error(err),
		)
		return fmt.Errorf("save basket %s: %w", basket.BuyerID, err)
	}

	return nil
}

func (r *basketRepo) Delete(ctx context.Context, buyerID string) error {
	ctx, span := r.tracer.Start(ctx, "BasketRepository.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	if err := r.rdb.Del(ctx, key(buyerID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete basket %s: %w", buyerID, err)
	}

	return nil
}

func (r *basketRepo) Take(ctx context.Context, buyerID string) (*generalDomain.Basket, error) {
	ctx, span := r.tracer.Start(ctx, "BasketRepository.Take")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	val, err := r.rdb.GetDel(ctx, key(buyerID)).Bytes()
	return r.decode(ctx, span, buyerID, val, err)
}

func (r *basketRepo) Restore(ctx context.Context, basket *generalDomain.Basket) error {
	ctx, span := r.tracer.Start(ctx, "BasketRepository.Restore")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", basket.BuyerID))

	data, err := json.Marshal(basket)
	if err != nil {
		return fmt.Errorf("marshal basket %s: %w", basket.BuyerID, err)
	}

	restored, err := r.rdb.SetNX(ctx, key(basket.BuyerID), data, r.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("restore basket %s: %w", basket.BuyerID, err)
	}

	if !restored {
		mylogger.Warn(ctx, r.logger, "Basket replaced before restore, keeping the new one",
			zap.String("buyer_id", basket.BuyerID),
		)
	}

	return nil
}

func (r *basketRepo) decode(ctx context.Context, span trace.Span, buyerID string, val []byte, err error) (*generalDomain.Basket, error) {
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", buyerID, ErrBasketNotFound)
	}
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to read basket",
			zap.String("buyer_id", buyerID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("read basket %s: %w", buyerID, err)
	}

	var basket generalDomain.Basket
	if err := json.Unmarshal(val, &basket); err != nil {
		return nil, fmt.Errorf("decode basket %s: %w", buyerID, err)
	}

	return &basket, nil
}
