package tests

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/services/basket/internal/domain"
	"github.com/shopspring/decimal"
)

func items() domain.UpdateBasketInput {
	return domain.UpdateBasketInput{Items: []generalDomain.BasketItem{
		{ProductID: 3, ProductName: "kettle", UnitPrice: decimal.RequireFromString("19.99"), OldUnitPrice: decimal.RequireFromString("24.99"), Quantity: 2},
		{ProductID: 5, ProductName: "mug", UnitPrice: decimal.RequireFromString("4.50"), Quantity: 4},
	}}
}

func checkout() domain.CheckoutInput {
	return domain.CheckoutInput{
		UserName:    "Ann",
		Address:     generalDomain.Address{Street1: "1 Main", City: "Springfield", ZipCode: "11111", Country: "US"},
		CardDetails: generalDomain.CardDetails{CardNumber: "4111111111111111", CardholderName: "Ann", Expiration: "12/30", CardTypeID: 1},
	}
}

func (s *IntegrationTestSuite) TestUpdateGetDelete() {
	saved, err := s.BasketService.Update(s.Ctx, "42", items())
	s.Require().NoError(err)
	s.Require().Len(saved.Items, 2)
	s.NotEmpty(saved.Items[0].ID)
	s.NotEqual(saved.Items[0].ID, saved.Items[1].ID)

	got, err := s.BasketService.Get(s.Ctx, "42")
	s.Require().NoError(err)
	s.Equal(saved.Items[0].ID, got.Items[0].ID)
	s.True(decimal.RequireFromString("24.99").Equal(got.Items[0].OldUnitPrice))

	ttl, err := s.Redis.TTL(s.Ctx, "basket:42").Result()
	s.Require().NoError(err)
	s.Greater(ttl.Seconds(), 0.0)

	s.Require().NoError(s.BasketService.Delete(s.Ctx, "42"))

	got, err = s.BasketService.Get(s.Ctx, "42")
	s.Require().NoError(err)
	s.Empty(got.Items)
}

func (s *IntegrationTestSuite) TestCheckout_PublishesEnvelopeAndClears() {
	_, err := s.BasketService.Update(s.Ctx, "42", items())
	s.Require().NoError(err)

	s.Require().NoError(s.BasketService.Checkout(s.Ctx, "42", checkout()))

	sent := s.producer.sent()
	s.Require().Len(sent, 1)
	s.Equal(generalDomain.SourceBasket, sent[0].Topic)
	s.Equal("42", sent[0].Key)

	env, err := generalDomain.DecodeEnvelope(sent[0].Value)
	s.Require().NoError(err)
	s.Equal(generalDomain.EventUserCheckoutAccepted, env.Event)

	var event generalDomain.UserCheckoutAccepted
	s.Require().NoError(json.Unmarshal(env.Payload, &event))
	s.Equal("42", event.UserID)
	s.Equal("Springfield", event.City)
	s.Len(event.Basket.Items, 2)

	exists, err := s.Redis.Exists(s.Ctx, "basket:42").Result()
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *IntegrationTestSuite) TestCheckout_ConcurrentRequestsPublishOnce() {
	_, err := s.BasketService.Update(s.Ctx, "42", items())
	s.Require().NoError(err)

	var (
		wg       sync.WaitGroup
		ok       atomic.Int32
		notFound atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.BasketService.Checkout(s.Ctx, "42", checkout())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, generalDomain.ErrNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(1, ok.Load())
	s.EqualValues(4, notFound.Load())
	s.Len(s.producer.sent(), 1)
}

func (s *IntegrationTestSuite) TestCheckout_PublishFailureKeepsBasket() {
	_, err := s.BasketService.Update(s.Ctx, "42", items())
	s.Require().NoError(err)

	s.producer.err = errors.New("no brokers")
	s.Require().Error(s.BasketService.Checkout(s.Ctx, "42", checkout()))

	got, err := s.BasketService.Get(s.Ctx, "42")
	s.Require().NoError(err)
	s.Len(got.Items, 2)
}
