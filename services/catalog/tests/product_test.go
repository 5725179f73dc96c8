package tests

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/domain"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) createInput(name, category string) domain.CreateProductInput {
	return domain.CreateProductInput{
		Name:        name,
		Description: "test product",
		Price:       decimal.RequireFromString("19.99"),
		ImageUrl:    "https://img.example.com/" + name + ".png",
		Category:    category,
	}
}

func (s *IntegrationTestSuite) TestCreate_WritesProductAndOutbox() {
	product, err := s.ProductService.Create(s.Ctx, s.createInput("kettle", "kitchen"))
	s.Require().NoError(err)
	s.NotZero(product.ID)

	rows := s.outbox()
	s.Require().Len(rows, 2)

	s.Equal(generalDomain.EventProductAdded, rows[0].event)
	s.Equal(generalDomain.SourceProducts, rows[0].source)

	var added generalDomain.ProductAdded
	s.Require().NoError(json.Unmarshal(rows[0].env.Payload, &added))
	s.Equal(product.ID, added.ProductID)

	s.Equal(generalDomain.EventReplicateDB, rows[1].event)
	s.Equal(rows[0].key, rows[1].key)
}

func (s *IntegrationTestSuite) TestCreate_DuplicateNameConflicts() {
	_, err := s.ProductService.Create(s.Ctx, s.createInput("toaster", "kitchen"))
	s.Require().NoError(err)

	_, err = s.ProductService.Create(s.Ctx, s.createInput("toaster", "kitchen"))
	s.Require().Error(err)
	s.True(errors.Is(err, generalDomain.ErrInvalidTransition))

	s.Len(s.outbox(), 2)
}

func (s *IntegrationTestSuite) TestCreate_ContextTimeout() {
	ctx, cancel := context.WithTimeout(s.Ctx, time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := s.ProductService.Create(ctx, s.createInput("blender", "kitchen"))
	s.Require().Error(err)

	var count int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM products`).Scan(&count))
	s.Zero(count)
}

func (s *IntegrationTestSuite) TestUpdate_ChangesSetFieldsOnly() {
	product, err := s.ProductService.Create(s.Ctx, s.createInput("lamp", "home"))
	s.Require().NoError(err)

	price := decimal.RequireFromString("24.50")
	updated, err := s.ProductService.Update(s.Ctx, product.ID, domain.UpdateProductInput{Price: &price})
	s.Require().NoError(err)

	s.True(price.Equal(updated.Price))
	s.Equal("lamp", updated.Name)
	s.Equal("home", updated.Category)
	s.Len(s.outbox(), 3)

	_, err = s.ProductService.Update(s.Ctx, product.ID+100, domain.UpdateProductInput{Price: &price})
	s.True(errors.Is(err, generalDomain.ErrNotFound))
}

func (s *IntegrationTestSuite) TestReadModel_ListsByCategory() {
	lamp, err := s.ProductService.Create(s.Ctx, s.createInput("desk lamp", "home"))
	s.Require().NoError(err)
	_, err = s.ProductService.Create(s.Ctx, s.createInput("pan", "kitchen"))
	s.Require().NoError(err)

	category := "office"
	_, err = s.ProductService.Update(s.Ctx, lamp.ID, domain.UpdateProductInput{Category: &category})
	s.Require().NoError(err)

	s.project()

	doc, err := s.Queries.Get(s.Ctx, lamp.ID)
	s.Require().NoError(err)
	got, _ := doc.String("category")
	s.Equal("office", got)

	page, err := s.Queries.List(s.Ctx, "office", 1, 10)
	s.Require().NoError(err)
	s.EqualValues(1, page.Total)

	page, err = s.Queries.List(s.Ctx, "home", 1, 10)
	s.Require().NoError(err)
	s.Zero(page.Total)

	page, err = s.Queries.List(s.Ctx, "", 0, 0)
	s.Require().NoError(err)
	s.EqualValues(2, page.Total)
	s.Equal(10, page.Limit)
}
