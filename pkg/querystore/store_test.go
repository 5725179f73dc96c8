package querystore

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/testsuite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	testsuite.BaseSuite
	store *Store
}

func (s *StoreSuite) SetupSuite() {
	s.SetupRedis()
}

func (s *StoreSuite) TearDownSuite() {
	s.TearDownInfrastructure()
}

func (s *StoreSuite) SetupTest() {
	s.FlushRedis()
	s.store = New(s.Redis, "orders", "buyer_id")
}

func (s *StoreSuite) put(id string, fields Document) {
	err := s.store.Apply(s.Ctx, id, func(Document) (Document, error) {
		return fields, nil
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) TestGet_NotFound() {
	_, err := s.store.Get(s.Ctx, "404")
	s.Require().True(errors.Is(err, domain.ErrNotFound))
}

func (s *StoreSuite) TestApply_MergesFields() {
	s.put("1", Document{
		"id":              json.RawMessage(`1`),
		"buyer_id":        json.RawMessage(`"B1"`),
		"order_status_id": json.RawMessage(`1`),
		"description":     json.RawMessage(`""`),
	})
	s.put("1", Document{
		"id":              json.RawMessage(`1`),
		"order_status_id": json.RawMessage(`2`),
	})

	doc, err := s.store.Get(s.Ctx, "1")
	s.Require().NoError(err)

	s.JSONEq(`2`, string(doc["order_status_id"]))
	s.JSONEq(`"B1"`, string(doc["buyer_id"]))
	s.Contains(doc, "description")
}

func (s *StoreSuite) TestApply_PassesCurrentDocument() {
	s.put("1", Document{"id": json.RawMessage(`1`), "version": json.RawMessage(`3`)})

	var seen Document
	err := s.store.Apply(s.Ctx, "1", func(current Document) (Document, error) {
		seen = current
		return nil, nil
	})
	s.Require().NoError(err)
	s.JSONEq(`3`, string(seen["version"]))

	err = s.store.Apply(s.Ctx, "2", func(current Document) (Document, error) {
		s.Nil(current)
		return nil, nil
	})
	s.Require().NoError(err)

	_, err = s.store.Get(s.Ctx, "2")
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestListBy_FollowsIndexChanges() {
	s.put("1", Document{"id": json.RawMessage(`1`), "buyer_id": json.RawMessage(`"B1"`)})
	s.put("2", Document{"id": json.RawMessage(`2`), "buyer_id": json.RawMessage(`"B1"`)})
	s.put("3", Document{"id": json.RawMessage(`3`), "buyer_id": json.RawMessage(`"B2"`)})

	docs, total, err := s.store.ListBy(s.Ctx, "buyer_id", "B1", 1, 10)
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(docs, 2)

	s.put("2", Document{"buyer_id": json.RawMessage(`"B2"`)})

	docs, total, err = s.store.ListBy(s.Ctx, "buyer_id", "B1", 1, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(docs, 1)
	s.JSONEq(`1`, string(docs[0]["id"]))
}

func (s *StoreSuite) TestList_Pages() {
	for _, id := range []string{"3", "1", "2"} {
		s.put(id, Document{"id": json.RawMessage(id)})
	}

	docs, total, err := s.store.List(s.Ctx, 2, 2)
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(docs, 1)
	s.JSONEq(`3`, string(docs[0]["id"]))
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func TestNormalize(t *testing.T) {
	page, limit := Normalize(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, limit)

	_, limit = Normalize(3, 1000)
	assert.Equal(t, 100, limit)
}
