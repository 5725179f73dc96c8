package tests

import (
	"testing"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	outboxRepository "github.com/bsmi021/eahub-shopco/pkg/outbox/repository"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/pkg/replication"
	"github.com/bsmi021/eahub-shopco/pkg/testsuite"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/repository"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/service"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/transport/kafka"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	ProductService service.ProductService
	Queries        *service.ProductQueryService

	projector *replication.Projector
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupPostgres("../migrations")
	s.BaseSuite.SetupRedis()
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("products")
	s.BaseSuite.TruncateTable("outbox")
	s.BaseSuite.FlushRedis()

	logger := zap.NewNop()

	s.ProductService = service.NewProductService(
		repository.NewProductRepository(logger),
		bus.NewPublisher(generalDomain.SourceProducts, outboxRepository.NewOutboxRepository(logger)),
		s.DbPool,
		logger,
	)

	store := querystore.New(s.Redis, "products", service.IndexCategory)
	s.Queries = service.NewProductQueryService(store)
	s.projector = replication.NewProjector(store, kafka.ProductProjection, logger)
}

type outboxRow struct {
	event  string
	key    string
	source string
	env    *generalDomain.Envelope
}

func (s *IntegrationTestSuite) outbox() []outboxRow {
	rows, err := s.DbPool.Query(s.Ctx, `SELECT event_type, aggregate_id, topic, payload FROM outbox ORDER BY id`)
	s.Require().NoError(err)
	defer rows.Close()

	var out []outboxRow
	for rows.Next() {
		var (
			row outboxRow
			raw []byte
		)
		s.Require().NoError(rows.Scan(&row.event, &row.key, &row.source, &raw))

		row.env, err = generalDomain.DecodeEnvelope(raw)
		s.Require().NoError(err)
		out = append(out, row)
	}
	s.Require().NoError(rows.Err())

	return out
}

func (s *IntegrationTestSuite) project() {
	for _, row := range s.outbox() {
		if row.event == generalDomain.EventReplicateDB {
			s.Require().NoError(s.projector.Project(s.Ctx, row.env.Payload))
		}
	}
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration suite needs docker")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
