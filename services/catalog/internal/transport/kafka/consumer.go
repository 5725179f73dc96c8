package kafka

import (
	"github.com/bsmi021/eahub-shopco/pkg/bus"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/replication"
)

var ProductProjection = replication.Spec{
	Keys:     []string{"id"},
	Required: []string{"id", "name", "price", "category"},
}

// RegisterQueries feeds the catalog read model from command_products.
func RegisterQueries(r *bus.Router, projector *replication.Projector) {
	projector.Register(r, generalDomain.SourceProducts)
}
