package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"go.uber.org/zap"
)

type Store interface {
	Apply(ctx context.Context, id string, fn func(current querystore.Document) (querystore.Document, error)) error
}

// Spec describes one projected entity.
type Spec struct {
	Keys     []string
	Required []string
	// Version, when set, names a numeric field; payloads older than the
	// stored document are ignored.
	Version string
}

// Projector applies replicate_db_event payloads to a query store collection.
type Projector struct {
	store  Store
	spec   Spec
	logger *zap.Logger
}

func NewProjector(store Store, spec Spec, logger *zap.Logger) *Projector {
	if len(spec.Keys) == 0 {
		spec.Keys = []string{"id"}
	}

	return &Projector{
		store:  store,
		spec:   spec,
		logger: logger,
	}
}

// Register subscribes the projector to the replication events of source.
func (p *Projector) Register(r *bus.Router, source string) {
	r.Subscribe(source, domain.EventReplicateDB, p.Handle)
}

// Handle never fails: the read model is repaired by the next write to the
// same entity.
func (p *Projector) Handle(ctx context.Context, env *domain.Envelope) error {
	if err := p.Project(ctx, env.Payload); err != nil {
		mylogger.Error(ctx, p.logger, "Replication dropped",
			zap.String("source", env.Source),
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
	}

	return nil
}

func (p *Projector) Project(ctx context.Context, payload json.RawMessage) error {
	var fields querystore.Document
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("%w: replication payload: %v", domain.ErrValidation, err)
	}

	id, err := p.key(fields)
	if err != nil {
		return err
	}

	return p.store.Apply(ctx, id, func(current querystore.Document) (querystore.Document, error) {
		if current == nil {
			if missing := p.missing(fields); len(missing) > 0 {
				return nil, fmt.Errorf("%w: create %s without %s", domain.ErrValidation, id, strings.Join(missing, ", "))
			}
			return fields, nil
		}

		if p.spec.Version != "" && p.stale(current, fields) {
			mylogger.Debug(ctx, p.logger, "Ignored stale replication",
				zap.String("id", id),
				zap.String("stored", string(current[p.spec.Version])),
				zap.String("incoming", string(fields[p.spec.Version])),
			)
			return nil, nil
		}

		return fields, nil
	})
}

func (p *Projector) key(fields querystore.Document) (string, error) {
	parts := make([]string, 0, len(p.spec.Keys))
	for _, k := range p.spec.Keys {
		raw, ok := fields[k]
		if !ok || string(raw) == "null" {
			return "", fmt.Errorf("%w: replication payload without key %s", domain.ErrValidation, k)
		}
		parts = append(parts, querystore.FieldString(raw))
	}

	return strings.Join(parts, ":"), nil
}

func (p *Projector) missing(fields querystore.Document) []string {
	var missing []string
	for _, f := range p.spec.Required {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

func (p *Projector) stale(current, incoming querystore.Document) bool {
	in, ok := version(incoming[p.spec.Version])
	if !ok {
		return false
	}

	stored, ok := version(current[p.spec.Version])
	if !ok {
		return false
	}

	return in < stored
}

func version(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	v, err := strconv.ParseInt(querystore.FieldString(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
