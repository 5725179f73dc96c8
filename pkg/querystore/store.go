package querystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxWatchRetries = 5

// Document is a read model stored as a Redis hash. Every field holds the raw
// JSON of its value.
type Document map[string]json.RawMessage

// String returns the field as a plain string, unquoting JSON strings.
func (d Document) String(field string) (string, bool) {
	raw, ok := d[field]
	if !ok {
		return "", false
	}
	return FieldString(raw), true
}

func FieldString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Store keeps one collection of documents plus sorted-set indexes over the
// configured fields.
type Store struct {
	rdb        *redis.Client
	collection string
	indexes    []string
	tracer     trace.Tracer
}

func New(rdb *redis.Client, collection string, indexes ...string) *Store {
	return &Store{
		rdb:        rdb,
		collection: collection,
		indexes:    indexes,
		tracer:     otel.Tracer("pkg/querystore"),
	}
}

func (s *Store) Collection() string {
	return s.collection
}

func (s *Store) docKey(id string) string {
	return s.collection + ":" + id
}

func (s *Store) allKey() string {
	return s.collection + ":all"
}

func (s *Store) indexKey(field, value string) string {
	return s.collection + ":idx:" + field + ":" + value
}

func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	ctx, span := s.tracer.Start(ctx, "QueryStore.Get")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.collection),
		attribute.String("id", id),
	)

	raw, err := s.rdb.HGetAll(ctx, s.docKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get %s %s: %w", s.collection, id, err)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%s %s: %w", s.collection, id, domain.ErrNotFound)
	}

	return toDocument(raw), nil
}

// Apply reads the current document (nil when absent) and writes the fields
// fn returns. The read and the write run under WATCH, so a concurrent writer
// makes Apply start over. Returning no fields skips the write.
func (s *Store) Apply(ctx context.Context, id string, fn func(current Document) (Document, error)) error {
	ctx, span := s.tracer.Start(ctx, "QueryStore.Apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.collection),
		attribute.String("id", id),
	)

	key := s.docKey(id)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		var current Document
		if len(raw) > 0 {
			current = toDocument(raw)
		}

		fields, err := fn(current)
		if err != nil || len(fields) == 0 {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			values := make([]any, 0, len(fields)*2)
			for field, value := range fields {
				values = append(values, field, string(value))
			}

			member := redis.Z{Score: score(id), Member: id}

			pipe.HSet(ctx, key, values...)
			pipe.ZAdd(ctx, s.allKey(), member)

			for _, field := range s.indexes {
				value, ok := fields[field]
				if !ok {
					continue
				}

				if old, ok := current[field]; ok && string(old) != string(value) {
					pipe.ZRem(ctx, s.indexKey(field, FieldString(old)), id)
				}
				pipe.ZAdd(ctx, s.indexKey(field, FieldString(value)), member)
			}

			return nil
		})

		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("apply %s %s: %w", s.collection, id, err)
		}

		return nil
	}

	return fmt.Errorf("apply %s %s: %w: too many concurrent writers", s.collection, id, domain.ErrTransient)
}

// List pages over every document ordered by id. Pages start at 1.
func (s *Store) List(ctx context.Context, page, limit int) ([]Document, int64, error) {
	return s.page(ctx, s.allKey(), page, limit)
}

// ListBy pages over the documents whose indexed field equals value.
func (s *Store) ListBy(ctx context.Context, field, value string, page, limit int) ([]Document, int64, error) {
	return s.page(ctx, s.indexKey(field, value), page, limit)
}

func (s *Store) page(ctx context.Context, setKey string, page, limit int) ([]Document, int64, error) {
	ctx, span := s.tracer.Start(ctx, "QueryStore.List")
	defer span.End()

	page, limit = Normalize(page, limit)
	start := int64((page - 1) * limit)
	stop := start + int64(limit) - 1

	span.SetAttributes(
		attribute.String("collection", s.collection),
		attribute.String("set", setKey),
		attribute.Int("page", page),
	)

	total, err := s.rdb.ZCard(ctx, setKey).Result()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("count %s: %w", setKey, err)
	}

	ids, err := s.rdb.ZRange(ctx, setKey, start, stop).Result()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("range %s: %w", setKey, err)
	}

	if len(ids) == 0 {
		return []Document{}, total, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.docKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("load %s page: %w", s.collection, err)
	}

	docs := make([]Document, 0, len(ids))
	for _, cmd := range cmds {
		if raw := cmd.Val(); len(raw) > 0 {
			docs = append(docs, toDocument(raw))
		}
	}

	return docs, total, nil
}

// Normalize clamps paging input: page defaults to 1, limit to 10 and at most 100.
func Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func toDocument(raw map[string]string) Document {
	doc := make(Document, len(raw))
	for field, value := range raw {
		doc[field] = json.RawMessage(value)
	}
	return doc
}

func score(id string) float64 {
	f, err := strconv.ParseFloat(id, 64)
	if err != nil {
		return 0
	}
	return f
}
