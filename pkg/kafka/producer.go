package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

type Producer interface {
	Produce(ctx context.Context, msg Message) error
	ProduceMessage(ctx context.Context, topic, key string, message any) error
	Close() error
}

type producer struct {
	syncProducer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return NewProducerFromSync(p), nil
}

// NewProducerFromSync wraps an existing sync producer, e.g. sarama/mocks in tests.
func NewProducerFromSync(p sarama.SyncProducer) Producer {
	return &producer{syncProducer: p}
}

func (p *producer) ProduceMessage(ctx context.Context, topic, key string, message any) error {
	var value []byte
	switch m := message.(type) {
	case []byte:
		value = m
	case json.RawMessage:
		value = m
	default:
		jsonMsg, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal message for %s: %w", topic, err)
		}
		value = jsonMsg
	}

	return p.Produce(ctx, Message{Topic: topic, Key: key, Value: value})
}

func (p *producer) Produce(ctx context.Context, msg Message) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier)+len(msg.Headers))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	for k, v := range msg.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	pm := &sarama.ProducerMessage{
		Topic:   msg.Topic,
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: headers,
	}
	if msg.Key != "" {
		pm.Key = sarama.StringEncoder(msg.Key)
	}

	if _, _, err := p.syncProducer.SendMessage(pm); err != nil {
		return fmt.Errorf("error sending message to %s: %w", msg.Topic, err)
	}

	return nil
}

func (p *producer) Close() error {
	return p.syncProducer.Close()
}

// Header returns the value of the named record header.
func Header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
