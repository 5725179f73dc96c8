package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_ProduceMessage_KeyAndValue(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "command_orders" {
			return errors.New("unexpected topic " + msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}

		var body map[string]any
		if err := json.Unmarshal(value, &body); err != nil {
			return err
		}
		if body["order_id"] != float64(42) {
			return errors.New("unexpected body")
		}
		return nil
	})

	p := NewProducerFromSync(sp)
	err := p.ProduceMessage(context.Background(), "command_orders", "42", map[string]any{"order_id": 42})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducer_Produce_RawBytesAndHeaders(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		value, _ := msg.Value.Encode()
		if string(value) != `{"event":"x"}` {
			return errors.New("value was re-encoded")
		}
		for _, h := range msg.Headers {
			if string(h.Key) == "event" && string(h.Value) == "x" {
				return nil
			}
		}
		return errors.New("missing event header")
	})

	p := NewProducerFromSync(sp)
	err := p.Produce(context.Background(), Message{
		Topic:   "dead_letter",
		Value:   []byte(`{"event":"x"}`),
		Headers: map[string]string{"event": "x"},
	})
	require.NoError(t, err)
}

func TestProducer_SendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFromSync(sp)
	err := p.ProduceMessage(context.Background(), "command_item", "", json.RawMessage(`{}`))

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestHeader(t *testing.T) {
	msg := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{
		{Key: []byte("source"), Value: []byte("command_orders")},
	}}

	assert.Equal(t, "command_orders", Header(msg, "source"))
	assert.Empty(t, Header(msg, "missing"))
}
