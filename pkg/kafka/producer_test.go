package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, b:9092 ,"))
	assert.Nil(t, ParseBrokers(""))
}

func TestProducerMessage(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, Topic: "fern.events"}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	defer p.Close()

	event := &Event{
		EventType:  "entity.merged",
		ProjectID:  "p1",
		EntityID:   "e1",
		EntityType: "tag",
		Data:       json.RawMessage(`{"strategy":"skip"}`),
	}

	msg, err := p.message(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, "fern.events", msg.Topic)
	assert.Equal(t, []byte("e1"), msg.Key)
	assert.False(t, event.Timestamp.IsZero())

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "entity.merged", headers["event_type"])
	assert.Equal(t, "p1", headers["project_id"])
	assert.NotContains(t, headers, "traceparent")

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "tag", decoded.EntityType)
	assert.JSONEq(t, `{"strategy":"skip"}`, string(decoded.Data))
}
