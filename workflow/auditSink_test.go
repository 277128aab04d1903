package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKafkaWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func sampleAuditMessage() config.AuditMessage {
	return config.AuditMessage{
		ID:            42,
		Entity:        "orders",
		EntityId:      7,
		Action:        "T",
		After:         []byte(`{"status":"Shipped"}`),
		ActorUserId:   3,
		OccurredAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		CorrelationId: "corr-1",
	}
}

func TestKafkaAuditSinkKeysByEntity(t *testing.T) {
	w := &fakeKafkaWriter{}
	sink := &KafkaAuditSink{Writer: w}

	id, err := sink.Publish(context.Background(), sampleAuditMessage())
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "orders:7", string(msg.Key))

	var decoded config.AuditMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "corr-1", decoded.CorrelationId)
	assert.Equal(t, 7, decoded.EntityId)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "T", headers["action"])
	assert.Equal(t, "corr-1", headers["correlation_id"])
}

func TestKafkaAuditSinkWriteError(t *testing.T) {
	sink := &KafkaAuditSink{Writer: &fakeKafkaWriter{err: errors.New("broker down")}}

	id, err := sink.Publish(context.Background(), sampleAuditMessage())
	require.Error(t, err)
	assert.Empty(t, id)
}

func TestLogAuditSink(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	sink := &LogAuditSink{Logger: logger}

	id, err := sink.Publish(context.Background(), sampleAuditMessage())
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "orders", entry.Data["entity"])
	assert.Equal(t, `{"status":"Shipped"}`, entry.Data["after"])

	// a sink without a logger swallows the message
	_, err = (&LogAuditSink{}).Publish(context.Background(), sampleAuditMessage())
	assert.NoError(t, err)
}

func TestNewAuditSinkFromEnv(t *testing.T) {
	logger, _ := logtest.NewNullLogger()

	t.Setenv("AUDIT_SINK", "")
	sink, err := NewAuditSinkFromEnv(logger)
	require.NoError(t, err)
	assert.IsType(t, &LogAuditSink{}, sink)

	t.Setenv("AUDIT_SINK", "pubsub")
	t.Setenv("PUBSUB_AUDIT_TOPIC", "retail-audit")
	sink, err = NewAuditSinkFromEnv(logger)
	require.NoError(t, err)
	require.IsType(t, &PubSubAuditSink{}, sink)
	assert.Equal(t, "retail-audit", sink.(*PubSubAuditSink).Topic)
}
