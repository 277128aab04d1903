package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// AuditSink receives audit entries after the business transaction committed. Publish returns an
// id assigned by the sink, if it has one.
type AuditSink interface {
	Publish(ctx context.Context, msg config.AuditMessage) (string, error)
}

// NewAuditSinkFromEnv picks the sink named by AUDIT_SINK.
func NewAuditSinkFromEnv(logger *logrus.Logger) (AuditSink, error) {
	switch config.AuditSinkKind() {
	case "pubsub":
		return &PubSubAuditSink{Topic: config.AuditTopic()}, nil
	case "kafka":
		w, err := config.GetKafkaAuditWriter()
		if err != nil {
			return nil, err
		}
		return &KafkaAuditSink{Writer: w}, nil
	default:
		return &LogAuditSink{Logger: logger}, nil
	}
}

type PubSubAuditSink struct {
	Topic string
}

func (s *PubSubAuditSink) Publish(ctx context.Context, msg config.AuditMessage) (string, error) {
	return config.PublishJSONWithResult(ctx, s.Topic, msg, map[string]string{
		"entity":         msg.Entity,
		"action":         msg.Action,
		"correlation_id": msg.CorrelationId,
	})
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaAuditSink keys messages by entity so one entity's history stays on one partition, in order.
type KafkaAuditSink struct {
	Writer kafkaMessageWriter
}

func (s *KafkaAuditSink) Publish(ctx context.Context, msg config.AuditMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	err = s.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%d", msg.Entity, msg.EntityId)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(msg.Action)},
			{Key: "correlation_id", Value: []byte(msg.CorrelationId)},
		},
	})
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}

type LogAuditSink struct {
	Logger *logrus.Logger
}

func (s *LogAuditSink) Publish(ctx context.Context, msg config.AuditMessage) (string, error) {
	if s.Logger == nil {
		return "", nil
	}
	s.Logger.WithFields(logrus.Fields{
		"field":          "Audit",
		"entity":         msg.Entity,
		"entity_id":      msg.EntityId,
		"action":         msg.Action,
		"actor_user_id":  msg.ActorUserId,
		"correlation_id": msg.CorrelationId,
		"before":         string(msg.Before),
		"after":          string(msg.After),
	}).Info("audit")
	return strconv.Itoa(msg.ID), nil
}
