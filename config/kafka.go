package config

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	kafkaWriter   *kafka.Writer
	kafkaWriterMu sync.Mutex
)

func kafkaBrokers() []string {
	raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if raw == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// GetKafkaAuditWriter lazily builds the synchronous writer used by the kafka audit sink.
//
// Env:
// - KAFKA_BROKERS=host1:9092,host2:9092
// - KAFKA_AUDIT_TOPIC=retail.audit
func GetKafkaAuditWriter() (*kafka.Writer, error) {
	kafkaWriterMu.Lock()
	defer kafkaWriterMu.Unlock()
	if kafkaWriter != nil {
		return kafkaWriter, nil
	}

	brokers := kafkaBrokers()
	if len(brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS not set")
	}
	topic := strings.TrimSpace(os.Getenv("KAFKA_AUDIT_TOPIC"))
	if topic == "" {
		return nil, errors.New("KAFKA_AUDIT_TOPIC not set")
	}

	kafkaWriter = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  IntFromEnv("KAFKA_MAX_ATTEMPTS", 3),
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network string, address string) (net.Conn, error) {
				dialer := &kafka.Dialer{
					Timeout:   10 * time.Second,
					DualStack: true,
					KeepAlive: 30 * time.Second,
				}
				return dialer.DialContext(ctx, network, address)
			},
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logg.Errorf("kafka audit writer: "+msg, args...)
		}),
	}
	return kafkaWriter, nil
}

func CloseKafkaAuditWriter() error {
	kafkaWriterMu.Lock()
	defer kafkaWriterMu.Unlock()
	if kafkaWriter == nil {
		return nil
	}
	err := kafkaWriter.Close()
	kafkaWriter = nil
	return err
}
