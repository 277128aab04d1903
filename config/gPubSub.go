package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// AuditMessage is the wire shape delivered to the audit sink.
type AuditMessage struct {
	ID            int       `json:"id"`
	Entity        string    `json:"entity"`
	EntityId      int       `json:"entity_id"`
	Action        string    `json:"action"`
	Before        []byte    `json:"before,omitempty"`
	After         []byte    `json:"after,omitempty"`
	ActorUserId   int       `json:"actor_user_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationId string    `json:"correlation_id"`
}

var (
	pubsubMu     sync.Mutex
	pubsubClient *pubsub.Client
	pubsubTopics = map[string]*pubsub.Topic{}
)

func init() {
	godotenv.Load()
}

func pubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	return os.Getenv("GOOGLE_CLOUD_PROJECT")
}

// GetPubSubClient returns the shared client, creating it on first use. PUBSUB_CREDENTIALS_JSON, when
// set, replaces application default credentials.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := pubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	maxAttempts := IntFromEnv("PUBSUB_CONNECT_ATTEMPTS", 5)
	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClient = c
			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c, nil
		}
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("init pubsub client after %d attempts: %w", attempt, err)
		}
		sleep := BackoffFor(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func pubSubTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	t, ok := pubsubTopics[name]
	if !ok {
		t = client.Topic(name)
		pubsubTopics[name] = t
	}
	return t, nil
}

// PublishJSONWithResult publishes obj to topicName and waits for the server-assigned message id.
func PublishJSONWithResult(ctx context.Context, topicName string, obj interface{}, attrs map[string]string) (string, error) {
	if topicName == "" {
		return "", errors.New("topic name is required")
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	topic, err := pubSubTopic(ctx, topicName)
	if err != nil {
		return "", err
	}
	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

func AuditTopic() string {
	return os.Getenv("PUBSUB_AUDIT_TOPIC")
}

func NotificationTopic() string {
	return os.Getenv("PUBSUB_NOTIFICATION_TOPIC")
}
