package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// BillingEvent is the envelope published for commission and payout changes.
type BillingEvent struct {
	Type          string    `json:"type"`
	PeriodId      string    `json:"period_id"`
	ManagerId     int       `json:"manager_id,omitempty"`
	ReferenceId   int       `json:"reference_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       any       `json:"payload,omitempty"`
	CorrelationId string    `json:"correlation_id,omitempty"`
}

var (
	billingTopic   *pubsub.Topic
	billingTopicMu sync.Mutex
)

func pubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func billingTopicName() string {
	return strings.TrimSpace(os.Getenv("PUBSUB_TOPIC_BILLING"))
}

// BillingEventsEnabled reports whether a topic and project are configured.
func BillingEventsEnabled() bool {
	return billingTopicName() != "" && pubSubProjectID() != ""
}

func newPubSubClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		return pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	}
	// Application Default Credentials otherwise.
	return pubsub.NewClient(ctx, projectID)
}

// getBillingTopic lazily builds the client and topic. PUBSUB_CREATE_TOPIC=true creates a
// missing topic, which is only meant for emulators and fresh projects.
func getBillingTopic(ctx context.Context) (*pubsub.Topic, error) {
	billingTopicMu.Lock()
	defer billingTopicMu.Unlock()
	if billingTopic != nil {
		return billingTopic, nil
	}

	projectID := pubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err := newPubSubClient(ctx, projectID)
		if err == nil {
			topic := client.Topic(billingTopicName())
			if envBool("PUBSUB_CREATE_TOPIC") {
				topic, err = createTopicIfNotExists(ctx, client, billingTopicName())
				if err != nil {
					_ = client.Close()
					return nil, err
				}
			}
			topic.EnableMessageOrdering = true
			billingTopic = topic
			GetLogger().WithFields(logrus.Fields{
				"projectId": projectID,
				"topic":     topic.ID(),
				"attempt":   attempt,
			}).Info("pubsub topic ready")
			return billingTopic, nil
		}
		lastErr = err

		sleep := time.Second * time.Duration(1<<attempt)
		GetLogger().WithFields(logrus.Fields{
			"projectId": projectID,
			"attempt":   attempt,
			"retryIn":   sleep.String(),
		}).WithError(err).Warn("failed to init pubsub client")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, fmt.Errorf("init pubsub client: %w", lastErr)
}

func createTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// PublishBillingEvent publishes and returns the Pub/Sub server-assigned message ID.
// Events of one period share an ordering key. It is a no-op returning "" when events
// are not configured.
func PublishBillingEvent(ctx context.Context, event BillingEvent) (string, error) {
	if !BillingEventsEnabled() {
		return "", nil
	}
	topic, err := getBillingTopic(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	result := topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: event.PeriodId,
		Attributes: map[string]string{
			"type":      event.Type,
			"period_id": event.PeriodId,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		// A failed publish pauses its ordering key until resumed.
		topic.ResumePublish(event.PeriodId)
		return "", err
	}
	return id, nil
}

// StopBillingEvents flushes pending publishes on shutdown.
func StopBillingEvents() {
	billingTopicMu.Lock()
	defer billingTopicMu.Unlock()
	if billingTopic != nil {
		billingTopic.Stop()
	}
}
