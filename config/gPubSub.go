package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubMessage is the payload published for ledger events.
type PubSubMessage struct {
	ID                  int       `json:"id"`
	BusinessId          string    `json:"business_id"`
	TransactionDateTime time.Time `json:"transaction_date_time"`
	ReferenceId         int       `json:"reference_id"`
	ReferenceType       string    `json:"reference_type"`
	Action              string    `json:"action"`
	NewObj              []byte    `json:"new_obj"`
	CorrelationId       string    `json:"correlation_id"`
}

// OrderingKey keeps one business's ledger events in publish order.
func (m PubSubMessage) OrderingKey() string {
	return "ledger:" + m.BusinessId
}

// Attributes lets subscribers filter without decoding the payload.
func (m PubSubMessage) Attributes() map[string]string {
	attrs := map[string]string{
		"business_id":    m.BusinessId,
		"reference_type": m.ReferenceType,
		"reference_id":   strconv.Itoa(m.ReferenceId),
		"action":         m.Action,
	}
	if m.CorrelationId != "" {
		attrs["correlation_id"] = m.CorrelationId
	}
	return attrs
}

var (
	pubsubMu     sync.Mutex
	pubsubClient *pubsub.Client
	ledgerTopic  *pubsub.Topic
)

func getPubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// GetPubSubClient returns the shared Pub/Sub client, connecting with retries
// on first use. Application Default Credentials are used unless
// PUBSUB_CREDENTIALS_JSON is set.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClient = c
			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c, nil
		}
		sleep := retryDelay(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// getLedgerTopic returns the PUBSUB_TOPIC handle with message ordering on.
// The handle is reused so publishes share one batching scheduler.
func getLedgerTopic(ctx context.Context) (*pubsub.Topic, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	topicName := strings.TrimSpace(os.Getenv("PUBSUB_TOPIC"))
	if topicName == "" {
		return nil, errors.New("PUBSUB_TOPIC is required")
	}

	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if ledgerTopic == nil || ledgerTopic.ID() != topicName {
		t := client.Topic(topicName)
		t.EnableMessageOrdering = true
		ledgerTopic = t
	}
	return ledgerTopic, nil
}

// PublishLedgerEvent publishes msg to PUBSUB_TOPIC and returns the server-assigned message ID.
func PublishLedgerEvent(ctx context.Context, msg PubSubMessage) (string, error) {
	t, err := getLedgerTopic(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	key := msg.OrderingKey()
	id, err := t.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  msg.Attributes(),
		OrderingKey: key,
	}).Get(ctx)
	if err != nil {
		// a failed ordered publish pauses the key until it is resumed
		t.ResumePublish(key)
		return "", err
	}
	return id, nil
}
