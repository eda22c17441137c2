package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
)

// Lifecycle event subjects. Downstream consumers (indexer warmers, analytics)
// subscribe to metokens.creation.>.
const (
	SubjectCreationSubmitted = "metokens.creation.submitted"
	SubjectCreationConfirmed = "metokens.creation.confirmed"
	SubjectCreationFailed    = "metokens.creation.failed"
	SubjectCreationRecovered = "metokens.creation.recovered"
)

// CreationEvent is the payload published on every lifecycle transition.
type CreationEvent struct {
	OperationHandle string    `json:"operation_handle"`
	Initiator       string    `json:"initiator"`
	Status          string    `json:"status"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	MeTokenAddress  string    `json:"metoken_address,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NATSClient publishes creation lifecycle events over JetStream.
type NATSClient struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	streamName string
}

// NewNATSClient connects to the NATS server and makes sure the lifecycle
// stream exists.
func NewNATSClient(url, streamName string, timeoutSec int) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if timeoutSec > 0 {
		connectTimeout = time.Duration(timeoutSec) * time.Second
	}

	conn, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}

	client := &NATSClient{conn: conn, js: js, streamName: streamName}
	if err := client.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	metrics.NATSConnectionStatus.Set(1)
	logrus.WithField("stream", streamName).Info("NATS client connected")
	return client, nil
}

func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		return nil
	}
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  []string{"metokens.creation.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.streamName, err)
	}
	return nil
}

// PublishCreationEvent publishes one lifecycle event. Publishing is best
// effort: the orchestrator's own state machine does not depend on it.
func (c *NATSClient) PublishCreationEvent(subject string, event *CreationEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal creation event: %w", err)
	}
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	logrus.WithFields(logrus.Fields{
		"subject": subject,
		"handle":  event.OperationHandle,
		"status":  event.Status,
	}).Debug("Creation event published")
	return nil
}

// Close shuts down the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
