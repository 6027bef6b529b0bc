package mqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// BrokerStats is the subset of the RabbitMQ management API's queue detail
// response the Controller needs to drive its feed-rate forecast (spec.md §6).
type BrokerStats struct {
	Messages      int
	AckEgressRate float64
}

// Broker polls a RabbitMQ node's HTTP management API (enabled by the
// rabbitmq_management plugin) for queue depth and drain rate. There is no
// AMQP-native way to read a queue's ack rate, so this is a second,
// independent connection to the same broker.
type Broker struct {
	baseURL  string
	vhost    string
	queue    string
	username string
	password string
	client   *http.Client
}

// NewBroker builds a management-API client. baseURL is e.g.
// "http://localhost:15672"; vhost is usually "/".
func NewBroker(baseURL, vhost, queue, username, password string) *Broker {
	return &Broker{
		baseURL:  baseURL,
		vhost:    vhost,
		queue:    queue,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type queueDetail struct {
	Messages           int `json:"messages"`
	BackingQueueStatus struct {
		AvgAckEgressRate float64 `json:"avg_ack_egress_rate"`
	} `json:"backing_queue_status"`
}

// Stats fetches current depth and drain rate for the bound queue
func (b *Broker) Stats(ctx context.Context) (BrokerStats, error) {
	vhost := b.vhost
	if vhost == "" {
		vhost = "/"
	}
	u := fmt.Sprintf("%s/api/queues/%s/%s", b.baseURL, url.PathEscape(vhost), url.PathEscape(b.queue))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return BrokerStats{}, err
	}
	req.SetBasicAuth(b.username, b.password)

	resp, err := b.client.Do(req)
	if err != nil {
		return BrokerStats{}, fmt.Errorf("mqueue: broker request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return BrokerStats{}, fmt.Errorf("mqueue: broker returned %s", resp.Status)
	}

	var d queueDetail
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return BrokerStats{}, fmt.Errorf("mqueue: decode broker response: %w", err)
	}

	return BrokerStats{Messages: d.Messages, AckEgressRate: d.BackingQueueStatus.AvgAckEgressRate}, nil
}

// Ping confirms the management API is reachable and the queue exists
func (b *Broker) Ping(ctx context.Context) error {
	_, err := b.Stats(ctx)
	return err
}
