// Package relay fans board changes out to other maplab instances over Redis
// Pub/Sub. Delivery is at-most-once; snapshots remain the durable copy.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/starford/maplab/internal/board"
)

// Message is one committed transaction on one room.
type Message struct {
	Origin  string         `json:"origin"`
	Room    string         `json:"room"`
	Version uint64         `json:"version"`
	Changes []board.Change `json:"changes"`
}

// Client publishes and receives board changes. All instances sharing a
// channel prefix form one relay group.
// The client is safe for concurrent use.
type Client struct {
	rdb        *redis.Client
	prefix     string
	instanceID string
}

// NewClient creates a relay client. instanceID tags outgoing messages so an
// instance can ignore its own echoes.
func NewClient(redisOpts *redis.Options, prefix, instanceID string) (*Client, error) {
	if instanceID == "" {
		return nil, fmt.Errorf("relay: instance id cannot be empty")
	}
	if prefix == "" {
		prefix = "maplab"
	}
	return &Client{
		rdb:        redis.NewClient(redisOpts),
		prefix:     prefix,
		instanceID: instanceID,
	}, nil
}

// InstanceID returns the id stamped on outgoing messages.
func (c *Client) InstanceID() string { return c.instanceID }

// Channel returns the Pub/Sub channel of the relay group.
func (c *Client) Channel() string { return c.prefix + ":changes" }

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish sends changes committed locally on room.
func (c *Client) Publish(ctx context.Context, room string, version uint64, changes []board.Change) error {
	payload, err := json.Marshal(Message{
		Origin:  c.instanceID,
		Room:    room,
		Version: version,
		Changes: changes,
	})
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	return nil
}

// Subscription is an active subscription to the relay group.
// Caller must call Close() when done.
type Subscription struct {
	events <-chan *Message
	errors <-chan error
	cancel func()
	once   sync.Once
}

// NewSubscription wraps channels fed by another transport. cancel is called
// once on Close and may be nil.
func NewSubscription(events <-chan *Message, errs <-chan error, cancel func()) *Subscription {
	if cancel == nil {
		cancel = func() {}
	}
	return &Subscription{events: events, errors: errs, cancel: cancel}
}

// Events returns messages from other instances. The channel is closed when
// the subscription is closed or its context is cancelled.
func (s *Subscription) Events() <-chan *Message {
	return s.events
}

// Errors returns non-fatal decode errors; the offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe starts receiving messages published by other instances. It
// returns once Redis has confirmed the subscription.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, c.Channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("relay: subscribe: %w", err)
	}

	eventsChan := make(chan *Message, 64)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					select {
					case errorsChan <- fmt.Errorf("relay: unmarshal message: %w", err):
					default:
					}
					continue
				}
				if m.Origin == c.instanceID {
					continue
				}

				select {
				case eventsChan <- &m:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
