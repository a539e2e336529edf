package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
)

const (
	RealtimeEventBannersChanged = "banners-changed"
	realtimeEventHeartbeat      = "heartbeat"
	realtimeSourceBackend       = "banners-backend"
)

// RealtimeMessage is one change delivered to open event streams.
type RealtimeMessage struct {
	ID        uint64
	Topic     string
	BannerIDs []string
	Payload   json.RawMessage
	Timestamp time.Time
}

// RealtimeDispatcher fans committed changes out to SSE subscribers.
// It satisfies banners.Publisher and events.Publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	sequence    uint64
	bufferSize  int
	closed      bool
}

type realtimeSubscriber struct {
	id     int64
	topics []string
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for the topic prefixes given; none means every topic.
// The subscription ends when ctx is done or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, topics []string) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		topics: topics,
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	if !d.registerSubscriber(subscriber) {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish encodes event and delivers it to matching subscribers without blocking;
// a subscriber with a full buffer misses the message.
func (d *RealtimeDispatcher) Publish(_ context.Context, topic string, event any) error {
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling realtime event: %w", err)
	}
	message := RealtimeMessage{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if change, ok := event.(banners.ChangeEvent); ok {
		message.BannerIDs = change.BannerIDs
		message.Timestamp = change.OccurredAt
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.subscribers) == 0 {
		return nil
	}
	d.sequence++
	message.ID = d.sequence
	for _, subscriber := range d.subscribers {
		if !subscriber.matches(topic) {
			continue
		}
		select {
		case subscriber.stream <- message:
		default:
		}
	}
	return nil
}

// Close ends every open subscription.
func (d *RealtimeDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for id, subscriber := range d.subscribers {
		close(subscriber.stream)
		delete(d.subscribers, id)
	}
	return nil
}

// SubscriberCount reports the number of open subscriptions.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (s *realtimeSubscriber) matches(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	for _, prefix := range s.topics {
		if strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.subscribers[subscriber.id] = subscriber
	return true
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	subscriber, ok := d.subscribers[subscriberID]
	if ok {
		delete(d.subscribers, subscriberID)
		close(subscriber.stream)
	}
	d.mu.Unlock()
}
