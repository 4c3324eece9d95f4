package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/repository"
)

var broadcasts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratio_gateway_broadcasts_total",
		Help: "Feed messages fanned out by topic",
	},
	[]string{"topic"},
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// Listener receives every payload of a watched topic
type Listener func(payload string)

type Hub struct {
	subscribers map[string]map[ClientInterface]bool
	clientSubs  map[ClientInterface]map[string]bool
	listeners   map[string][]Listener
	validTopics map[string]bool

	store    repository.PriceStore
	logger   *zap.Logger
	mu       sync.RWMutex
	refCount map[string]int
	cancel   context.CancelFunc
}

func NewHub(store repository.PriceStore, logger *zap.Logger, validTopics []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		subscribers: make(map[string]map[ClientInterface]bool),
		clientSubs:  make(map[ClientInterface]map[string]bool),
		listeners:   make(map[string][]Listener),
		validTopics: make(map[string]bool, len(validTopics)),
		store:       store,
		logger:      logger,
		refCount:    make(map[string]int),
		cancel:      cancel,
	}
	for _, t := range validTopics {
		h.validTopics[t] = true
	}

	go h.store.RunPubSub(ctx, h.Broadcast)

	return h
}

// Watch pins an upstream subscription to topic for the hub's lifetime and
// calls fn for each payload, whether or not any client is subscribed.
func (h *Hub) Watch(topic string, fn Listener) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners[topic] = append(h.listeners[topic], fn)
	h.refCount[topic]++
	if h.refCount[topic] == 1 {
		if err := h.store.SubscribeToFeed(context.Background(), topic); err != nil {
			h.refCount[topic]--
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		h.handleUnsubscribeAll(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var valid []string
	for _, t := range req.Payload.Topics {
		if !h.validTopics[t] {
			continue
		}
		// Idempotent: already subscribed topics are ignored
		if h.clientSubs[client] != nil && h.clientSubs[client][t] {
			continue
		}
		valid = append(valid, t)
	}

	if len(valid) == 0 {
		h.sendError(client, req.ID, "No valid/new topics provided")
		return
	}

	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}

	for _, topic := range valid {
		h.clientSubs[client][topic] = true
		if h.subscribers[topic] == nil {
			h.subscribers[topic] = make(map[ClientInterface]bool)
		}
		h.subscribers[topic][client] = true

		h.refCount[topic]++
		if h.refCount[topic] == 1 {
			if err := h.store.SubscribeToFeed(context.Background(), topic); err != nil {
				h.logger.Error("Failed to subscribe upstream", zap.String("topic", topic), zap.Error(err))
			}
		}
	}

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Subscribed to %v", valid))

	// Snapshots are fetched outside the lock
	go func(targets []string) {
		snapshots, err := h.store.GetSnapshots(context.Background(), targets)
		if err != nil {
			h.logger.Warn("Snapshot fetch failed", zap.Strings("topics", targets), zap.Error(err))
			return
		}
		for _, snap := range snapshots {
			client.SendBytes([]byte(snap))
		}
	}(valid)
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []string
	if subs, ok := h.clientSubs[client]; ok {
		for _, topic := range req.Payload.Topics {
			if subs[topic] {
				delete(subs, topic)
				delete(h.subscribers[topic], client)
				removed = append(removed, topic)
				h.decreaseRefCount(topic)
			}
		}
	}

	if len(removed) > 0 {
		h.sendAck(client, req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
	} else {
		h.sendError(client, req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Topics))
	}
}

func (h *Hub) handleUnsubscribeAll(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.clientSubs[client]; ok {
		for topic := range subs {
			delete(h.subscribers[topic], client)
			h.decreaseRefCount(topic)
		}
		// Client stays registered with an empty set
		h.clientSubs[client] = make(map[string]bool)
	}
	h.sendAck(client, req.ID, "success", "Unsubscribed from all topics")
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.clientSubs[client]; ok {
		for topic := range subs {
			delete(h.subscribers[topic], client)
			h.decreaseRefCount(topic)
		}
		delete(h.clientSubs, client)
	}
	client.Close()
}

func (h *Hub) Broadcast(topic string, payload string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	broadcasts.WithLabelValues(topic).Inc()

	for _, fn := range h.listeners[topic] {
		fn(payload)
	}

	if clients, ok := h.subscribers[topic]; ok {
		msgBytes := []byte(payload)
		for client := range clients {
			client.SendBytes(msgBytes)
		}
	}
}

// Shutdown stops the pub/sub loop and closes the store
func (h *Hub) Shutdown() error {
	h.cancel()
	return h.store.Close()
}

func (h *Hub) decreaseRefCount(topic string) {
	h.refCount[topic]--
	if h.refCount[topic] <= 0 {
		if err := h.store.UnsubscribeFromFeed(context.Background(), topic); err != nil {
			h.logger.Error("Failed to unsubscribe upstream", zap.String("topic", topic), zap.Error(err))
		}
		delete(h.refCount, topic)
		delete(h.subscribers, topic)
	}
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "ack", ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "error", ID: id, Message: msg})
}
