package testutils

import (
	"context"
	"sync"

	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/protocol"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // decoded responses
	RawBytes []string              // feed payloads
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

func (m *MockClient) LastMsg() protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}
	}
	return m.Messages[len(m.Messages)-1]
}

func (m *MockClient) Raw() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]string(nil), m.RawBytes...)
}

// MockPriceStore simulates Redis
type MockPriceStore struct {
	SubscribedChannels map[string]int // topic -> count
	Snapshots          map[string]string
	Mu                 sync.Mutex
}

func NewMockStore() *MockPriceStore {
	return &MockPriceStore{
		SubscribedChannels: make(map[string]int),
		Snapshots:          map[string]string{"ABC": `{"stock":"ABC"}`},
	}
}

func (m *MockPriceStore) GetSnapshots(ctx context.Context, topics []string) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []string
	for _, t := range topics {
		if s, ok := m.Snapshots[t]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockPriceStore) SubscribeToFeed(ctx context.Context, topic string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[topic]++
	return nil
}

func (m *MockPriceStore) UnsubscribeFromFeed(ctx context.Context, topic string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[topic]--
	if m.SubscribedChannels[topic] <= 0 {
		delete(m.SubscribedChannels, topic)
	}
	return nil
}

func (m *MockPriceStore) Subscribed(topic string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.SubscribedChannels[topic]
}

func (m *MockPriceStore) RunPubSub(ctx context.Context, onMessage func(topic string, payload string)) {
	// Tests call Hub.Broadcast directly
}

func (m *MockPriceStore) Close() error { return nil }
