package testutils

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// DeadlineExceeded stops the processor's read loop cleanly at end of test data
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockPipeline is the Redis state built from every committed pipeline
type MockPipeline struct {
	ExecCount    int
	RecordedCmds []string
	Values       map[string][]byte
	Published    map[string][][]byte
	// ExecHook runs before a pipeline commits; it may block, and a non-nil
	// error fails the Exec without applying anything.
	ExecHook func(cmds []string) error
	Mu       sync.Mutex
}

// Count returns how many times cmd was committed
func (m *MockPipeline) Count(cmd string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, c := range m.RecordedCmds {
		if c == cmd {
			n++
		}
	}
	return n
}

// Messages returns the payloads committed to channel, in commit order
func (m *MockPipeline) Messages(channel string) [][]byte {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([][]byte(nil), m.Published[channel]...)
}

type mockOp struct {
	cmd   string
	key   string
	value []byte
}

// mockTx buffers one pipeline's commands until Exec
type mockTx struct {
	redis.Pipeliner // satisfies the methods we never call

	spy *MockPipeline
	ops []mockOp
}

func toBytes(v interface{}) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	}
	return nil
}

func (t *mockTx) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	t.ops = append(t.ops, mockOp{cmd: "SET", key: key, value: toBytes(value)})
	return redis.NewStatusCmd(ctx)
}

func (t *mockTx) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	t.ops = append(t.ops, mockOp{cmd: "PUBLISH", key: channel, value: toBytes(message)})
	return redis.NewIntCmd(ctx)
}

func (t *mockTx) Exec(ctx context.Context) ([]redis.Cmder, error) {
	cmds := make([]string, len(t.ops))
	for i, op := range t.ops {
		cmds[i] = op.cmd + " " + op.key
	}

	var hookErr error
	if t.spy.ExecHook != nil {
		hookErr = t.spy.ExecHook(cmds)
	}

	t.spy.Mu.Lock()
	defer t.spy.Mu.Unlock()
	t.spy.ExecCount++
	if hookErr != nil {
		return nil, hookErr
	}

	for _, op := range t.ops {
		t.spy.RecordedCmds = append(t.spy.RecordedCmds, op.cmd+" "+op.key)
		switch op.cmd {
		case "SET":
			if t.spy.Values == nil {
				t.spy.Values = make(map[string][]byte)
			}
			t.spy.Values[op.key] = op.value
		case "PUBLISH":
			if t.spy.Published == nil {
				t.spy.Published = make(map[string][][]byte)
			}
			t.spy.Published[op.key] = append(t.spy.Published[op.key], op.value)
		}
	}
	t.ops = nil
	return nil, nil
}

// Contains reports whether cmds includes every one of want
func Contains(cmds []string, want ...string) bool {
	for _, w := range want {
		found := false
		for _, c := range cmds {
			if c == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type MockRedisClient struct {
	PipelineSpy *MockPipeline
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{PipelineSpy: &MockPipeline{}}
}

func (m *MockRedisClient) Pipeline() redis.Pipeliner {
	return &mockTx{spy: m.PipelineSpy}
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusCmd(ctx)
}

func (m *MockRedisClient) Close() error { return nil }

// SnapshotMessage encodes a quote snapshot the way the generator does
func SnapshotMessage(symbol string, ask, bid float64, ts time.Time, seq int64) kafka.Message {
	val, _ := json.Marshal(models.QuoteSnapshot{
		Symbol:    symbol,
		TopAsk:    &models.BookLevel{Price: ask, Size: 100},
		TopBid:    &models.BookLevel{Price: bid, Size: 100},
		Timestamp: ts,
		SeqID:     seq,
	})
	return kafka.Message{Key: []byte(symbol), Value: val}
}
