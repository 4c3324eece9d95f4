package processor_test

import (
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/cmd/processor/internal/processor"
	"github.com/shubham-shewale/stock-ratio/cmd/processor/internal/testutils"
	"github.com/shubham-shewale/stock-ratio/pkg/config"
	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

var t0 = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

func testConfig(workers int) *config.Config {
	cfg := &config.Config{}
	cfg.Processor.NumWorkers = workers
	cfg.Ratio = config.RatioConfig{InstrumentA: "ABC", InstrumentB: "DEF", Delta: 0.05}
	return cfg
}

func run(t *testing.T, cfg *config.Config, msgs []kafka.Message, rdb *testutils.MockRedisClient, d time.Duration) {
	t.Helper()
	proc, err := processor.NewProcessor(cfg, zap.NewNop(), rdb, &testutils.MockKafkaReader{Messages: msgs})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	if err := proc.Run(ctx); err != nil {
		t.Logf("Processor stopped: %v", err)
	}
}

func TestProcessor_WorkerLogic(t *testing.T) {
	msgs := []kafka.Message{
		testutils.SnapshotMessage("ABC", 101, 99, t0, 1),
		testutils.SnapshotMessage("ABC", 101, 99, t0, 1),
		testutils.SnapshotMessage("ABC", 102, 100, t0.Add(time.Second), 2),
		testutils.SnapshotMessage("DEF", 100, 100, t0, 1),
	}

	mockRedis := testutils.NewMockRedisClient()
	run(t, testConfig(2), msgs, mockRedis, 500*time.Millisecond)

	pipeline := mockRedis.PipelineSpy
	if pipeline.ExecCount != 3 {
		t.Errorf("Expected 3 pipeline executions, got %d", pipeline.ExecCount)
	}
	if pipeline.Count("SET latest:ABC") != 2 {
		t.Errorf("Expected 2 writes for ABC, got %d", pipeline.Count("SET latest:ABC"))
	}
	if pipeline.Count("PUBLISH feed.DEF") != 1 {
		t.Error("Missing publish for DEF")
	}
	if pipeline.Count("PUBLISH feed.ratio") == 0 {
		t.Error("Expected at least one ratio row once both instruments were seen")
	}
}

func TestProcessor_PublishesRow(t *testing.T) {
	msgs := []kafka.Message{
		testutils.SnapshotMessage("ABC", 110, 108, t0, 1),
		testutils.SnapshotMessage("DEF", 100, 100, t0.Add(2*time.Second), 1),
	}

	mockRedis := testutils.NewMockRedisClient()
	run(t, testConfig(1), msgs, mockRedis, 300*time.Millisecond)

	pipeline := mockRedis.PipelineSpy
	if pipeline.Count("SET latest:ratio") != 1 {
		t.Fatalf("Expected exactly one row, got %d", pipeline.Count("SET latest:ratio"))
	}

	var row models.AnalyticalRow
	if err := json.Unmarshal(pipeline.Values["latest:ratio"], &row); err != nil {
		t.Fatalf("Row is not valid JSON: %v", err)
	}
	if row.PriceABC != 109 || row.PriceDEF != 100 {
		t.Errorf("Unexpected mid prices %v / %v", row.PriceABC, row.PriceDEF)
	}
	if row.Ratio != 1.09 {
		t.Errorf("Expected ratio 1.09, got %v", row.Ratio)
	}
	if row.TriggerAlert == nil || *row.TriggerAlert != 1.09 {
		t.Errorf("Expected trigger_alert 1.09, got %v", row.TriggerAlert)
	}
	if !row.Timestamp.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("Expected the later timestamp, got %v", row.Timestamp)
	}
}

func TestProcessor_ZeroMidPriceSkipsRow(t *testing.T) {
	msgs := []kafka.Message{
		testutils.SnapshotMessage("ABC", 101, 99, t0, 1),
		testutils.SnapshotMessage("DEF", 0, 0, t0, 1),
	}

	mockRedis := testutils.NewMockRedisClient()
	run(t, testConfig(1), msgs, mockRedis, 300*time.Millisecond)

	if mockRedis.PipelineSpy.ExecCount != 2 {
		t.Errorf("Snapshots should still be stored, got %d execs", mockRedis.PipelineSpy.ExecCount)
	}
	if mockRedis.PipelineSpy.Count("PUBLISH feed.ratio") != 0 {
		t.Error("No row should be published for a zero denominator")
	}
}

func TestProcessor_InvalidJSON(t *testing.T) {
	msgs := []kafka.Message{
		{Key: []byte("ABC"), Value: []byte("{broken-json")},
	}

	mockRedis := testutils.NewMockRedisClient()
	run(t, testConfig(1), msgs, mockRedis, 200*time.Millisecond)

	if mockRedis.PipelineSpy.ExecCount > 0 {
		t.Error("Should not execute Redis commands for invalid JSON")
	}
}

func TestProcessor_RetriesAfterFailedExec(t *testing.T) {
	msgs := []kafka.Message{
		testutils.SnapshotMessage("ABC", 101, 99, t0, 1),
		testutils.SnapshotMessage("DEF", 100, 100, t0, 1),
		testutils.SnapshotMessage("DEF", 100, 100, t0, 1),
	}

	mockRedis := testutils.NewMockRedisClient()
	var failed atomic.Bool
	mockRedis.PipelineSpy.ExecHook = func(cmds []string) error {
		if testutils.Contains(cmds, "SET latest:DEF") && failed.CompareAndSwap(false, true) {
			return io.ErrUnexpectedEOF
		}
		return nil
	}
	run(t, testConfig(1), msgs, mockRedis, 300*time.Millisecond)

	// The redelivery is not a duplicate because the first write failed
	if mockRedis.PipelineSpy.ExecCount != 3 {
		t.Errorf("Expected 3 pipeline executions, got %d", mockRedis.PipelineSpy.ExecCount)
	}
	if got := mockRedis.PipelineSpy.Count("PUBLISH feed.ratio"); got != 1 {
		t.Errorf("Expected the retried tick to publish its row, got %d rows", got)
	}
}

func TestProcessor_UnsequencedSnapshots(t *testing.T) {
	msgs := []kafka.Message{
		testutils.SnapshotMessage("ABC", 110, 108, t0, 0),
		testutils.SnapshotMessage("DEF", 100, 100, t0, 0),
		testutils.SnapshotMessage("DEF", 100, 100, t0.Add(time.Second), 0),
	}

	mockRedis := testutils.NewMockRedisClient()
	run(t, testConfig(1), msgs, mockRedis, 300*time.Millisecond)

	if mockRedis.PipelineSpy.ExecCount != 3 {
		t.Errorf("Snapshots without seq_id should all be stored, got %d execs", mockRedis.PipelineSpy.ExecCount)
	}
	if got := mockRedis.PipelineSpy.Count("PUBLISH feed.ratio"); got != 2 {
		t.Errorf("Expected 2 rows, got %d", got)
	}
}

func TestProcessor_RatioWritesStayOrdered(t *testing.T) {
	msgs := []kafka.Message{
		testutils.SnapshotMessage("DEF", 100, 100, t0, 1),
		testutils.SnapshotMessage("ABC", 101, 99, t0.Add(time.Second), 1),
		testutils.SnapshotMessage("DEF", 110, 110, t0.Add(2*time.Second), 2),
	}

	mockRedis := testutils.NewMockRedisClient()
	// A slow ABC row write must not land after the newer DEF row
	mockRedis.PipelineSpy.ExecHook = func(cmds []string) error {
		if testutils.Contains(cmds, "SET latest:ABC", "SET latest:ratio") {
			time.Sleep(200 * time.Millisecond)
		}
		return nil
	}
	run(t, testConfig(2), msgs, mockRedis, time.Second)

	var latest models.AnalyticalRow
	if err := json.Unmarshal(mockRedis.PipelineSpy.Values["latest:ratio"], &latest); err != nil {
		t.Fatalf("latest:ratio is not a row: %v", err)
	}
	if latest.PriceDEF != 110 || !latest.Timestamp.Equal(t0.Add(2*time.Second)) {
		t.Errorf("latest:ratio holds a stale row: %+v", latest)
	}

	var prev time.Time
	for _, raw := range mockRedis.PipelineSpy.Messages("feed.ratio") {
		var row models.AnalyticalRow
		if err := json.Unmarshal(raw, &row); err != nil {
			t.Fatalf("feed.ratio carried invalid JSON: %v", err)
		}
		if row.Timestamp.Before(prev) {
			t.Errorf("Row at %v published after row at %v", row.Timestamp, prev)
		}
		prev = row.Timestamp
	}
}

func TestNewProcessor_RejectsBadRatioConfig(t *testing.T) {
	cfg := testConfig(1)
	cfg.Ratio.InstrumentB = "ABC"

	if _, err := processor.NewProcessor(cfg, zap.NewNop(), testutils.NewMockRedisClient(), &testutils.MockKafkaReader{}); err == nil {
		t.Error("Expected error for identical instruments")
	}
}
