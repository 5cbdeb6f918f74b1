package processor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/processor/internal/processor"
	"github.com/shubham-shewale/stock-tracker/cmd/processor/internal/testutils"
	"github.com/shubham-shewale/stock-tracker/pkg/config"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

func toMessages(events []models.AlertEvent) []kafka.Message {
	var msgs []kafka.Message
	for _, ev := range events {
		val, _ := json.Marshal(ev)
		msgs = append(msgs, kafka.Message{Key: []byte(ev.Symbol), Value: val})
	}
	return msgs
}

func run(t *testing.T, workers int, msgs []kafka.Message) *testutils.MockPipeline {
	t.Helper()
	mockReader := &testutils.MockKafkaReader{Messages: msgs}
	mockRedis := testutils.NewMockRedisClient()

	cfg := &config.Config{}
	cfg.Processor.NumWorkers = workers

	proc := processor.NewProcessor(cfg, zap.NewNop(), mockRedis, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := proc.Run(ctx); err != nil {
		t.Logf("Processor stopped: %v", err)
	}
	return mockRedis.PipelineSpy
}

func TestProcessor_WorkerLogic(t *testing.T) {
	events := []models.AlertEvent{
		{ID: "a1", Symbol: "AAPL", TargetPrice: 150, SeqID: 1, TriggeredAt: t0},
		{ID: "a1", Symbol: "AAPL", TargetPrice: 150, SeqID: 1, TriggeredAt: t0}, // redelivery
		{ID: "a2", Symbol: "AAPL", TargetPrice: 150, SeqID: 2, TriggeredAt: t0.Add(5 * time.Second)},
		{ID: "t1", Symbol: "TSLA", TargetPrice: 700, SeqID: 1, TriggeredAt: t0},
	}

	pipeline := run(t, 2, toMessages(events))

	pipeline.Mu.Lock()
	execs := pipeline.ExecCount
	pipeline.Mu.Unlock()
	if execs != 3 {
		t.Errorf("Expected 3 pipeline executions, got %d", execs)
	}

	if n := pipeline.Count("LPUSH alerts:history:AAPL"); n != 2 {
		t.Errorf("Expected 2 AAPL history pushes, got %d", n)
	}
	if n := pipeline.Count("LTRIM alerts:history:AAPL"); n != 2 {
		t.Errorf("History must be trimmed on every push, got %d trims", n)
	}
	if n := pipeline.Count("PUBLISH alerts.TSLA"); n != 1 {
		t.Errorf("Expected 1 TSLA publish, got %d", n)
	}
}

func TestProcessor_OutOfOrderEventsAreKept(t *testing.T) {
	// Two connections' streams publish concurrently, so partition order
	// need not follow seqId or trigger time.
	events := []models.AlertEvent{
		{ID: "b", Symbol: "AAPL", SeqID: 6, TriggeredAt: t0.Add(time.Millisecond)},
		{ID: "a", Symbol: "AAPL", SeqID: 5, TriggeredAt: t0},
		{ID: "c", Symbol: "AAPL", SeqID: 1, TriggeredAt: t0.Add(time.Minute)}, // gateway restarted
		{ID: "a", Symbol: "AAPL", SeqID: 5, TriggeredAt: t0},                  // redelivery
	}

	pipeline := run(t, 1, toMessages(events))

	if n := pipeline.Count("LPUSH alerts:history:AAPL"); n != 3 {
		t.Errorf("Expected every distinct alert event recorded once, got %d pushes", n)
	}
}

func TestProcessor_EventsWithoutID(t *testing.T) {
	events := []models.AlertEvent{
		{Symbol: "AAPL", SeqID: 1, TriggeredAt: t0},
		{Symbol: "AAPL", SeqID: 1, TriggeredAt: t0},
		{Symbol: "AAPL", SeqID: 2, TriggeredAt: t0},
	}

	pipeline := run(t, 1, toMessages(events))

	if n := pipeline.Count("LPUSH alerts:history:AAPL"); n != 2 {
		t.Errorf("Expected fallback key to drop only the repeat, got %d pushes", n)
	}
}

func TestProcessor_InvalidJSON(t *testing.T) {
	msgs := []kafka.Message{
		{Key: []byte("AAPL"), Value: []byte("{broken-json")},
		{Key: []byte("AAPL"), Value: []byte(`{"seqId":1}`)},
	}

	pipeline := run(t, 1, msgs)

	pipeline.Mu.Lock()
	defer pipeline.Mu.Unlock()
	if pipeline.ExecCount > 0 {
		t.Error("Should not execute Redis commands for unusable events")
	}
}

func TestProcessor_RedisFailureIsRetriedOnRedelivery(t *testing.T) {
	ev := models.AlertEvent{ID: "a1", Symbol: "AAPL", SeqID: 1, TriggeredAt: t0}
	mockReader := &testutils.MockKafkaReader{Messages: toMessages([]models.AlertEvent{ev, ev})}
	mockRedis := testutils.NewMockRedisClient()
	mockRedis.PipelineSpy.FailExec = true

	proc := processor.NewProcessor(&config.Config{Processor: config.ProcessorConfig{NumWorkers: 1}}, zap.NewNop(), mockRedis, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	proc.Run(ctx)

	mockRedis.PipelineSpy.Mu.Lock()
	defer mockRedis.PipelineSpy.Mu.Unlock()
	if mockRedis.PipelineSpy.ExecCount != 2 {
		t.Errorf("Failed write must not mark the event as seen, got %d execs", mockRedis.PipelineSpy.ExecCount)
	}
}
