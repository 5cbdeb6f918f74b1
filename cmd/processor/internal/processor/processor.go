package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/pkg/config"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

const (
	defaultHistoryLimit = 100
	// recentWindow is how many event IDs each worker remembers for redelivery checks.
	recentWindow = 4096
)

// Processor consumes alertTriggered events and keeps a bounded per-symbol
// history in Redis, re-publishing each event on the symbol's alert channel.
type Processor struct {
	logger       Logger
	rdb          RedisClient
	reader       KafkaReader
	numWorkers   int
	historyLimit int64
}

func NewProcessor(cfg *config.Config, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	numWorkers := cfg.Processor.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	limit := cfg.Processor.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Processor{
		logger:       logger,
		rdb:          rdb,
		reader:       reader,
		numWorkers:   numWorkers,
		historyLimit: int64(limit),
	}
}

func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers), zap.Int64("history_limit", p.historyLimit))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Same symbol always lands on the same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				p.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")
	<-readerDone

	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()

	// Redeliveries of a symbol always land on this worker
	recent := newRecentIDs(recentWindow)

	for payload := range msgs {
		var ev models.AlertEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}
		if ev.Symbol == "" {
			p.logger.Warn("Alert event without symbol", zap.String("id", ev.ID))
			continue
		}

		key := eventKey(ev)
		if recent.Contains(key) {
			p.logger.Debug("Skipping duplicate alert", zap.String("symbol", ev.Symbol), zap.String("id", ev.ID))
			continue
		}

		if err := p.record(ctx, ev, payload); err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", ev.Symbol))
			continue
		}
		p.logger.Debug("Recorded", zap.String("symbol", ev.Symbol), zap.Int("worker_id", id), zap.Int64("seq_id", ev.SeqID))
		recent.Add(key)
	}
}

// record prepends the event to the symbol history, trims it and fans it out.
func (p *Processor) record(ctx context.Context, ev models.AlertEvent, payload []byte) error {
	key := models.AlertHistoryKey(ev.Symbol)

	var pipe Pipeliner = p.rdb.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, p.historyLimit-1)
	pipe.Publish(ctx, models.AlertChannel(ev.Symbol), payload)

	_, err := pipe.Exec(ctx)
	return err
}

// eventKey identifies an event across redeliveries. Events without an ID
// fall back to their symbol, sequence and trigger time.
func eventKey(ev models.AlertEvent) string {
	if ev.ID != "" {
		return ev.ID
	}
	return fmt.Sprintf("%s/%d/%d", ev.Symbol, ev.SeqID, ev.TriggeredAt.UnixNano())
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
