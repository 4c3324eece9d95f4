package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/internal/ratio"
	"github.com/shubham-shewale/stock-ratio/pkg/config"
	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

const (
	KeyPrefix     = "latest:"
	ChannelPrefix = "feed."
	// RatioTopic names the key and channel carrying analytical rows
	RatioTopic = "ratio"

	stateTTL = 1 * time.Hour
)

type Processor struct {
	cfg        *config.Config
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	generator  *ratio.Generator
	tracker    *ratio.Tracker
	numWorkers int

	// rowMu orders pairing and the ratio write across workers, so
	// latest:ratio and feed.ratio only ever move forward.
	rowMu sync.Mutex
}

func NewProcessor(cfg *config.Config, logger Logger, rdb RedisClient, reader KafkaReader) (*Processor, error) {
	gen, err := ratio.NewGenerator(cfg.Ratio.InstrumentA, cfg.Ratio.InstrumentB, cfg.Ratio.Delta)
	if err != nil {
		return nil, fmt.Errorf("build row generator: %w", err)
	}
	if cfg.Processor.NumWorkers <= 0 {
		return nil, fmt.Errorf("num_workers must be positive, got %d", cfg.Processor.NumWorkers)
	}

	return &Processor{
		cfg:        cfg,
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		generator:  gen,
		tracker:    ratio.NewTracker(cfg.Ratio.InstrumentA, cfg.Ratio.InstrumentB),
		numWorkers: cfg.Processor.NumWorkers,
	}, nil
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
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Same symbol always goes to the same worker, preserving per-symbol order
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// Latest beats complete for quotes
				inputsRejected.WithLabelValues("backpressure").Inc()
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
	// Not the Run ctx: a shutdown must not cancel a Redis write halfway
	ctx := context.Background()

	// Only valid because of deterministic sharding
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var snap models.QuoteSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			inputsRejected.WithLabelValues("decode").Inc()
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}

		// SeqID 0 means the feed does not sequence this symbol
		if snap.SeqID != 0 && snap.SeqID <= lastSeq[snap.Symbol] {
			p.logger.Debug("Skipping duplicate update", zap.String("symbol", snap.Symbol), zap.Int64("seq_id", snap.SeqID))
			continue
		}

		row, ok, err := p.write(ctx, snap, payload)
		if err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", snap.Symbol))
			continue
		}

		if snap.SeqID != 0 {
			lastSeq[snap.Symbol] = snap.SeqID
		}
		snapshotsProcessed.WithLabelValues(snap.Symbol).Inc()
		p.logger.Debug("Processed", zap.String("symbol", snap.Symbol), zap.Int("worker_id", id))

		if ok {
			rowsGenerated.Inc()
			lastRatio.Set(row.Ratio)
			if row.Alerting() {
				alertsTriggered.Inc()
				p.logger.Info("Ratio outside bounds",
					zap.Float64("ratio", row.Ratio),
					zap.Float64("upper_bound", row.UpperBound),
					zap.Float64("lower_bound", row.LowerBound),
				)
			}
		}
	}
}

// write stores snap and, when it completes a pair, the resulting row in one
// pipeline. The row is reported only if the pipeline succeeded.
func (p *Processor) write(ctx context.Context, snap models.QuoteSnapshot, payload []byte) (models.AnalyticalRow, bool, error) {
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, KeyPrefix+snap.Symbol, payload, stateTTL)
	pipe.Publish(ctx, ChannelPrefix+snap.Symbol, payload)

	p.rowMu.Lock()
	row, ok := p.nextRow(snap)
	if !ok {
		// Snapshot-only writes are ordered per symbol by sharding
		p.rowMu.Unlock()
		_, err := pipe.Exec(ctx)
		return models.AnalyticalRow{}, false, err
	}
	defer p.rowMu.Unlock()

	rowPayload, err := json.Marshal(row)
	if err != nil {
		p.logger.Error("Row Marshal Error", zap.Error(err))
		_, err = pipe.Exec(ctx)
		return models.AnalyticalRow{}, false, err
	}
	pipe.Set(ctx, KeyPrefix+RatioTopic, rowPayload, stateTTL)
	pipe.Publish(ctx, ChannelPrefix+RatioTopic, rowPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return models.AnalyticalRow{}, false, err
	}
	return row, true, nil
}

// nextRow pairs snap with the other instrument's latest snapshot
func (p *Processor) nextRow(snap models.QuoteSnapshot) (models.AnalyticalRow, bool) {
	pair, ready := p.tracker.Observe(snap)
	if !ready {
		return models.AnalyticalRow{}, false
	}

	row, err := p.generator.Generate(pair)
	switch {
	case errors.Is(err, ratio.ErrInvalidInput):
		inputsRejected.WithLabelValues("invalid_input").Inc()
		p.logger.Warn("Invalid snapshot pair", zap.Error(err))
		return models.AnalyticalRow{}, false
	case errors.Is(err, ratio.ErrArithmeticAnomaly):
		inputsRejected.WithLabelValues("arithmetic").Inc()
		p.logger.Warn("Ratio not computable", zap.Error(err))
		return models.AnalyticalRow{}, false
	case err != nil:
		p.logger.Error("Row generation failed", zap.Error(err))
		return models.AnalyticalRow{}, false
	}
	return row, true
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
