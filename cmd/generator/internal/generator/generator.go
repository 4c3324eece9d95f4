package generator

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

const (
	// Mid prices wander +/- maxFluctuation around the base price
	maxFluctuation = 5.0
	maxHalfSpread  = 0.5
	maxSize        = 1000
)

// QuoteGenerator simulates the upstream quote feed for the tracked instruments
type QuoteGenerator struct {
	logger      *zap.Logger
	writer      KafkaWriter
	symbols     []string
	basePrices  map[string]float64
	rand        Rand
	clock       Clock
	interval    time.Duration
	seqCounters map[string]int64
}

func NewQuoteGenerator(
	logger *zap.Logger,
	writer KafkaWriter,
	basePrices map[string]float64,
	rnd Rand,
	clock Clock,
	interval time.Duration,
) *QuoteGenerator {
	symbols := make([]string, 0, len(basePrices))
	for s := range basePrices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	return &QuoteGenerator{
		logger:      logger,
		writer:      writer,
		symbols:     symbols,
		basePrices:  basePrices,
		rand:        rnd,
		clock:       clock,
		interval:    interval,
		seqCounters: make(map[string]int64),
	}
}

// Next builds the following snapshot without sending it
func (g *QuoteGenerator) Next() models.QuoteSnapshot {
	symbol := g.symbols[g.rand.Intn(len(g.symbols))]
	mid := g.basePrices[symbol] + (g.rand.Float64()*2-1)*maxFluctuation
	half := g.rand.Float64() * maxHalfSpread
	g.seqCounters[symbol]++

	return models.QuoteSnapshot{
		Symbol:    symbol,
		TopAsk:    &models.BookLevel{Price: mid + half, Size: int64(g.rand.Intn(maxSize)) + 1},
		TopBid:    &models.BookLevel{Price: mid - half, Size: int64(g.rand.Intn(maxSize)) + 1},
		Timestamp: g.clock.Now().UTC(),
		SeqID:     g.seqCounters[symbol],
	}
}

func (g *QuoteGenerator) Run(ctx context.Context) {
	g.logger.Info("Generator Started", zap.Strings("symbols", g.symbols))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(g.symbols) == 0 {
				g.clock.Sleep(1 * time.Second)
				continue
			}

			snap := g.Next()
			payload, err := json.Marshal(snap)
			if err != nil {
				g.logger.Error("JSON Marshal Error", zap.Error(err))
				continue
			}

			err = g.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(snap.Symbol), // partition ordering per symbol
				Value: payload,
			})
			if err != nil {
				g.logger.Error("Kafka Write Error", zap.Error(err))
			} else {
				g.logger.Debug("Sent snapshot",
					zap.String("symbol", snap.Symbol),
					zap.Float64("ask", snap.TopAsk.Price),
					zap.Float64("bid", snap.TopBid.Price),
				)
			}

			g.clock.Sleep(g.interval)
		}
	}
}
