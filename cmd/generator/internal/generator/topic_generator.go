package generator

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	// One partition per tracked instrument is enough to keep per-symbol order
	defaultPartitions = 2
	readyAttempts     = 5
	readyBackoff      = 200 * time.Millisecond
)

// TopicCreator makes sure the quote topic exists before the feed starts
type TopicCreator struct {
	logger     *zap.Logger
	dialer     KafkaDialer
	clock      Clock
	partitions int
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, clock Clock) *TopicCreator {
	return &TopicCreator{
		logger:     logger,
		dialer:     dialer,
		clock:      clock,
		partitions: defaultPartitions,
	}
}

// Create returns an error only when no broker or controller could be reached.
// A failed CreateTopics usually means the topic already exists and is logged.
func (tc *TopicCreator) Create(brokers []string, topic string) error {
	ctx := context.Background()
	var conn KafkaConn
	err := fmt.Errorf("no brokers configured")

	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("dial brokers: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     tc.partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		tc.logger.Info("Topic creation finished (might already exist)", zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topic))
	}

	tc.waitForTopic(conn, topic)
	return nil
}

func (tc *TopicCreator) waitForTopic(conn KafkaConn, topic string) {
	tc.logger.Info("Waiting for topic initialization...", zap.String("topic", topic))
	for i := 0; i < readyAttempts; i++ {
		tc.clock.Sleep(readyBackoff)
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.Int("partitions", len(partitions)))
			return
		}
	}
	tc.logger.Warn("Timed out waiting for topic", zap.String("topic", topic))
}
