// Package kafkautil holds the Kafka plumbing shared by the gateway and the processor.
package kafkautil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrTopicNotReady = errors.New("topic not ready")

// Sleeper lets tests skip the readiness back-off.
type Sleeper interface {
	Sleep(d time.Duration)
}

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (Conn, error)
}

type Conn interface {
	Controller() (kafka.Broker, error)
	Close() error
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
}

type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// RealConn adapts a *kafka.Conn.
type RealConn struct{ *kafka.Conn }

func (c *RealConn) Controller() (kafka.Broker, error) { return c.Conn.Controller() }
func (c *RealConn) Close() error                      { return c.Conn.Close() }
func (c *RealConn) CreateTopics(topics ...kafka.TopicConfig) error {
	return c.Conn.CreateTopics(topics...)
}
func (c *RealConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	return c.Conn.ReadPartitions(topics...)
}

// RealDialer adapts a *kafka.Dialer.
type RealDialer struct{ *kafka.Dialer }

func (d *RealDialer) DialContext(ctx context.Context, network, address string) (Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &RealConn{Conn: conn}, nil
}

// TopicCreator makes sure a topic exists before producers and consumers attach.
type TopicCreator struct {
	logger     *zap.Logger
	dialer     Dialer
	sleeper    Sleeper
	partitions int
	retries    int
	backoff    time.Duration
}

func NewTopicCreator(logger *zap.Logger, dialer Dialer, sleeper Sleeper) *TopicCreator {
	return &TopicCreator{
		logger:     logger,
		dialer:     dialer,
		sleeper:    sleeper,
		partitions: 4,
		retries:    5,
		backoff:    200 * time.Millisecond,
	}
}

// NewDefaultTopicCreator dials with kafka-go's defaults.
func NewDefaultTopicCreator(logger *zap.Logger) *TopicCreator {
	return NewTopicCreator(logger, &RealDialer{Dialer: kafka.DefaultDialer}, RealSleeper{})
}

// Ensure creates the topic through the cluster controller and waits for its partitions.
// An "already exists" answer from the controller is not an error.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, topic string) error {
	var conn Conn
	err := errors.New("no brokers configured")

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
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     tc.partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		tc.logger.Info("Topic creation finished (might already exist)", zap.String("topic", topic), zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topic))
	}

	return tc.waitForTopic(ctx, conn, topic)
}

func (tc *TopicCreator) waitForTopic(ctx context.Context, conn Conn, topic string) error {
	for i := 0; i < tc.retries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tc.sleeper.Sleep(tc.backoff)
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTopicNotReady, topic)
}
