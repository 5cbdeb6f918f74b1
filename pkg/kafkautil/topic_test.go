package kafkautil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/pkg/kafkautil"
)

type mockConn struct {
	createdTopics []string
	createErr     error
	readyAfter    int
	reads         int
}

func (m *mockConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *mockConn) Close() error { return nil }
func (m *mockConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.createdTopics = append(m.createdTopics, t.Topic)
	}
	return m.createErr
}
func (m *mockConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	m.reads++
	if m.reads <= m.readyAfter {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

type mockDialer struct {
	conn    *mockConn
	failFor map[string]bool
	dialed  []string
}

func (m *mockDialer) DialContext(ctx context.Context, network, address string) (kafkautil.Conn, error) {
	m.dialed = append(m.dialed, address)
	if m.failFor[address] {
		return nil, errors.New("connection refused")
	}
	return m.conn, nil
}

type nopSleeper struct{ slept time.Duration }

func (s *nopSleeper) Sleep(d time.Duration) { s.slept += d }

func TestTopicCreator_Ensure(t *testing.T) {
	dialer := &mockDialer{conn: &mockConn{}, failFor: map[string]bool{"down:9092": true}}
	tc := kafkautil.NewTopicCreator(zap.NewNop(), dialer, &nopSleeper{})

	err := tc.Ensure(context.Background(), []string{"down:9092", "up:9092"}, "price_alerts")
	require.NoError(t, err)

	assert.Equal(t, []string{"down:9092", "up:9092", "localhost:9092"}, dialer.dialed)
	assert.Equal(t, []string{"price_alerts"}, dialer.conn.createdTopics)
}

func TestTopicCreator_AlreadyExists(t *testing.T) {
	conn := &mockConn{createErr: kafka.TopicAlreadyExists, readyAfter: 2}
	sleeper := &nopSleeper{}
	tc := kafkautil.NewTopicCreator(zap.NewNop(), &mockDialer{conn: conn}, sleeper)

	require.NoError(t, tc.Ensure(context.Background(), []string{"b:9092"}, "price_alerts"))
	assert.Equal(t, 3, conn.reads)
	assert.Equal(t, 600*time.Millisecond, sleeper.slept)
}

func TestTopicCreator_NeverReady(t *testing.T) {
	conn := &mockConn{readyAfter: 100}
	tc := kafkautil.NewTopicCreator(zap.NewNop(), &mockDialer{conn: conn}, &nopSleeper{})

	err := tc.Ensure(context.Background(), []string{"b:9092"}, "price_alerts")
	assert.ErrorIs(t, err, kafkautil.ErrTopicNotReady)
}

func TestTopicCreator_NoBrokerReachable(t *testing.T) {
	dialer := &mockDialer{failFor: map[string]bool{"a:9092": true}}
	tc := kafkautil.NewTopicCreator(zap.NewNop(), dialer, &nopSleeper{})

	assert.Error(t, tc.Ensure(context.Background(), []string{"a:9092"}, "t"))
	assert.Error(t, tc.Ensure(context.Background(), nil, "t"))
}
