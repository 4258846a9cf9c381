package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnf-signal-lab/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testAlert() *Alert {
	target := 110.0
	return &Alert{
		Match: &domain.PatternMatch{
			ID:           "abc123",
			InstrumentID: "BTCUSDT",
			Kind:         domain.PatternTripleTopBuy,
			Direction:    domain.SignalBuy,
			TriggerPrice: 101.2,
			TriggerTime:  1_700_000_000_000,
			Level:        100,
			Target:       &target,
		},
		Matrix:      &domain.MatrixResult{InstrumentID: "BTCUSDT", TotalScore: 7, Strength: "BULLISH"},
		Super:       true,
		PublishedAt: 1_700_000_000_500,
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "alerts", timeout: time.Second}

	require.NoError(t, p.Publish(context.Background(), testAlert()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "BTCUSDT", string(msg.Key))
	assert.Equal(t, "alert_id", msg.Headers[0].Key)
	assert.Equal(t, "abc123", string(msg.Headers[0].Value))

	var got Alert
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, domain.PatternTripleTopBuy, got.Match.Kind)
	assert.Equal(t, 7, got.Matrix.TotalScore)
	assert.True(t, got.Super)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, topic: "alerts", timeout: time.Second}

	err := p.Publish(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	assert.Error(t, p.Publish(context.Background(), &Alert{}))

	_, err = NewKafkaPublisher(nil, "alerts")
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	p := NewLogPublisher(&l)

	require.NoError(t, p.Publish(context.Background(), testAlert()))
	out := buf.String()
	for _, want := range []string{`"alert_id":"abc123"`, `"kind":"TRIPLE_TOP_BUY"`, `"target":110`, `"matrix_score":7`} {
		assert.True(t, strings.Contains(out, want), "missing %s in %s", want, out)
	}

	assert.NoError(t, NewLogPublisher(nil).Publish(context.Background(), testAlert()))
}

type countingPublisher struct {
	n   int
	err error
}

func (c *countingPublisher) Name() string { return "counting" }
func (c *countingPublisher) Publish(context.Context, *Alert) error {
	c.n++
	return c.err
}
func (c *countingPublisher) Close() error { return c.err }

func TestMulti(t *testing.T) {
	ok := &countingPublisher{}
	bad := &countingPublisher{err: errors.New("nope")}
	m := Multi{ok, bad}

	err := m.Publish(context.Background(), testAlert())
	require.Error(t, err)
	assert.Equal(t, 1, ok.n)
	assert.Equal(t, 1, bad.n)
	assert.Error(t, m.Close())
}
