package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/habitledger/internal/outbox"
	"example.com/habitledger/pkg/events"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"habit_id":"abc","completed":true}`)
	msg := framedMessage("habit_completion_toggled", 10, 42, payload, events.HabitCompletionToggledType, "abc")

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(consumedEvents.WithLabelValues("habit_completion_toggled", events.HabitCompletionToggledType, resultHandled))

	err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.HabitCompletionToggledType, handler.last.EventType)
	require.Equal(t, "abc", handler.last.AggregateID)
	require.Equal(t, "habit_completion_toggled-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.Equal(t, int64(10), handler.last.Offset)
	require.JSONEq(t, string(payload), string(handler.last.Payload))

	after := testutil.ToFloat64(consumedEvents.WithLabelValues("habit_completion_toggled", events.HabitCompletionToggledType, resultHandled))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	msg := framedMessage("habit_deleted", 20, 99, []byte(`{"habit_id":"def"}`), events.HabitDeletedType, "def")

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: errors.New("boom")}
	before := testutil.ToFloat64(consumedEvents.WithLabelValues("habit_deleted", events.HabitDeletedType, resultHandlerError))

	err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
	require.InDelta(t, before+1, testutil.ToFloat64(consumedEvents.WithLabelValues("habit_deleted", events.HabitDeletedType, resultHandlerError)), 0.0001)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	cases := map[string]kafka.Message{
		"short frame":    {Topic: "habit_created", Value: []byte{0, 1}},
		"missing header": {Topic: "habit_created", Value: frame(1, []byte(`{}`))},
		"bad magic byte": {Topic: "habit_created", Value: append([]byte{1}, frame(1, []byte(`{}`))[1:]...), Headers: eventHeaders(events.HabitCreatedType, "x")},
		"invalid json":   {Topic: "habit_created", Value: frame(1, []byte(`{`)), Headers: eventHeaders(events.HabitCreatedType, "x")},
	}

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			reader := &stubReader{messages: []kafka.Message{msg}}
			handler := &stubHandler{}
			before := testutil.ToFloat64(consumedEvents.WithLabelValues("habit_created", malformedEventType, resultMalformed))

			err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(context.Background())
			require.ErrorIs(t, err, context.Canceled)

			require.Zero(t, handler.calls)
			require.Equal(t, 1, reader.commitCalls)
			require.InDelta(t, before+1, testutil.ToFloat64(consumedEvents.WithLabelValues("habit_created", malformedEventType, resultMalformed)), 0.0001)
		})
	}
}

func TestProcessorStopsWhenReaderIsClosed(t *testing.T) {
	reader := &stubReader{after: func() error { return io.EOF }}
	err := NewProcessor(reader, &stubHandler{}, WithLogger(testLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestProcessorHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &stubReader{messages: []kafka.Message{framedMessage("habit_created", 1, 1, []byte(`{}`), events.HabitCreatedType, "a")}}
	handler := &stubHandler{}
	err := NewProcessor(reader, handler).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, handler.calls)
}

func TestRecordHandledObservesLag(t *testing.T) {
	now := time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)
	before := testutil.CollectAndCount(eventLag)

	recordHandled(Message{Topic: "habit_created", EventType: "habit.lag_sample", Timestamp: now.Add(-3 * time.Second)}, now)
	require.Equal(t, before+1, testutil.CollectAndCount(eventLag))

	// Records without a timestamp count as handled but add no lag sample.
	recordHandled(Message{Topic: "habit_created", EventType: "habit.no_timestamp"}, now)
	require.Equal(t, before+1, testutil.CollectAndCount(eventLag))
	require.Equal(t, 1.0, testutil.ToFloat64(consumedEvents.WithLabelValues("habit_created", "habit.no_timestamp", resultHandled)))
}

func TestHandlerFunc(t *testing.T) {
	var got Message
	h := HandlerFunc(func(_ context.Context, msg Message) error {
		got = msg
		return nil
	})
	require.NoError(t, h.Handle(context.Background(), Message{EventType: events.HabitCreatedType}))
	require.Equal(t, events.HabitCreatedType, got.EventType)
}

func framedMessage(topic string, offset int64, schemaID int, payload []byte, eventType, aggregateID string) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Offset:  offset,
		Time:    time.Now().UTC(),
		Value:   frame(schemaID, payload),
		Headers: append(eventHeaders(eventType, aggregateID), kafka.Header{Key: outbox.HeaderSchemaSubject, Value: []byte(topic + "-value")}),
	}
}

func frame(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func eventHeaders(eventType, aggregateID string) []kafka.Header {
	return []kafka.Header{
		{Key: outbox.HeaderEventType, Value: []byte(eventType)},
		{Key: outbox.HeaderAggregateID, Value: []byte(aggregateID)},
	}
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
