package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func nopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader hands out its queue and then blocks until the context is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("writes keyed json with headers", func(t *testing.T) {
		w := &fakeWriter{}
		p := newProducer(w, "match-notifications", nopLogger())

		err := p.Publish(ctx, Event{Type: "match.found", Key: "q1", Payload: map[string]any{"query_id": "q1"}})
		require.NoError(t, err)
		require.Len(t, w.messages, 1)

		msg := w.messages[0]
		assert.Equal(t, "match-notifications", msg.Topic)
		assert.Equal(t, "q1", string(msg.Key))
		assert.JSONEq(t, `{"query_id":"q1"}`, string(msg.Value))
		assert.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte("match.found")})
		assert.Contains(t, msg.Headers, kafka.Header{Key: "schema_version", Value: []byte(SchemaVersion)})
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		w := &fakeWriter{}
		require.NoError(t, newProducer(w, "t", nopLogger()).PublishBatch(ctx, nil))
		assert.Empty(t, w.messages)
	})

	t.Run("write errors surface", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker down")}
		err := newProducer(w, "t", nopLogger()).Publish(ctx, Event{Type: "x", Payload: 1})
		assert.EqualError(t, err, "broker down")
	})
}

func TestConsumerCommitPolicy(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Topic: "t", Offset: 1, Value: []byte("ok")},
		kafka.Message{Topic: "t", Offset: 2, Value: []byte("bad")},
		kafka.Message{Topic: "t", Offset: 3, Value: []byte("retry")},
		kafka.Message{Topic: "t", Offset: 4, Value: []byte("ok"), Headers: []kafka.Header{{Key: "event_type", Value: []byte("e")}}},
	)

	var seen []string
	handler := func(_ context.Context, msg *IncomingMessage) error {
		seen = append(seen, string(msg.Value)+":"+msg.EventType())
		switch string(msg.Value) {
		case "bad":
			return Permanent(errors.New("malformed"))
		case "retry":
			return errors.New("store unavailable")
		}
		return nil
	}

	c := newConsumer(reader, "t", nopLogger(), handler)
	require.NoError(t, c.Start(context.Background()))
	<-reader.drained
	require.NoError(t, c.Stop())

	assert.Equal(t, []string{"ok:", "bad:", "retry:", "ok:e"}, seen)
	assert.Equal(t, []int64{1, 2, 4}, reader.committed)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	msg := &IncomingMessage{Topic: "t", Value: []byte(`{"query_id":"q1","candidate_id":1,"extra":true}`)}
	var rec models.FeedbackRecord
	err := msg.Decode(&rec)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(errors.New("plain")))
	assert.Nil(t, Permanent(nil))
}

type fakeInserter struct {
	records []models.CandidateRecord
	err     error
}

func (f *fakeInserter) Insert(_ context.Context, rec models.CandidateRecord) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.records = append(f.records, rec)
	return true, nil
}

func message(t *testing.T, v any) *IncomingMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &IncomingMessage{Topic: "t", Value: data}
}

func TestCandidateIntake(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes publish date and stores", func(t *testing.T) {
		ins := &fakeInserter{}
		handler := CandidateIntake(ins, nopLogger())

		err := handler(ctx, message(t, map[string]any{
			"id": 42, "publish_date": "Published 2019-04-12 09:00", "city": "Ottawa", "source": "dcn",
		}))
		require.NoError(t, err)
		require.Len(t, ins.records, 1)
		assert.Equal(t, int64(42), ins.records[0].ID)
		assert.Equal(t, "2019-04-12", ins.records[0].PublishDate)
	})

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing id", map[string]any{"publish_date": "2019-04-12", "source": "dcn"}},
		{"missing source", map[string]any{"id": 1, "publish_date": "2019-04-12"}},
		{"unparseable date", map[string]any{"id": 1, "publish_date": "April 12", "source": "dcn"}},
		{"unknown field", map[string]any{"id": 1, "publish_date": "2019-04-12", "source": "dcn", "tenant": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := &fakeInserter{}
			err := CandidateIntake(ins, nopLogger())(ctx, message(t, tt.payload))
			require.Error(t, err)
			assert.True(t, IsPermanent(err))
			assert.Empty(t, ins.records)
		})
	}

	t.Run("store errors are retried", func(t *testing.T) {
		ins := &fakeInserter{err: errors.New("db down")}
		err := CandidateIntake(ins, nopLogger())(ctx, message(t, map[string]any{"id": 1, "publish_date": "2019-04-12", "source": "dcn"}))
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
	})
}

type fakeRecorder struct {
	records []models.FeedbackRecord
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, rec models.FeedbackRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func TestFeedbackIntake(t *testing.T) {
	ctx := context.Background()
	payload := map[string]any{"query_id": "q1", "candidate_id": 7, "ground_truth": 1}

	rec := &fakeRecorder{}
	require.NoError(t, FeedbackIntake(rec, nopLogger())(ctx, message(t, payload)))
	require.Len(t, rec.records, 1)
	assert.Equal(t, 1, rec.records[0].GroundTruth)

	rejected := &fakeRecorder{err: httperror.NewHTTPError(http.StatusNotFound, "query record q1 does not exist")}
	err := FeedbackIntake(rejected, nopLogger())(ctx, message(t, payload))
	assert.True(t, IsPermanent(err))

	failing := &fakeRecorder{err: httperror.NewHTTPError(http.StatusInternalServerError, "db down")}
	err = FeedbackIntake(failing, nopLogger())(ctx, message(t, payload))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
