package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func sampleRequest() domain.RemediationRequest {
	return domain.RemediationRequest{
		ID:         "rem-1",
		Origin:     domain.OriginAudit,
		AuditID:    "audit-1",
		QuestionID: "q1",
		UnitID:     "unit-9",
		Weight:     5,
		Deadline:   time.Date(2026, 5, 6, 14, 30, 0, 0, time.UTC),
		CreatedAt:  time.Date(2026, 5, 4, 14, 30, 0, 0, time.UTC),
	}
}

// --- Kafka ---

type fakeKafkaWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeKafkaWriter) Close() error { return nil }

func TestKafkaSink_Submit(t *testing.T) {
	fw := &fakeKafkaWriter{}
	sink := NewKafkaSinkWithWriter(fw)

	require.NoError(t, sink.Submit(context.Background(), sampleRequest()))

	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "audit-1", string(fw.msgs[0].Key))
	var got domain.RemediationRequest
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &got))
	assert.Equal(t, sampleRequest(), got)
	assert.Contains(t, fw.msgs[0].Headers, kafka.Header{Key: "origin", Value: []byte("AUDIT")})
}

func TestKafkaSink_WriteError(t *testing.T) {
	sink := NewKafkaSinkWithWriter(&fakeKafkaWriter{err: errors.New("broker down")})
	err := sink.Submit(context.Background(), sampleRequest())
	assert.ErrorContains(t, err, "broker down")
}

// --- RabbitMQ ---

type fakePublisher struct {
	key string
	msg amqp.Publishing
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.key = key
	f.msg = msg
	return nil
}

func TestRabbitSink_Submit(t *testing.T) {
	fp := &fakePublisher{}
	sink := NewRabbitSinkWithPublisher(fp, "maintenance.work_orders")

	require.NoError(t, sink.Submit(context.Background(), sampleRequest()))

	assert.Equal(t, "maintenance.work_orders", fp.key)
	assert.Equal(t, "rem-1", fp.msg.MessageId)
	assert.Equal(t, amqp.Persistent, fp.msg.DeliveryMode)
	assert.Equal(t, "application/json", fp.msg.ContentType)
	assert.NoError(t, sink.Close())
}

// --- gRPC ---

type fakeConn struct {
	method string
	req    *structpb.Struct
	reply  map[string]any
	err    error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.req = args.(*structpb.Struct)
	if f.err != nil {
		return f.err
	}
	if f.reply != nil {
		s, err := structpb.NewStruct(f.reply)
		if err != nil {
			return err
		}
		reply.(*structpb.Struct).Fields = s.Fields
	}
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not supported")
}

func TestGRPCSink_Submit(t *testing.T) {
	conn := &fakeConn{reply: map[string]any{"work_order_id": "WO-77"}}
	sink := NewGRPCSink(conn, "", 0)

	require.NoError(t, sink.Submit(context.Background(), sampleRequest()))

	assert.Equal(t, DefaultWorkOrderMethod, conn.method)
	assert.Equal(t, "q1", conn.req.GetFields()["question_id"].GetStringValue())
	assert.Equal(t, 5.0, conn.req.GetFields()["weight"].GetNumberValue())
}

func TestGRPCSink_Errors(t *testing.T) {
	t.Run("rejected in reply", func(t *testing.T) {
		sink := NewGRPCSink(&fakeConn{reply: map[string]any{"error": "unit unknown"}}, "", 0)
		assert.ErrorContains(t, sink.Submit(context.Background(), sampleRequest()), "unit unknown")
	})
	t.Run("resource exhausted is throttle", func(t *testing.T) {
		sink := NewGRPCSink(&fakeConn{err: status.Error(codes.ResourceExhausted, "slow down")}, "", 0)
		var tErr *ThrottleError
		assert.ErrorAs(t, sink.Submit(context.Background(), sampleRequest()), &tErr)
	})
}

// --- Mock ---

func TestMockSink(t *testing.T) {
	m := NewMockSink(zap.NewNop())
	require.NoError(t, m.Submit(context.Background(), sampleRequest()))
	assert.Len(t, m.Submitted(), 1)

	m.Fail = func(domain.RemediationRequest) error { return errors.New("boom") }
	assert.Error(t, m.Submit(context.Background(), sampleRequest()))
	assert.Len(t, m.Submitted(), 1)
}

// --- Reliability ---

type scriptedSink struct {
	mu    sync.Mutex
	calls int
	errs  []error // ошибка на i-й вызов, дальше успех
}

func (s *scriptedSink) Submit(context.Context, domain.RemediationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return nil
}

func fastConfig() ReliabilityConfig {
	return ReliabilityConfig{RatePerSecond: 1000, Burst: 100, RetryDelay: time.Millisecond}
}

func TestReliabilityWrapper_RetriesTransientFailure(t *testing.T) {
	next := &scriptedSink{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	w := NewReliabilityWrapper(next, fastConfig())

	require.NoError(t, w.Submit(context.Background(), sampleRequest()))
	assert.Equal(t, 3, next.calls)
}

func TestReliabilityWrapper_HonoursThrottle(t *testing.T) {
	next := &scriptedSink{errs: []error{&ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("429")}}}
	w := NewReliabilityWrapper(next, fastConfig())

	require.NoError(t, w.Submit(context.Background(), sampleRequest()))
	assert.Equal(t, 2, next.calls)
}

func TestReliabilityWrapper_OpensBreaker(t *testing.T) {
	fail := errors.New("maintenance down")
	next := &scriptedSink{errs: []error{fail, fail, fail, fail}}
	var states []gobreaker.State
	cfg := fastConfig()
	cfg.Attempts = 1
	cfg.CBMaxFailures = 2
	cfg.OnStateChange = func(s gobreaker.State) { states = append(states, s) }
	w := NewReliabilityWrapper(next, cfg)

	assert.Error(t, w.Submit(context.Background(), sampleRequest()))
	assert.Error(t, w.Submit(context.Background(), sampleRequest()))
	err := w.Submit(context.Background(), sampleRequest())

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls, "open breaker must not reach the sink")
	assert.Equal(t, gobreaker.StateOpen, w.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, states)
}
