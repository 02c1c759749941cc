// README: Notifier, broker and transport adapter tests.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []Envelope
	err  error
}

func (r *recordingTransport) Send(_ context.Context, e Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, e)
	return r.err
}

func (r *recordingTransport) Close() error { return nil }

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestParseRoom(t *testing.T) {
	cases := []struct {
		room string
		role string
		id   string
		ok   bool
	}{
		{"vendor-v1", "vendor", "v1", true},
		{"customer-abc-def", "customer", "abc-def", true},
		{"delivery-p9", "delivery", "p9", true},
		{"delivery-", "", "", false},
		{"admin-1", "", "", false},
	}
	for _, tc := range cases {
		role, id, ok := ParseRoom(tc.room)
		if role != tc.role || string(id) != tc.id || ok != tc.ok {
			t.Errorf("ParseRoom(%q) = %q %q %v", tc.room, role, id, ok)
		}
	}
	if VendorRoom("v1") != "vendor-v1" || CustomerRoom("c1") != "customer-c1" || DeliveryRoom("p1") != "delivery-p1" {
		t.Fatal("room helpers disagree with ParseRoom prefixes")
	}
}

func TestNotifierDelivers(t *testing.T) {
	tr := &recordingTransport{}
	n := NewNotifier(tr, 8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { n.Run(ctx); close(done) }()

	n.Publish(context.Background(), "vendor-v1", EventNewOrder, map[string]any{"orderId": "o1"})
	n.Publish(context.Background(), "customer-c1", EventStatusUpdated, map[string]any{"status": "accepted"})
	waitFor(t, func() bool { return tr.count() == 2 })
	cancel()
	<-done

	first := tr.sent[0]
	if first.Room != "vendor-v1" || first.Event != EventNewOrder || first.ID == "" || first.PublishedAt.IsZero() {
		t.Fatalf("unexpected envelope %+v", first)
	}
	var payload map[string]string
	if err := json.Unmarshal(first.Payload, &payload); err != nil || payload["orderId"] != "o1" {
		t.Fatalf("payload = %s (%v)", first.Payload, err)
	}
	if tr.sent[0].ID == tr.sent[1].ID {
		t.Fatal("envelope IDs must be unique")
	}
}

func TestNotifierSwallowsTransportErrors(t *testing.T) {
	tr := &recordingTransport{err: errors.New("broker down")}
	n := NewNotifier(tr, 8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.Publish(ctx, "vendor-v1", EventNewOrder, nil)
	n.Publish(ctx, "vendor-v1", EventNewOrder, nil)
	waitFor(t, func() bool { return tr.count() == 2 })
}

func TestNotifierDropsWhenFull(t *testing.T) {
	tr := &recordingTransport{}
	n := NewNotifier(tr, 2, zerolog.Nop())
	for i := 0; i < 5; i++ {
		n.Publish(context.Background(), "vendor-v1", EventNewOrder, i)
	}
	if n.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", n.Dropped())
	}

	// cancelled before start: queued events are still flushed
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)
	if tr.count() != 2 {
		t.Fatalf("flushed %d events, want 2", tr.count())
	}
}

func TestNotifierSkipsUnencodablePayload(t *testing.T) {
	tr := &recordingTransport{}
	n := NewNotifier(tr, 2, zerolog.Nop())
	n.Publish(context.Background(), "vendor-v1", EventNewOrder, make(chan int))
	if len(n.queue) != 0 {
		t.Fatal("unencodable payload was queued")
	}
}

func TestBrokerSubscribe(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	vendor, cancelVendor, _ := b.Subscribe(ctx, "vendor-v1")
	other, cancelOther, _ := b.Subscribe(ctx, "vendor-v2")
	defer cancelOther()

	_ = b.Send(ctx, Envelope{Room: "vendor-v1", Event: EventNewOrder})
	select {
	case e := <-vendor:
		if e.Event != EventNewOrder {
			t.Fatalf("unexpected event %s", e.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
	select {
	case e := <-other:
		t.Fatalf("other room received %+v", e)
	default:
	}

	cancelVendor()
	cancelVendor()
	if _, ok := <-vendor; ok {
		t.Fatal("channel not closed after cancel")
	}
	if err := b.Send(ctx, Envelope{Room: "vendor-v1"}); err != nil {
		t.Fatalf("send after unsubscribe: %v", err)
	}
}

func TestBrokerDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	_, cancel, _ := b.Subscribe(context.Background(), "vendor-v1")
	defer cancel()
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			_ = b.Send(context.Background(), Envelope{Room: "vendor-v1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full subscriber")
	}
}

func TestMulti(t *testing.T) {
	ok := &recordingTransport{}
	bad := &recordingTransport{err: errors.New("boom")}
	m := Multi{ok, bad}
	err := m.Send(context.Background(), Envelope{Room: "vendor-v1"})
	if err == nil || ok.count() != 1 || bad.count() != 1 {
		t.Fatalf("multi send: err=%v ok=%d bad=%d", err, ok.count(), bad.count())
	}
}

type fakeKafkaWriter struct {
	msgs []kafka.Message
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error { return nil }

func TestKafkaTransport(t *testing.T) {
	w := &fakeKafkaWriter{}
	tr := &KafkaTransport{writer: w}
	e := Envelope{ID: "e1", Room: "customer-c1", Event: EventStatusUpdated, Payload: json.RawMessage(`{"status":"ready"}`)}
	if err := tr.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "customer-c1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	if h := w.msgs[0].Headers; len(h) != 1 || string(h[0].Value) != EventStatusUpdated {
		t.Fatalf("unexpected headers %+v", h)
	}
	var got Envelope
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil || got.ID != "e1" {
		t.Fatalf("value = %s (%v)", w.msgs[0].Value, err)
	}
}

type fakeAMQP struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (f *fakeAMQP) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeAMQP) Close() error { return nil }

func TestAMQPTransport(t *testing.T) {
	ch := &fakeAMQP{}
	tr := &AMQPTransport{ch: ch, exchange: DefaultExchange}
	if err := tr.Send(context.Background(), Envelope{ID: "e1", Room: "delivery-p1", Event: EventDeliveryRequest}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch.exchange != DefaultExchange || ch.key != "delivery-p1" || ch.msg.Type != EventDeliveryRequest || ch.msg.MessageId != "e1" {
		t.Fatalf("unexpected publish %s %s %+v", ch.exchange, ch.key, ch.msg)
	}
	if ch.msg.DeliveryMode != amqp.Persistent || ch.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing options %+v", ch.msg)
	}
}

type fakeMessenger struct {
	got *messaging.Message
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.got = m
	return "projects/x/messages/1", nil
}

func TestFCMTransport(t *testing.T) {
	m := &fakeMessenger{}
	tr := &FCMTransport{client: m}
	e := Envelope{ID: "e1", Room: "vendor-v1", Event: EventOrderRated, Payload: json.RawMessage(`{"orderId":"o1"}`)}
	if err := tr.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.got.Topic != "vendor-v1" || m.got.Data["event"] != EventOrderRated || m.got.Data["payload"] != `{"orderId":"o1"}` {
		t.Fatalf("unexpected message %+v", m.got)
	}
}

func TestRedisTransportRoundTrip(t *testing.T) {
	addr := os.Getenv("STREETEATS_TEST_REDIS")
	if addr == "" {
		t.Skip("STREETEATS_TEST_REDIS not set; skipping Redis pub/sub test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	tr := NewRedisTransport(client)

	ctx := context.Background()
	ch, cancel, err := tr.Subscribe(ctx, "vendor-rt")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := tr.Send(ctx, Envelope{ID: "e1", Room: "vendor-rt", Event: EventNewOrder, Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case e := <-ch:
		if e.ID != "e1" || e.Event != EventNewOrder {
			t.Fatalf("unexpected envelope %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
