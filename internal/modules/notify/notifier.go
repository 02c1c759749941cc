// README: Fire-and-forget event publisher; a bounded queue drained by one worker.
package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Envelope is what transports carry and what SSE clients receive.
type Envelope struct {
	ID          string          `json:"id"`
	Room        string          `json:"room"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

type Transport interface {
	Send(ctx context.Context, e Envelope) error
	Close() error
}

const (
	DefaultQueueSize = 1024
	sendTimeout      = 5 * time.Second
)

type Notifier struct {
	transport Transport
	queue     chan Envelope
	dropped   atomic.Int64
	log       zerolog.Logger
	now       func() time.Time
}

func NewNotifier(t Transport, queueSize int, logger zerolog.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Notifier{
		transport: t,
		queue:     make(chan Envelope, queueSize),
		log:       logger.With().Str("module", "notify").Logger(),
		now:       time.Now,
	}
}

// Publish enqueues an event for room. It never blocks and never fails: encoding
// errors and a full queue are logged and the event is dropped.
func (n *Notifier) Publish(_ context.Context, room, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Str("room", room).Str("event", event).Msg("encode event payload")
		return
	}
	env := Envelope{
		ID:          uuid.NewString(),
		Room:        room,
		Event:       event,
		Payload:     body,
		PublishedAt: n.now().UTC(),
	}
	select {
	case n.queue <- env:
	default:
		n.dropped.Add(1)
		n.log.Warn().Str("room", room).Str("event", event).Msg("event queue full, dropping")
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run delivers queued events until ctx is done, then flushes what is left.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			n.flush()
			return
		case env := <-n.queue:
			n.deliver(ctx, env)
		}
	}
}

func (n *Notifier) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	for {
		select {
		case env := <-n.queue:
			n.deliver(ctx, env)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, env Envelope) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := n.transport.Send(sendCtx, env); err != nil {
		n.log.Error().Err(err).Str("room", env.Room).Str("event", env.Event).Msg("deliver event")
	}
}
