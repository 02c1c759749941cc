// README: Customer order mail; a bounded queue drained by one worker, like the event notifier.
package mailer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"streeteats/internal/modules/order"
)

var ErrQueueFull = errors.New("mail queue full")

// Sender delivers one plain text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Recipients resolves the mail address of a customer account. An empty address
// with a nil error means the account has none.
type Recipients interface {
	Email(ctx context.Context, uid string) (string, error)
}

const (
	DefaultQueueSize = 256
	sendTimeout      = 15 * time.Second
)

type kind int

const (
	confirmation kind = iota
	statusUpdate
)

type job struct {
	kind  kind
	order *order.Order
}

type Mailer struct {
	sender     Sender
	recipients Recipients
	queue      chan job
	dropped    atomic.Int64
	log        zerolog.Logger
}

func New(sender Sender, recipients Recipients, queueSize int, logger zerolog.Logger) *Mailer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Mailer{
		sender:     sender,
		recipients: recipients,
		queue:      make(chan job, queueSize),
		log:        logger.With().Str("module", "mailer").Logger(),
	}
}

// OrderConfirmed queues the confirmation sent after an order is placed.
func (m *Mailer) OrderConfirmed(_ context.Context, o *order.Order) error {
	return m.enqueue(job{kind: confirmation, order: o.Clone()})
}

// StatusChanged queues an update for the order's current status.
func (m *Mailer) StatusChanged(_ context.Context, o *order.Order) error {
	return m.enqueue(job{kind: statusUpdate, order: o.Clone()})
}

func (m *Mailer) enqueue(j job) error {
	select {
	case m.queue <- j:
		return nil
	default:
		m.dropped.Add(1)
		return ErrQueueFull
	}
}

func (m *Mailer) Dropped() int64 {
	return m.dropped.Load()
}

// Run sends queued mail until ctx is done, then flushes what is left.
func (m *Mailer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.flush()
			return
		case j := <-m.queue:
			m.deliver(ctx, j)
		}
	}
}

func (m *Mailer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	for {
		select {
		case j := <-m.queue:
			m.deliver(ctx, j)
		default:
			return
		}
	}
}

func (m *Mailer) deliver(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	log := m.log.With().Str("order_id", string(j.order.ID)).Str("status", string(j.order.Status)).Logger()

	to, err := m.recipients.Email(ctx, string(j.order.CustomerID))
	if err != nil {
		log.Error().Err(err).Msg("resolve customer email")
		return
	}
	if to == "" {
		log.Debug().Msg("customer has no email, skipping")
		return
	}
	subject, body := compose(j)
	if err := m.sender.Send(ctx, to, subject, body); err != nil {
		log.Error().Err(err).Msg("send order mail")
		return
	}
	log.Info().Str("subject", subject).Msg("order mail sent")
}
