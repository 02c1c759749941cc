// README: In-process broker; the memory transport and the SSE source for single-node runs.
package notify

import (
	"context"
	"sync"
)

// Subscriber streams the events published to one room.
type Subscriber interface {
	Subscribe(ctx context.Context, room string) (<-chan Envelope, func(), error)
}

const subscriberBuffer = 16

type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Envelope]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Envelope]struct{})}
}

// Send fans e out to the room's subscribers. Slow subscribers miss events.
func (b *Broker) Send(_ context.Context, e Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[e.Room] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, room string) (<-chan Envelope, func(), error) {
	ch := make(chan Envelope, subscriberBuffer)
	b.mu.Lock()
	if b.subs[room] == nil {
		b.subs[room] = make(map[chan Envelope]struct{})
	}
	b.subs[room][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[room], ch)
			if len(b.subs[room]) == 0 {
				delete(b.subs, room)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (b *Broker) Close() error { return nil }
