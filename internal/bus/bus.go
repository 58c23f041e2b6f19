package bus

import (
	"errors"
	"sync"

	"github.com/ccastromar/aos-healthcare-assistant/internal/metrics"
)

var (
	ErrNoSubscriber = errors.New("bus: no subscriber")
	ErrInboxFull    = errors.New("bus: inbox full")
)

type Message struct {
	Type    string
	Payload map[string]any
}

// Bus routes messages to named inboxes.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Message
}

func New() *Bus {
	return &Bus{
		subs: make(map[string]chan Message),
	}
}

func (b *Bus) Subscribe(name string, ch chan Message) {
	b.mu.Lock()
	b.subs[name] = ch
	b.mu.Unlock()
}

func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	delete(b.subs, name)
	b.mu.Unlock()
}

// Send delivers msg without blocking. A full inbox drops the message.
func (b *Bus) Send(target string, msg Message) error {
	b.mu.RLock()
	ch, ok := b.subs[target]
	b.mu.RUnlock()
	if !ok {
		metrics.BusMessages.Inc(map[string]string{"target": target, "result": "dropped"})
		return ErrNoSubscriber
	}
	select {
	case ch <- msg:
		metrics.BusMessages.Inc(map[string]string{"target": target, "result": "sent"})
		return nil
	default:
		metrics.BusMessages.Inc(map[string]string{"target": target, "result": "dropped"})
		return ErrInboxFull
	}
}
