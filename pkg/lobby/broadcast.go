package lobby

import (
	"sync"

	"github.com/cbodonnell/gametable/pkg/log"
)

// SubscriberMailboxSize is the number of outbound frames buffered per
// subscriber before the broadcaster starts dropping frames for it.
const SubscriberMailboxSize = 64

// Subscriber is one consumer of a lobby's broadcast stream.
type Subscriber struct {
	ch chan []byte
}

// C returns the channel frames are delivered on. The channel is closed
// when the subscriber is unsubscribed.
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

// Broadcaster fans frames out to a set of subscribers. A slow subscriber
// never blocks delivery to the others: when its mailbox is full the frame
// is dropped for that subscriber only, and it is expected to request a
// snapshot to resync.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscriber]struct{}),
	}
}

func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{
		ch: make(chan []byte, SubscriberMailboxSize),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s] = struct{}{}
	return s
}

func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Publish delivers payload to every current subscriber without blocking.
func (b *Broadcaster) Publish(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- payload:
		default:
			log.Warn("Subscriber mailbox full, dropping frame")
		}
	}
}

// Len returns the current number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
