package notif

import "sync"

// subscriber channels are buffered; a publisher never blocks on a slow
// consumer, the notification is simply not delivered live (it stays
// available via ListUnread).
const subscriberBuffer = 16

// Broker fans out freshly created notifications to in-process subscribers,
// one channel set per user. The API layer bridges channels to SSE streams.
type Broker struct {
	mutex sync.RWMutex
	subs  map[string]map[chan Notification]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Notification]struct{})}
}

// Subscribe registers a live feed for userID. The returned cancel func must
// be called when the consumer goes away; it closes the channel.
func (b *Broker) Subscribe(userID string) (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)

	b.mutex.Lock()
	chans, ok := b.subs[userID]
	if !ok {
		chans = make(map[chan Notification]struct{})
		b.subs[userID] = chans
	}
	chans[ch] = struct{}{}
	b.mutex.Unlock()

	cancel := func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()
		if chans, ok := b.subs[userID]; ok {
			if _, ok := chans[ch]; ok {
				delete(chans, ch)
				close(ch)
			}
			if len(chans) == 0 {
				delete(b.subs, userID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers n to every live subscriber of its user.
func (b *Broker) Publish(n Notification) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for ch := range b.subs[n.UserID] {
		select {
		case ch <- n:
		default: // slow subscriber, drop
		}
	}
}
