package notif

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	broker := NewBroker()

	ch1, cancel1 := broker.Subscribe("u1")
	defer cancel1()
	ch2, cancel2 := broker.Subscribe("u1")
	defer cancel2()
	other, cancelOther := broker.Subscribe("u2")
	defer cancelOther()

	n := Notification{ID: "n1", UserID: "u1", Type: TypeNewAssignment, Content: "hi"}
	broker.Publish(n)

	for _, ch := range []<-chan Notification{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, n, got)
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}
	select {
	case <-other:
		t.Fatal("notification delivered to wrong user")
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	broker := NewBroker()

	ch, cancel := broker.Subscribe("u1")
	cancel()

	// channel is closed and no longer receives
	_, open := <-ch
	assert.False(t, open)

	broker.Publish(Notification{ID: "n1", UserID: "u1"})

	// cancel is safe to call twice
	cancel()
}

func TestBrokerDropsSlowSubscribers(t *testing.T) {
	broker := NewBroker()

	ch, cancel := broker.Subscribe("u1")
	defer cancel()

	// fill the buffer and keep publishing; Publish must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			broker.Publish(Notification{ID: "n", UserID: "u1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	require.Len(t, ch, subscriberBuffer)
}
