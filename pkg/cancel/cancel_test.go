package cancel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/types"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	u := &types.Update{ID: "u1", Operation: types.OpCancelBuild}
	h.Publish(Signal{BuildID: "build-1", Update: u})

	for _, sub := range []Subscriber{a, b} {
		select {
		case sig := <-sub:
			assert.Equal(t, "build-1", sig.BuildID)
			assert.Equal(t, "u1", sig.Update.ID)
		case <-time.After(time.Second):
			t.Fatal("signal not delivered")
		}
	}
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Publish(Signal{BuildID: "nobody-listening"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestPublishFullBufferDropsSignal(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	// Fill the buffer and one more; the extra must be dropped, not block.
	for i := 0; i < cap(sub)+1; i++ {
		h.Publish(Signal{BuildID: "b"})
	}
	assert.Equal(t, cap(sub), len(sub))
}

func TestUnsubscribeCloses(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	_, open := <-sub
	require.False(t, open)

	// Double unsubscribe must not panic.
	h.Unsubscribe(sub)

	// Publishing after unsubscribe must not send on the closed channel.
	h.Publish(Signal{BuildID: "late"})
}
