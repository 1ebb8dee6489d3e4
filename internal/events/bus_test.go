package events

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (b *Bus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func TestBusPreservesOrder(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	bus.Subscribe(c.handle)

	for i := 0; i < 100; i++ {
		bus.Publish(Event{Kind: UploadProgress, Received: int64(i)})
	}
	bus.Publish(Event{Kind: UploadFinished, FileCount: 3})
	bus.Close()

	got := c.snapshot()
	require.Len(t, got, 101)
	for i := 0; i < 100; i++ {
		assert.EqualValues(t, i, got[i].Received)
	}
	assert.Equal(t, UploadFinished, got[100].Kind)
}

func TestBusFiltersKinds(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	bus.Subscribe(c.handle, TransferRequest, UploadFinished)

	bus.Publish(Event{Kind: TransferRequest, Alias: "A"})
	bus.Publish(Event{Kind: UploadProgress})
	bus.Publish(Event{Kind: UploadCanceled})
	bus.Publish(Event{Kind: UploadFinished, FileCount: 1})
	bus.Close()

	got := c.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, TransferRequest, got[0].Kind)
	assert.Equal(t, UploadFinished, got[1].Kind)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	unsubscribe := bus.Subscribe(c.handle)

	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Kind: UploadCanceled})
	bus.Close()

	assert.Empty(t, c.snapshot())
	assert.Equal(t, 0, bus.subscriberCount())
}

func TestBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	release := make(chan struct{})
	bus.Subscribe(func(Event) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Kind: UploadProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
	bus.Close()
}

func TestKindJSON(t *testing.T) {
	b, err := json.Marshal(Event{Kind: UploadFinished, FileCount: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"upload-finished","fileCount":2}`, string(b))
}

func TestBridgeStreamsEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	srv := httptest.NewServer(NewBridge(bus))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.subscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.Publish(Event{Kind: TransferRequest, Alias: "Nice Orange", FileCount: 2, TotalSize: 300})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "transfer-request", got["kind"])
	assert.Equal(t, "Nice Orange", got["alias"])
	assert.EqualValues(t, 2, got["fileCount"])

	conn.Close()
	require.Eventually(t, func() bool { return bus.subscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
