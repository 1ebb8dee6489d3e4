// Package events carries transfer notifications from the file server to
// whoever presents them (terminal prompt, websocket clients, tests).
package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

type Kind int

const (
	TransferRequest Kind = iota
	UploadProgress
	UploadCanceled
	UploadFinished
)

func (k Kind) String() string {
	switch k {
	case TransferRequest:
		return "transfer-request"
	case UploadProgress:
		return "upload-progress"
	case UploadCanceled:
		return "upload-canceled"
	case UploadFinished:
		return "upload-finished"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Event is one notification. Which fields are set depends on Kind:
// TransferRequest carries Alias, FileCount and TotalSize; UploadProgress
// carries Received and TotalSize; UploadFinished carries FileCount.
type Event struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sessionId,omitempty"`
	Alias     string `json:"alias,omitempty"`
	FileCount int    `json:"fileCount,omitempty"`
	TotalSize int64  `json:"totalSize,omitempty"`
	Received  int64  `json:"received,omitempty"`
}

type Handler func(Event)

type Publisher interface {
	Publish(ev Event)
}

// Bus fans events out to subscribers. Publish never blocks; each subscriber
// gets the events in publish order on its own goroutine.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscriber),
	}
}

// Subscribe registers h for the given kinds, or for every kind when none
// are given. The returned function removes the subscription; events still
// queued for it are dropped.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) func() {
	s := newSubscriber(h, kinds)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.stop(true)
		})
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, s := range b.subs {
		s.push(ev)
	}
}

// Close delivers what is already queued, then stops every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	clear(b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop(false)
		<-s.stopped
	}
}

type subscriber struct {
	handler Handler
	kinds   map[Kind]bool

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	closing bool
	stopped chan struct{}
}

func newSubscriber(h Handler, kinds []Kind) *subscriber {
	s := &subscriber{
		handler: h,
		stopped: make(chan struct{}),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) wants(k Kind) bool {
	return s.kinds == nil || s.kinds[k]
}

func (s *subscriber) push(ev Event) {
	if !s.wants(ev.Kind) {
		return
	}

	s.mu.Lock()
	if !s.closing {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) stop(drop bool) {
	s.mu.Lock()
	s.closing = true
	if drop {
		s.queue = nil
	}
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscriber) run() {
	defer close(s.stopped)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closing {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.handler(ev)
	}
}
