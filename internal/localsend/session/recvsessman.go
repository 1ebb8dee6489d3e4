package session

import (
	"sync"

	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
)

// Slot holds at most one session. Hooks passed to Open and Release run
// while the slot is locked, so anything they publish is ordered with the
// slot transitions.
type Slot struct {
	mu      sync.Mutex
	current *RecvSession
}

func NewSlot() *Slot {
	return &Slot{}
}

func (sl *Slot) Busy() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.current != nil
}

func (sl *Slot) Current() *RecvSession {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.current
}

// Open installs sess unless another session is present.
func (sl *Slot) Open(sess *RecvSession, hook func()) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.current != nil {
		return lserrors.ErrBlockedByOthers
	}
	sl.current = sess
	if hook != nil {
		hook()
	}

	return nil
}

// Lookup returns the current session if its id matches.
func (sl *Slot) Lookup(sessionId string) (*RecvSession, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.current == nil {
		return nil, lserrors.ErrNotFound
	}
	if sl.current.id != sessionId {
		return nil, lserrors.ErrBlockedByOthers
	}

	return sl.current, nil
}

// Release discards sess if it is still the current session and reports
// whether it did.
func (sl *Slot) Release(sess *RecvSession, hook func()) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sess == nil || sl.current != sess {
		return false
	}
	sl.current = nil
	sess.end()
	if hook != nil {
		hook()
	}

	return true
}

// IfCurrent runs fn under the slot lock when sess is still current.
func (sl *Slot) IfCurrent(sess *RecvSession, fn func()) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sess == nil || sl.current != sess {
		return false
	}
	fn()

	return true
}
