package session

import (
	"sync"
	"testing"
	"time"

	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, ids ...string) *RecvSession {
	t.Helper()

	metas := make(models.FileMetas, 0, len(ids))
	for _, id := range ids {
		metas = append(metas, models.NewFileMeta(id, id+".txt", "text/plain", 100))
	}

	sender := Sender{
		Device: models.NewDevice(models.NewDeviceInfo("Sender", "fp-sender", "2.1", "", ""), 53317, "https"),
		Origin: "192.168.1.20",
	}
	sess, err := NewRecvSession(sender, metas)
	require.NoError(t, err)
	return sess
}

func TestNewRecvSessionKeepsOrderAndTokens(t *testing.T) {
	sess := newTestSession(t, "c", "a", "b")

	files := sess.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "c", files[0].Id)
	assert.Equal(t, "a", files[1].Id)
	assert.Equal(t, "b", files[2].Id)
	assert.EqualValues(t, 300, sess.TotalSize())

	seen := map[string]bool{}
	for _, fd := range files {
		assert.NotEmpty(t, fd.Token)
		assert.False(t, seen[fd.Token], "tokens must be distinct")
		seen[fd.Token] = true
		assert.Equal(t, StateOpen, sess.State(fd))
	}

	resp := sess.GenPreUploadResp()
	assert.Equal(t, sess.ID(), resp.SessionId)
	assert.Len(t, resp.Tokens, 3)
	assert.Equal(t, files[1].Token, resp.Tokens["a"])
}

func TestLookupRequiresMatchingToken(t *testing.T) {
	sess := newTestSession(t, "a", "b")
	files := sess.Files()

	fd, err := sess.Lookup("a", files[0].Token)
	require.NoError(t, err)
	assert.Same(t, files[0], fd)

	// token of another file
	_, err = sess.Lookup("a", files[1].Token)
	assert.ErrorIs(t, err, lserrors.ErrRejected)

	_, err = sess.Lookup("missing", files[0].Token)
	assert.ErrorIs(t, err, lserrors.ErrRejected)
}

func TestLookupRefusedWhileAwaitingApproval(t *testing.T) {
	sess := newTestSession(t, "a")
	token := sess.Files()[0].Token

	sess.RequireApproval()
	_, err := sess.Lookup("a", token)
	assert.ErrorIs(t, err, lserrors.ErrRejected)

	require.NoError(t, sess.Decide(true))
	_, err = sess.Lookup("a", token)
	assert.NoError(t, err)
}

func TestMarkFinishedReportsCompletionOnce(t *testing.T) {
	sess := newTestSession(t, "a", "b")
	files := sess.Files()

	assert.False(t, sess.MarkFinished(files[0]))
	assert.False(t, sess.MarkFinished(files[0]))
	assert.True(t, sess.MarkFinished(files[1]))
	assert.False(t, sess.MarkFinished(files[1]))
	assert.Equal(t, StateFinished, sess.State(files[0]))
}

func TestMarkFinishedConcurrent(t *testing.T) {
	sess := newTestSession(t, "a", "b", "c", "d")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for _, fd := range sess.Files() {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(fd *FileDescriptor) {
				defer wg.Done()
				if sess.MarkFinished(fd) {
					mu.Lock()
					done++
					mu.Unlock()
				}
			}(fd)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, done)
}

func TestDecideWithoutPendingRequest(t *testing.T) {
	sess := newTestSession(t, "a")
	assert.ErrorIs(t, sess.Decide(true), lserrors.ErrNoPendingRequest)
}

func TestWaitApproval(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		sess := newTestSession(t, "a")
		sess.RequireApproval()
		go sess.Decide(true)
		assert.True(t, sess.WaitApproval())
	})

	t.Run("rejected", func(t *testing.T) {
		sess := newTestSession(t, "a")
		sess.RequireApproval()
		go sess.Decide(false)
		assert.False(t, sess.WaitApproval())
	})

	t.Run("discarded", func(t *testing.T) {
		sess := newTestSession(t, "a")
		sess.RequireApproval()

		slot := NewSlot()
		require.NoError(t, slot.Open(sess, nil))

		result := make(chan bool, 1)
		go func() { result <- sess.WaitApproval() }()

		time.Sleep(10 * time.Millisecond)
		slot.Release(sess, nil)

		select {
		case ok := <-result:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("WaitApproval did not return after discard")
		}
	})
}

func TestSlot(t *testing.T) {
	slot := NewSlot()
	first := newTestSession(t, "a")
	second := newTestSession(t, "b")

	_, err := slot.Lookup(first.ID())
	assert.ErrorIs(t, err, lserrors.ErrNotFound)

	opened := false
	require.NoError(t, slot.Open(first, func() { opened = true }))
	assert.True(t, opened)
	assert.True(t, slot.Busy())
	assert.ErrorIs(t, slot.Open(second, nil), lserrors.ErrBlockedByOthers)

	got, err := slot.Lookup(first.ID())
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = slot.Lookup(second.ID())
	assert.ErrorIs(t, err, lserrors.ErrBlockedByOthers)

	assert.False(t, slot.Release(second, nil))
	assert.False(t, slot.IfCurrent(second, func() { t.Fatal("not current") }))

	released := false
	assert.True(t, slot.Release(first, func() { released = true }))
	assert.True(t, released)
	assert.True(t, first.Ended())
	assert.Nil(t, slot.Current())
	assert.False(t, slot.Release(first, nil))

	require.NoError(t, slot.Open(second, nil))
}

func TestSlotConcurrentOpen(t *testing.T) {
	slot := NewSlot()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		sess := newTestSession(t, "a")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if slot.Open(sess, nil) == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}
