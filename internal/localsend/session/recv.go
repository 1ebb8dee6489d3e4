package session

import (
	"context"
	"crypto/subtle"
	"sync"
	"sync/atomic"

	"github.com/0w0mewo/localsendgs/internal/crypto"
	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/google/uuid"
)

type State int

const (
	StateOpen State = iota
	StateFinished
)

func (s State) String() string {
	if s == StateFinished {
		return "finished"
	}
	return "open"
}

type FileDescriptor struct {
	models.FileMeta
	Token string
	// Path is where the content is stored. It is set before the session is
	// opened and not changed afterwards.
	Path  string
	state State
}

// Sender is the device that prepared the upload and the address it
// connected from.
type Sender struct {
	models.Device
	Origin string
}

// RecvSession is one in-flight transfer. Its files keep the order of the
// prepare-upload request.
type RecvSession struct {
	id        string
	Sender    Sender
	files     []*FileDescriptor
	totalSize int64
	received  atomic.Int64

	mu       sync.Mutex // guards file states and the approval flag
	awaiting bool
	approval chan bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRecvSession(sender Sender, metas models.FileMetas) (*RecvSession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &RecvSession{
		id:       uuid.NewString(),
		Sender:   sender,
		files:    make([]*FileDescriptor, 0, len(metas)),
		approval: make(chan bool, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, meta := range metas {
		token, err := crypto.NewToken()
		if err != nil {
			cancel()
			return nil, err
		}

		sess.files = append(sess.files, &FileDescriptor{
			FileMeta: meta,
			Token:    token,
			state:    StateOpen,
		})
		sess.totalSize += meta.Size
	}

	return sess, nil
}

func (sess *RecvSession) ID() string {
	return sess.id
}

func (sess *RecvSession) Files() []*FileDescriptor {
	return append([]*FileDescriptor(nil), sess.files...)
}

func (sess *RecvSession) FileCount() int {
	return len(sess.files)
}

func (sess *RecvSession) TotalSize() int64 {
	return sess.totalSize
}

func (sess *RecvSession) AddReceived(n int64) int64 {
	return sess.received.Add(n)
}

func (sess *RecvSession) Received() int64 {
	return sess.received.Load()
}

// Context is canceled once the session is discarded.
func (sess *RecvSession) Context() context.Context {
	return sess.ctx
}

func (sess *RecvSession) Done() <-chan struct{} {
	return sess.ctx.Done()
}

func (sess *RecvSession) Ended() bool {
	return sess.ctx.Err() != nil
}

func (sess *RecvSession) end() {
	sess.cancel()
}

// Lookup finds the file matching both id and token. A wrong token and an
// unknown id give the same ErrRejected.
func (sess *RecvSession) Lookup(fileId, token string) (*FileDescriptor, error) {
	sess.mu.Lock()
	awaiting := sess.awaiting
	sess.mu.Unlock()
	if awaiting {
		return nil, lserrors.ErrRejected
	}

	for _, fd := range sess.files {
		if fd.Id == fileId && subtle.ConstantTimeCompare([]byte(fd.Token), []byte(token)) == 1 {
			return fd, nil
		}
	}

	return nil, lserrors.ErrRejected
}

func (sess *RecvSession) State(fd *FileDescriptor) State {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return fd.state
}

// MarkFinished moves fd to FINISHED and reports whether this call completed
// the whole file set. It returns false for a file that was already finished,
// so completion is reported exactly once.
func (sess *RecvSession) MarkFinished(fd *FileDescriptor) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if fd.state == StateFinished {
		return false
	}
	fd.state = StateFinished

	for _, f := range sess.files {
		if f.state != StateFinished {
			return false
		}
	}
	return true
}

func (sess *RecvSession) GenPreUploadResp() *models.PreUploadResp {
	resp := models.NewPreUploadResp(sess.id)
	for _, fd := range sess.files {
		resp.AddFile(fd.Id, fd.Token)
	}
	return resp
}

// RequireApproval marks the session as waiting for a user decision. Until
// Decide is called no upload is accepted.
func (sess *RecvSession) RequireApproval() {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.awaiting = true
}

func (sess *RecvSession) AwaitingApproval() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.awaiting
}

// Decide resolves a pending approval. It may be called from any goroutine.
func (sess *RecvSession) Decide(accept bool) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.awaiting {
		return lserrors.ErrNoPendingRequest
	}
	sess.awaiting = false
	sess.approval <- accept

	return nil
}

// WaitApproval blocks until Decide is called or the session is discarded.
// It only reports true for an accepted session that is still alive.
func (sess *RecvSession) WaitApproval() bool {
	select {
	case accepted := <-sess.approval:
		return accepted && !sess.Ended()
	case <-sess.Done():
		return false
	}
}
