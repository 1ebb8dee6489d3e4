package recv

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"

	"github.com/0w0mewo/localsendgs/internal/events"
	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
	"github.com/0w0mewo/localsendgs/internal/localsend/session"
	lsutils "github.com/0w0mewo/localsendgs/internal/localsend/utils"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/0w0mewo/localsendgs/internal/policy"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

// Favorites answers whether a fingerprint belongs to a trusted peer.
type Favorites interface {
	IsFavorite(fingerprint string) bool
}

// Canceller asks a sender to stop an upload it is running against us.
type Canceller interface {
	SendCancelRequest(address string, port int, protocol, sessionId string) error
}

// Registry records peers that registered themselves with us.
type Registry interface {
	PutDevice(ip net.IP, anno models.Announcement) bool
}

type Options struct {
	Identity    models.Device
	Certificate *tls.Certificate // nil serves plain http
	StorageDir  string
	Port        int
	PIN         string

	AcceptPolicy    policy.AcceptPolicy
	PinPolicy       policy.PinPolicy
	QuickSavePolicy policy.QuickSavePolicy

	Favorites Favorites
	Events    events.Publisher
	Canceller Canceller
	Registry  Registry
}

type FileReceiver struct {
	identity  models.Device
	cert      *tls.Certificate
	port      int
	pin       string
	accept    policy.AcceptPolicy
	pinPolicy policy.PinPolicy
	quickSave policy.QuickSavePolicy

	favorites Favorites
	events    events.Publisher
	canceller Canceller
	registry  Registry

	webServer *fiber.App
	storage   *LocalStorage
	slot      *session.Slot
}

func NewFileReceiver(opts Options) *FileReceiver {
	fr := &FileReceiver{
		identity:  opts.Identity,
		cert:      opts.Certificate,
		port:      opts.Port,
		pin:       opts.PIN,
		accept:    opts.AcceptPolicy,
		pinPolicy: opts.PinPolicy,
		quickSave: opts.QuickSavePolicy,
		favorites: opts.Favorites,
		events:    opts.Events,
		canceller: opts.Canceller,
		registry:  opts.Registry,
		webServer: lsutils.NewWebServer(),
		storage:   NewLocalStorage(opts.StorageDir),
		slot:      session.NewSlot(),
	}
	if fr.port == 0 {
		fr.port = constants.DefaultPort
	}

	server := fr.webServer
	server.Post(constants.PreuploadPath, fr.preUploadHandler)
	server.Post(constants.UploadPath, fr.uploadHandler)
	server.Post(constants.CancelPath, fr.cancelHandler)
	server.Post(constants.RegisterPath, fr.registerHandler)
	server.Get(constants.InfoPath, fr.infoHandler)
	server.Post(constants.InfoPath, fr.infoHandler)

	return fr
}

func (fr *FileReceiver) isFavorite(fingerprint string) bool {
	return fr.favorites != nil && fr.favorites.IsFavorite(fingerprint)
}

func (fr *FileReceiver) publish(ev events.Event) {
	if fr.events != nil {
		fr.events.Publish(ev)
	}
}

// HasSession reports whether a transfer is in flight or awaiting approval.
func (fr *FileReceiver) HasSession() bool {
	return fr.slot.Busy()
}

// CurrentSession returns the in-flight session, or nil.
func (fr *FileReceiver) CurrentSession() *session.RecvSession {
	return fr.slot.Current()
}

// Accept completes a prepare-upload waiting for approval with the upload
// response.
func (fr *FileReceiver) Accept(sessionId string) error {
	sess, err := fr.slot.Lookup(sessionId)
	if err != nil {
		return fmt.Errorf("accept %s: %w", sessionId, lserrors.ErrNoPendingRequest)
	}

	return sess.Decide(true)
}

// Reject answers a waiting prepare-upload with 403 and discards its session.
func (fr *FileReceiver) Reject(sessionId string) error {
	sess, err := fr.slot.Lookup(sessionId)
	if err != nil {
		return fmt.Errorf("reject %s: %w", sessionId, lserrors.ErrNoPendingRequest)
	}

	if err := sess.Decide(false); err != nil {
		return err
	}
	fr.slot.Release(sess, nil)

	slog.Info("Transfer rejected", "session", sessionId, "remote", sess.Sender.Origin)

	return nil
}

// AbortTransfer stops the current transfer on behalf of the local user. The
// sender is asked to cancel; the session is discarded and upload-canceled
// raised whether or not that request succeeded.
func (fr *FileReceiver) AbortTransfer() error {
	sess := fr.slot.Current()
	if sess == nil {
		return lserrors.ErrNotFound
	}

	var err error
	if fr.canceller != nil {
		sender := sess.Sender
		err = fr.canceller.SendCancelRequest(sender.Origin, sender.Port, sender.Protocol, sess.ID())
		if err != nil {
			slog.Warn("Fail to notify sender about cancellation", "remote", sender.Origin, "session", sess.ID(), "error", err)
		}
	}

	fr.slot.Release(sess, func() {
		fr.publish(events.Event{Kind: events.UploadCanceled, SessionID: sess.ID()})
	})

	slog.Info("Transfer aborted", "session", sess.ID(),
		"received", humanize.Bytes(uint64(sess.Received())), "total", humanize.Bytes(uint64(sess.TotalSize())))

	return err
}

func (fr *FileReceiver) Start() error {
	addr := net.JoinHostPort("0.0.0.0", fmt.Sprint(fr.port))
	slog.Info("Waitting for receiving files (Ctrl-C to terminate)", "addr", addr, "tls", fr.cert != nil)

	if fr.cert != nil {
		return fr.webServer.ListenTLSWithCertificate(addr, *fr.cert)
	}

	return fr.webServer.Listen(addr)
}

// Stop discards the current session, which also answers any request waiting
// for approval, and shuts the listener down.
func (fr *FileReceiver) Stop() error {
	slog.Info("Stop receiving")

	if sess := fr.slot.Current(); sess != nil {
		fr.slot.Release(sess, nil)
	}

	return fr.webServer.Shutdown()
}
