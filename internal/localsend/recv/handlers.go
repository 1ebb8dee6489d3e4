package recv

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net"

	"github.com/0w0mewo/localsendgs/internal/events"
	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
	"github.com/0w0mewo/localsendgs/internal/localsend/session"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/0w0mewo/localsendgs/internal/policy"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/valyala/fasthttp"
)

// bodyReader streams the request body when the server runs with
// StreamRequestBody; otherwise the body is already buffered.
func bodyReader(ctx *fasthttp.RequestCtx) io.Reader {
	if stream := ctx.RequestBodyStream(); stream != nil {
		return stream
	}
	return bytes.NewReader(ctx.PostBody())
}

func (fr *FileReceiver) preUploadHandler(c *fiber.Ctx) (err error) {
	// one transfer at a time, checked before the body is looked at
	if fr.slot.Busy() {
		return c.SendStatus(fiber.StatusConflict)
	}

	var metaReq models.PreUploadReq
	if err := json.Unmarshal(c.Body(), &metaReq); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := metaReq.Validate(); err != nil {
		slog.Debug("Invalid prepare-upload", "remote", c.IP(), "error", err)
		return c.SendStatus(fiber.StatusBadRequest)
	}

	info := metaReq.Info
	favorite := fr.isFavorite(info.Fingerprint)

	if !policy.DoesAccept(fr.accept, favorite) {
		slog.Info("Refusing transfer", "remote", c.IP(), "alias", info.Alias, "policy", fr.accept)
		return c.SendStatus(fiber.StatusForbidden)
	}

	if policy.RequiresPin(fr.pinPolicy, favorite) {
		// an absent pin never matches, not even an empty configured one
		args := c.Request().URI().QueryArgs()
		if !args.Has("pin") || subtle.ConstantTimeCompare(args.Peek("pin"), []byte(fr.pin)) != 1 {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	sender := session.Sender{
		Device: *info,
		Origin: fiberutils.CopyString(c.IP()), // strings in fiber are unsafe due to zero allocation
	}

	sess, err := session.NewRecvSession(sender, metaReq.Files)
	if err != nil {
		slog.Error("preupload error", "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	// a half-built session must not stay in the slot
	defer func() {
		if r := recover(); r != nil {
			slog.Error("preupload panic", "session", sess.ID(), "panic", r)
			fr.slot.Release(sess, nil)
			err = c.SendStatus(fiber.StatusInternalServerError)
		}
	}()

	taken := make(map[string]bool)
	for _, fd := range sess.Files() {
		fd.Path = fr.storage.UniquePath(fd.Filename, fd.Id, taken)
	}

	quickSave := policy.AllowsQuickSave(fr.quickSave, favorite)
	if !quickSave {
		sess.RequireApproval()
	}

	err = fr.slot.Open(sess, func() {
		if !quickSave {
			fr.publish(events.Event{
				Kind:      events.TransferRequest,
				SessionID: sess.ID(),
				Alias:     info.Alias,
				FileCount: sess.FileCount(),
				TotalSize: sess.TotalSize(),
			})
		}
	})
	if err != nil {
		return c.SendStatus(lserrors.Status(err))
	}

	if !quickSave {
		slog.Info("Waiting for approval", "remote", sender.Origin, "alias", info.Alias, "session", sess.ID(),
			"files", sess.FileCount(), "size", humanize.Bytes(uint64(sess.TotalSize())))

		if !sess.WaitApproval() {
			fr.slot.Release(sess, nil)
			return c.SendStatus(fiber.StatusForbidden)
		}
	}

	slog.Info("Accepting file", "remote", sender.Origin, "session", sess.ID(), "quicksave", quickSave)

	return c.JSON(sess.GenPreUploadResp())
}

func (fr *FileReceiver) uploadHandler(c *fiber.Ctx) error {
	sessionId := c.Query("sessionId")
	fileId := c.Query("fileId")
	token := c.Query("token")

	if sessionId == "" || fileId == "" || token == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	sess, err := fr.slot.Lookup(sessionId)
	if err != nil {
		return c.SendStatus(lserrors.Status(err))
	}

	fd, err := sess.Lookup(fileId, token)
	if err != nil {
		return c.SendStatus(lserrors.Status(err))
	}

	if sess.State(fd) == session.StateFinished {
		return c.SendStatus(fiber.StatusNoContent)
	}

	path := fd.Path
	unlock := fr.storage.Lock(path)
	defer unlock()

	// a concurrent duplicate may have completed it while we waited
	if sess.State(fd) == session.StateFinished {
		return c.SendStatus(fiber.StatusNoContent)
	}

	written, err := fr.storage.Write(sess.Context(), path, bodyReader(c.Context()), fd.Checksum, func(n int) {
		received := sess.AddReceived(int64(n))
		fr.slot.IfCurrent(sess, func() {
			fr.publish(events.Event{
				Kind:      events.UploadProgress,
				SessionID: sess.ID(),
				Received:  received,
				TotalSize: sess.TotalSize(),
			})
		})
	})
	if err != nil {
		sess.AddReceived(-written)

		if sess.Ended() {
			slog.Info("Upload aborted", "remote", c.IP(), "session", sessionId, "file", fd.Filename)
			return c.SendStatus(fiber.StatusNotFound)
		}

		slog.Error("Upload error", "remote", c.IP(), "session", sessionId, "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	slog.Info("File received", "session", sessionId, "file", path, "size", humanize.Bytes(uint64(written)))

	if sess.MarkFinished(fd) {
		fr.slot.Release(sess, func() {
			fr.publish(events.Event{
				Kind:      events.UploadFinished,
				SessionID: sess.ID(),
				FileCount: sess.FileCount(),
			})
		})

		slog.Info("Transfer finished", "session", sessionId, "files", sess.FileCount())
	}

	return c.SendStatus(fiber.StatusOK)
}

func (fr *FileReceiver) cancelHandler(c *fiber.Ctx) error {
	sessionId := c.Query("sessionId")

	sess := fr.slot.Current()
	if sess == nil {
		return c.SendStatus(fiber.StatusOK)
	}
	if sess.ID() != sessionId {
		return c.SendStatus(fiber.StatusConflict)
	}

	if fr.slot.Release(sess, func() {
		fr.publish(events.Event{Kind: events.UploadCanceled, SessionID: sess.ID()})
	}) {
		slog.Info("Transfer canceled by sender", "remote", c.IP(), "session", sessionId)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (fr *FileReceiver) registerHandler(c *fiber.Ctx) error {
	var dev models.Device
	if err := json.Unmarshal(c.Body(), &dev); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := dev.Validate(); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if fr.registry != nil && dev.Fingerprint != fr.identity.Fingerprint {
		if fr.registry.PutDevice(net.ParseIP(c.IP()), models.Announcement{Device: dev}) {
			slog.Info("Device registered", "remote", c.IP(), "alias", dev.Alias)
		}
	}

	return c.JSON(&fr.identity)
}

func (fr *FileReceiver) infoHandler(c *fiber.Ctx) error {
	return c.JSON(&fr.identity)
}

