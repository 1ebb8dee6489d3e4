package recv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
	"github.com/google/renameio/v2"
	"github.com/moby/locker"
)

const chunkSize = 64 * 1024

// LocalStorage writes received files into one directory. A file is streamed
// into a pending sibling and renamed into place once complete, so a failed
// or aborted upload never leaves a truncated file under the final name.
type LocalStorage struct {
	BasePath string

	locks *locker.Locker
}

func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{
		BasePath: basePath,
		locks:    locker.New(),
	}
}

// Path returns where a file declared as name is stored. Only the base name is
// kept; fallback is used when nothing usable remains.
func (l *LocalStorage) Path(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		name = filepath.Base(fallback)
	}
	if name == "." || name == ".." || name == "/" || name == "" {
		name = "unnamed"
	}

	return filepath.Join(l.BasePath, name)
}

// UniquePath is Path with a " (n)" suffix added before the extension while
// the candidate already exists on disk or is in taken. The result is added
// to taken.
func (l *LocalStorage) UniquePath(name, fallback string, taken map[string]bool) string {
	path := l.Path(name, fallback)

	ext := filepath.Ext(path)
	if ext == filepath.Base(path) {
		ext = "" // dotfile
	}
	stem := strings.TrimSuffix(path, ext)

	for i := 1; taken[path] || exists(path); i++ {
		path = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	taken[path] = true

	return path
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Lock serializes writers of one path. The returned func releases it.
func (l *LocalStorage) Lock(path string) func() {
	l.locks.Lock(path)

	return func() {
		l.locks.Unlock(path)
	}
}

// Write streams r into path. progress is called after every chunk that
// reached the disk. When checksum is set the content must hash to it. The
// copy stops between chunks once ctx is done.
func (l *LocalStorage) Write(ctx context.Context, path string, r io.Reader, checksum string, progress func(n int)) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %w", lserrors.ErrFileIO, err)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithTempDir(dir), renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", lserrors.ErrFileIO, err)
	}
	defer pf.Cleanup()

	written, err := copyChunks(ctx, pf, r, checksum, progress)
	if err != nil {
		return written, err
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return written, fmt.Errorf("%w: %w", lserrors.ErrFileIO, err)
	}

	return written, nil
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, checksum string, progress func(n int)) (int64, error) {
	var hasher hash.Hash
	if checksum != "" {
		hasher = sha256.New()
		dst = io.MultiWriter(dst, hasher)
	}

	buf := make([]byte, chunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("%w: %w", lserrors.ErrFileIO, err)
			}
			written += int64(n)
			if progress != nil {
				progress(n)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: read body: %w", lserrors.ErrFileIO, rerr)
		}
	}

	if hasher != nil && !strings.EqualFold(hex.EncodeToString(hasher.Sum(nil)), checksum) {
		return written, lserrors.ErrChecksum
	}

	return written, nil
}
