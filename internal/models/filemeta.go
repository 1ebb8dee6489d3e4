package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
)

// FileMetadata contains optional file timestamp information
type FileMetadata struct {
	Modified string `json:"modified,omitempty"`
	Accessed string `json:"accessed,omitempty"`
}

type FileMeta struct {
	Id       string        `json:"id"`
	Filename string        `json:"fileName"`
	Size     int64         `json:"size"`
	FileMIME string        `json:"fileType"`
	Checksum string        `json:"sha256,omitempty"`
	Preview  string        `json:"preview,omitempty"`
	Metadata *FileMetadata `json:"metadata,omitempty"`

	hasSize bool
}

func (fm *FileMeta) UnmarshalJSON(b []byte) error {
	type plain FileMeta
	aux := struct {
		*plain
		Size *int64 `json:"size"`
	}{plain: (*plain)(fm)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Size != nil {
		fm.Size = *aux.Size
		fm.hasSize = true
	}

	return nil
}

// Validate checks the fields a sender must declare for every file.
func (fm *FileMeta) Validate() error {
	switch {
	case fm.Id == "":
		return fmt.Errorf("file id missing: %w", lserrors.ErrInvalidBody)
	case fm.Filename == "":
		return fmt.Errorf("file %s: name missing: %w", fm.Id, lserrors.ErrInvalidBody)
	case fm.FileMIME == "":
		return fmt.Errorf("file %s: type missing: %w", fm.Id, lserrors.ErrInvalidBody)
	case !fm.hasSize || fm.Size < 0:
		return fmt.Errorf("file %s: size missing: %w", fm.Id, lserrors.ErrInvalidBody)
	}
	return nil
}

// FileMetas keeps the files of a prepare-upload request in the order the
// sender listed them. On the wire it is an object keyed by file id.
type FileMetas []FileMeta

func (fms *FileMetas) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*fms = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("files: expected an object")
	}

	metas := make(FileMetas, 0)
	for dec.More() {
		if _, err := dec.Token(); err != nil { // key, the id inside the value is authoritative
			return err
		}

		var meta FileMeta
		if err := dec.Decode(&meta); err != nil {
			return err
		}
		metas = append(metas, meta)
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}

	*fms = metas
	return nil
}

func (fms FileMetas) MarshalJSON() ([]byte, error) {
	if fms == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := range fms {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fms[i].Id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fms[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (fms FileMetas) TotalSize() int64 {
	var total int64
	for i := range fms {
		total += fms[i].Size
	}
	return total
}

func NewFileMeta(id, filename, mimeType string, size int64) FileMeta {
	return FileMeta{
		Id:       id,
		Filename: filename,
		Size:     size,
		FileMIME: mimeType,
		hasSize:  true,
	}
}
