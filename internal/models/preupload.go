package models

import (
	"fmt"

	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
)

type PreUploadReq struct {
	Info  *Device   `json:"info"`
	Files FileMetas `json:"files"`
}

// Validate rejects a request before any session exists for it. Every error
// wraps ErrInvalidBody.
func (req *PreUploadReq) Validate() error {
	if err := req.Info.Validate(); err != nil {
		return err
	}

	if len(req.Files) == 0 {
		return fmt.Errorf("no files declared: %w", lserrors.ErrInvalidBody)
	}

	seen := make(map[string]struct{}, len(req.Files))
	for i := range req.Files {
		if err := req.Files[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[req.Files[i].Id]; dup {
			return fmt.Errorf("file %s declared twice: %w", req.Files[i].Id, lserrors.ErrInvalidBody)
		}
		seen[req.Files[i].Id] = struct{}{}
	}

	return nil
}

type PreUploadResp struct {
	SessionId string     `json:"sessionId"`
	Tokens    FileTokens `json:"files"`
}

func NewPreUploadResp(sessionId string) *PreUploadResp {
	return &PreUploadResp{
		SessionId: sessionId,
		Tokens:    make(FileTokens),
	}
}

func (resp *PreUploadResp) AddFile(fileId, token string) {
	resp.Tokens[fileId] = token
}

type FileTokens map[string]string
