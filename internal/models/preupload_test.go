package models

import (
	"encoding/json"
	"errors"
	"testing"

	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validInfo = `{"alias":"Nice Orange","version":"2.1","fingerprint":"abc","port":53317,"protocol":"https"}`

func TestPreUploadReqKeepsFileOrder(t *testing.T) {
	body := `{"info":` + validInfo + `,"files":{
		"z":{"id":"z","fileName":"z.txt","fileType":"text/plain","size":1},
		"a":{"id":"a","fileName":"a.txt","fileType":"text/plain","size":2},
		"m":{"id":"m","fileName":"m.txt","fileType":"text/plain","size":3}}}`

	var req PreUploadReq
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NoError(t, req.Validate())

	ids := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		ids = append(ids, f.Id)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
	assert.EqualValues(t, 6, req.Files.TotalSize())
}

func TestPreUploadReqValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{
			name:  "optional device fields absent",
			body:  `{"info":` + validInfo + `,"files":{"1":{"id":"1","fileName":"a","fileType":"text/plain","size":10}}}`,
			valid: true,
		},
		{
			name:  "zero sized file",
			body:  `{"info":` + validInfo + `,"files":{"1":{"id":"1","fileName":"a","fileType":"text/plain","size":0}}}`,
			valid: true,
		},
		{
			name: "missing info",
			body: `{"files":{"1":{"id":"1","fileName":"a","fileType":"text/plain","size":10}}}`,
		},
		{
			name: "missing fingerprint",
			body: `{"info":{"alias":"x","version":"2.1","port":1,"protocol":"https"},"files":{"1":{"id":"1","fileName":"a","fileType":"t","size":1}}}`,
		},
		{
			name: "missing port",
			body: `{"info":{"alias":"x","version":"2.1","fingerprint":"f","protocol":"https"},"files":{"1":{"id":"1","fileName":"a","fileType":"t","size":1}}}`,
		},
		{
			name: "missing protocol",
			body: `{"info":{"alias":"x","version":"2.1","fingerprint":"f","port":1},"files":{"1":{"id":"1","fileName":"a","fileType":"t","size":1}}}`,
		},
		{
			name: "missing files",
			body: `{"info":` + validInfo + `}`,
		},
		{
			name: "empty files",
			body: `{"info":` + validInfo + `,"files":{}}`,
		},
		{
			name: "missing size",
			body: `{"info":` + validInfo + `,"files":{"1":{"id":"1","fileName":"a","fileType":"text/plain"}}}`,
		},
		{
			name: "missing file type",
			body: `{"info":` + validInfo + `,"files":{"1":{"id":"1","fileName":"a","size":3}}}`,
		},
		{
			name: "duplicate id",
			body: `{"info":` + validInfo + `,"files":{"1":{"id":"1","fileName":"a","fileType":"t","size":3},"2":{"id":"1","fileName":"b","fileType":"t","size":3}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req PreUploadReq
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			err := req.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, lserrors.ErrInvalidBody), "got %v", err)
		})
	}
}

func TestFileMetasRejectsNonObject(t *testing.T) {
	var req PreUploadReq
	err := json.Unmarshal([]byte(`{"info":`+validInfo+`,"files":["a"]}`), &req)
	assert.Error(t, err)
}

func TestFileMetasMarshalOrder(t *testing.T) {
	files := FileMetas{
		NewFileMeta("b", "b.bin", "application/octet-stream", 5),
		NewFileMeta("a", "a.bin", "application/octet-stream", 7),
	}

	b, err := json.Marshal(files)
	require.NoError(t, err)

	var back FileMetas
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back, 2)
	assert.Equal(t, "b", back[0].Id)
	assert.Equal(t, "a", back[1].Id)
	assert.NoError(t, back[1].Validate())
}

func TestDeviceSame(t *testing.T) {
	a := NewDevice(NewDeviceInfo("A", "fp-1", "2.1", "", ""), 53317, "https")
	b := NewDevice(NewDeviceInfo("B", "fp-1", "2.0", "Linux", "desktop"), 1234, "http")
	c := NewDevice(NewDeviceInfo("A", "fp-2", "2.1", "", ""), 53317, "https")

	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
	assert.False(t, Device{}.Same(Device{}))
}
