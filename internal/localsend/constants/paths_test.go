package constants

import "testing"

func TestV2Paths(t *testing.T) {
	paths := []struct {
		path     string
		expected string
	}{
		{PreuploadPath, "/api/localsend/v2/prepare-upload"},
		{UploadPath, "/api/localsend/v2/upload"},
		{CancelPath, "/api/localsend/v2/cancel"},
		{RegisterPath, "/api/localsend/v2/register"},
		{InfoPath, "/api/localsend/v2/info"},
	}

	for _, tt := range paths {
		if tt.path != tt.expected {
			t.Errorf("Path constant = %q; want %q", tt.path, tt.expected)
		}
	}
}
