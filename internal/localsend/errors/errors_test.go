package errors

import (
	"fmt"
	"testing"
)

func TestStatusRoundTrip(t *testing.T) {
	for _, status := range []int{200, 204, 400, 401, 403, 404, 409, 429} {
		if got := Status(ParseError(status)); got != status {
			t.Errorf("Status(ParseError(%d)) = %d", status, got)
		}
	}
}

func TestStatusWrapped(t *testing.T) {
	err := fmt.Errorf("upload %s: %w", "file-1", ErrRejected)
	if got := Status(err); got != 403 {
		t.Errorf("Status(wrapped ErrRejected) = %d; want 403", got)
	}

	if got := Status(ErrFileIO); got != 500 {
		t.Errorf("Status(ErrFileIO) = %d; want 500", got)
	}
	if got := Status(ErrChecksum); got != 500 {
		t.Errorf("Status(ErrChecksum) = %d; want 500", got)
	}
}

func TestParseErrorUnknown(t *testing.T) {
	for _, status := range []int{201, 302, 500, 502} {
		if err := ParseError(status); err != ErrUnknown {
			t.Errorf("ParseError(%d) = %v; want ErrUnknown", status, err)
		}
	}
}
