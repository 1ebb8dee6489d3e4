package utils

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandChoiceCoversEveryElement(t *testing.T) {
	l := []string{"a", "b"}
	seen := map[string]bool{}

	for i := 0; i < 200 && len(seen) < len(l); i++ {
		seen[RandChoice(l)] = true
	}

	assert.Len(t, seen, 2)
	assert.Equal(t, "only", RandChoice([]string{"only"}))
}

func TestSHA256ofCert(t *testing.T) {
	cert := &x509.Certificate{Raw: []byte("hello")}

	assert.Equal(t, "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", SHA256ofCert(cert))
}

func TestGetMyIPv4Addr(t *testing.T) {
	ips, err := GetMyIPv4Addr()
	assert.NoError(t, err)

	for _, ip := range ips {
		assert.NotNil(t, ip.To4())
		assert.False(t, ip.IsLoopback())
	}
}
