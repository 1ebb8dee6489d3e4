package utils

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"strings"
)

// SHA256ofCert is the upper-case hex digest of the DER certificate.
func SHA256ofCert(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)

	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
