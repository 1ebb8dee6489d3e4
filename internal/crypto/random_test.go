package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNewToken(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not URL-safe base64: %v", err)
	}
	if len(raw) != TokenSize {
		t.Errorf("decoded token length = %d; want %d", len(raw), TokenSize)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q contains characters that need escaping in a query", token)
	}
}

func TestNewTokenUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := NewToken()
		if err != nil {
			t.Fatalf("NewToken failed: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestNewFingerprint(t *testing.T) {
	fp, err := NewFingerprint()
	if err != nil {
		t.Fatalf("NewFingerprint failed: %v", err)
	}
	if len(fp) != 2*FingerprintSize {
		t.Errorf("fingerprint length = %d; want %d", len(fp), 2*FingerprintSize)
	}
	if err := ValidateFingerprint(fp); err != nil {
		t.Errorf("ValidateFingerprint(%q) = %v; want nil", fp, err)
	}
}

func TestValidateFingerprint(t *testing.T) {
	tests := []struct {
		name string
		fp   string
		ok   bool
	}{
		{"valid", strings.Repeat("ab", FingerprintSize), true},
		{"too short", "abcd", false},
		{"not hex", strings.Repeat("zz", FingerprintSize), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFingerprint(tt.fp)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateFingerprint(%q) = %v; want ok=%v", tt.fp, err, tt.ok)
			}
		})
	}
}

func TestNewPIN(t *testing.T) {
	pin, err := NewPIN(6)
	if err != nil {
		t.Fatalf("NewPIN failed: %v", err)
	}
	if len(pin) != 6 {
		t.Fatalf("len(pin) = %d; want 6", len(pin))
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			t.Errorf("pin %q contains non-digit %q", pin, c)
		}
	}
}
