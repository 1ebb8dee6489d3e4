// Package identity prepares the TLS material and the device fingerprint the
// file receiver needs before it may bind. Key and certificate are produced by
// an external tool; files that already exist are never regenerated.
package identity

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/0w0mewo/localsendgs/internal/crypto"
	"github.com/0w0mewo/localsendgs/internal/utils"
	"github.com/google/renameio/v2"
)

type Tool string

const (
	ToolCerttool Tool = "certtool"
	ToolOpenSSL  Tool = "openssl"
)

const defaultCommonName = "LocalSend User"

var (
	ErrTool     = errors.New("certificate tool failed")
	ErrMaterial = errors.New("invalid TLS material")
)

type Options struct {
	KeyFile         string
	CertFile        string
	FingerprintFile string

	Tool Tool
	// ToolPath overrides the executable looked up in PATH.
	ToolPath   string
	CommonName string
}

type Identity struct {
	Certificate tls.Certificate
	Fingerprint string
	// CertHash is the upper-case SHA-256 of the leaf certificate.
	CertHash string
}

func ParseTool(s string) (Tool, error) {
	switch Tool(strings.ToLower(strings.TrimSpace(s))) {
	case "", ToolCerttool:
		return ToolCerttool, nil
	case ToolOpenSSL:
		return ToolOpenSSL, nil
	default:
		return "", fmt.Errorf("unsupported certificate tool %q", s)
	}
}

// Bootstrap makes sure key, certificate and fingerprint exist and loads them.
// Any error means the receiver must not start.
func Bootstrap(ctx context.Context, opts Options) (*Identity, error) {
	if opts.KeyFile == "" || opts.CertFile == "" || opts.FingerprintFile == "" {
		return nil, errors.New("key, certificate and fingerprint paths are required")
	}
	if opts.Tool == "" {
		opts.Tool = ToolCerttool
	}
	if opts.ToolPath == "" {
		opts.ToolPath = string(opts.Tool)
	}
	if opts.CommonName == "" {
		opts.CommonName = defaultCommonName
	}

	fingerprint, err := ensureFingerprint(opts.FingerprintFile)
	if err != nil {
		return nil, err
	}

	if err := ensureKey(ctx, opts); err != nil {
		return nil, err
	}

	if err := ensureCert(ctx, opts); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaterial, err)
	}
	if cert.Leaf == nil {
		cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMaterial, err)
		}
	}

	return &Identity{
		Certificate: cert,
		Fingerprint: fingerprint,
		CertHash:    utils.SHA256ofCert(cert.Leaf),
	}, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func ensureFingerprint(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		fp := strings.TrimSpace(string(b))
		if err := crypto.ValidateFingerprint(fp); err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		return fp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	fp, err := crypto.NewFingerprint()
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, []byte(fp+"\n"), 0o644); err != nil {
		return "", err
	}

	slog.Info("Created device fingerprint", "file", path)

	return fp, nil
}

func ensureKey(ctx context.Context, opts Options) error {
	ok, err := exists(opts.KeyFile)
	if err != nil || ok {
		return err
	}

	var args []string
	switch opts.Tool {
	case ToolOpenSSL:
		args = []string{"genpkey", "-algorithm", "RSA", "-pkeyopt", "rsa_keygen_bits:2048"}
	default:
		args = []string{"--generate-privkey", "--no-text"}
	}

	out, err := runTool(ctx, opts.ToolPath, args...)
	if err != nil {
		return err
	}
	if err := writeAtomic(opts.KeyFile, out, 0o600); err != nil {
		return err
	}

	slog.Info("Created private key", "file", opts.KeyFile, "tool", opts.Tool)

	return nil
}

func ensureCert(ctx context.Context, opts Options) error {
	ok, err := exists(opts.CertFile)
	if err != nil || ok {
		return err
	}

	var args []string
	switch opts.Tool {
	case ToolOpenSSL:
		args = []string{"req", "-new", "-x509", "-key", opts.KeyFile, "-days", "3650", "-subj", "/CN=" + opts.CommonName}
	default:
		tmpl, err := os.CreateTemp("", "localsendgs-cert-*.tmpl")
		if err != nil {
			return err
		}
		defer os.Remove(tmpl.Name())

		_, err = fmt.Fprintf(tmpl, "cn = %q\nexpiration_days = 3650\ntls_www_server\nsigning_key\nencryption_key\n", opts.CommonName)
		if cerr := tmpl.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}

		args = []string{"-s", "--load-privkey", opts.KeyFile, "--template", tmpl.Name(), "--no-text"}
	}

	out, err := runTool(ctx, opts.ToolPath, args...)
	if err != nil {
		return err
	}
	if err := writeAtomic(opts.CertFile, out, 0o644); err != nil {
		return err
	}

	slog.Info("Created certificate", "file", opts.CertFile, "tool", opts.Tool)

	return nil
}

// runTool returns what the tool printed on stdout.
func runTool(ctx context.Context, tool string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w: %s", ErrTool, tool, args[0], err, strings.TrimSpace(stderr.String()))
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s %s: no output", ErrTool, tool, args[0])
	}

	return append(out, '\n'), nil
}

// writeAtomic replaces path with data. Readers see either nothing or the
// complete file.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	return renameio.WriteFile(path, data, perm, renameio.WithTempDir(dir))
}
