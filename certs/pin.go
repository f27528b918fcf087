package certs

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// FingerprintPath is where Handler is conventionally mounted.
const FingerprintPath = "/certificate.sha256"

var (
	// ErrFingerprintMismatch is returned by a pinned TLS config when the
	// server presents a different certificate.
	ErrFingerprintMismatch = errors.New("certs: certificate fingerprint mismatch")

	// ErrInvalidFingerprint is returned when a fetched fingerprint is not 32
	// hex-encoded bytes.
	ErrInvalidFingerprint = errors.New("certs: invalid fingerprint")
)

// Handler serves the fingerprint of info in hex.
func Handler(info *CertInfo) http.Handler {
	body := []byte(info.FingerprintHex())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(body)
	})
}

// ParseFingerprint decodes a hex fingerprint, ignoring surrounding whitespace.
func ParseFingerprint(s string) ([32]byte, error) {
	var fp [32]byte

	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(b) != len(fp) {
		return fp, ErrInvalidFingerprint
	}
	copy(fp[:], b)

	return fp, nil
}

// FetchFingerprint fetches a hex fingerprint from url.
func FetchFingerprint(ctx context.Context, client *http.Client, url string) ([32]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return [32]byte{}, err
	}

	rsp, err := client.Do(req)
	if err != nil {
		return [32]byte{}, fmt.Errorf("fetch fingerprint: %w", err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return [32]byte{}, fmt.Errorf("fetch fingerprint: unexpected status %s", rsp.Status)
	}

	// 64 hex characters plus a little slack for a trailing newline.
	body, err := io.ReadAll(io.LimitReader(rsp.Body, 128))
	if err != nil {
		return [32]byte{}, fmt.Errorf("fetch fingerprint: %w", err)
	}

	return ParseFingerprint(string(body))
}

// Pin returns a copy of base that trusts exactly the leaf certificate with
// fingerprint fp instead of verifying the chain. base may be nil.
func Pin(base *tls.Config, fp [32]byte) *tls.Config {
	var conf *tls.Config
	if base != nil {
		conf = base.Clone()
	} else {
		conf = &tls.Config{}
	}

	conf.InsecureSkipVerify = true
	conf.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrFingerprintMismatch
		}
		sum := sha256.Sum256(rawCerts[0])
		if subtle.ConstantTimeCompare(sum[:], fp[:]) != 1 {
			return ErrFingerprintMismatch
		}
		return nil
	}

	return conf
}
