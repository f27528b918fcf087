package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := map[string]struct {
		validity    time.Duration
		hosts       []string
		wantDNS     []string
		wantIPs     []net.IP
		maxValidity time.Duration
	}{
		"default hosts": {
			validity:    24 * time.Hour,
			wantDNS:     []string{"localhost"},
			wantIPs:     []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
			maxValidity: 24 * time.Hour,
		},
		"custom hosts": {
			validity:    time.Hour,
			hosts:       []string{"relay.example", "10.0.0.1"},
			wantDNS:     []string{"relay.example"},
			wantIPs:     []net.IP{net.ParseIP("10.0.0.1")},
			maxValidity: time.Hour,
		},
		"validity capped": {
			validity:    30 * 24 * time.Hour,
			wantDNS:     []string{"localhost"},
			maxValidity: maxValidity,
		},
		"zero validity uses maximum": {
			validity:    0,
			wantDNS:     []string{"localhost"},
			maxValidity: maxValidity,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			info, err := Generate(tt.validity, tt.hosts...)
			require.NoError(t, err)
			require.Len(t, info.TLSCert.Certificate, 1)

			cert, err := x509.ParseCertificate(info.TLSCert.Certificate[0])
			require.NoError(t, err)

			assert.LessOrEqual(t, cert.NotAfter.Sub(cert.NotBefore), tt.maxValidity)
			assert.True(t, cert.NotAfter.After(time.Now()))
			assert.Equal(t, tt.wantDNS, cert.DNSNames)
			for _, ip := range tt.wantIPs {
				assert.True(t, containsIP(cert.IPAddresses, ip), "missing %s", ip)
			}

			assert.Equal(t, sha256.Sum256(info.TLSCert.Certificate[0]), info.Fingerprint)
			assert.Len(t, info.FingerprintHex(), 64)
			assert.Equal(t, cert.NotAfter.Unix(), info.NotAfter.Unix())
		})
	}
}

func containsIP(ips []net.IP, ip net.IP) bool {
	for _, candidate := range ips {
		if candidate.Equal(ip) {
			return true
		}
	}
	return false
}
