// Package webtransport abstracts WebTransport so that browser sessions can be
// served through the same quic.Connection interface as native QUIC.
//
// WebTransport runs over HTTP/3. A Server upgrades HTTP/3 requests into
// sessions, and a DialAddrFunc opens sessions from the client side. The
// webtransportgo subpackage implements both with github.com/quic-go/webtransport-go.
//
// Stream and session errors are translated into quic.StreamError and
// quic.ApplicationError, so callers can inspect error codes without knowing
// which transport carried them.
package webtransport
