// Package quic defines the transport surface the moqt package runs on.
//
// Connections, streams and listeners are expressed as interfaces so that a
// native QUIC connection (see the quicgo subpackage) and a WebTransport
// session (see the webtransport package) can be used interchangeably.
// Error types are aliases of the quic-go types, so errors.As works the same
// way regardless of the underlying transport.
//
// To listen for native QUIC connections:
//
//	ln, err := quicgo.ListenAddrEarly("localhost:4433", tlsConfig, quicConfig)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ln.Close()
//
//	for {
//	    conn, err := ln.Accept(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    go handle(conn)
//	}
package quic
