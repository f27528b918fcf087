package moqt

import "github.com/quic-go/quic-go/http3"

// NextProtoMOQ is the ALPN token selecting MOQ Lite on a native QUIC connection.
const NextProtoMOQ = "moq-lite-02"

// NextProtoH3 is the ALPN token for HTTP/3, over which WebTransport runs.
const NextProtoH3 = http3.NextProtoH3
