package moqt

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/okdaichi/moqlite/quic"
)

var _ quic.Listener = (*MockQUICListener)(nil)

// MockQUICListener hands out the connections pushed with Push.
type MockQUICListener struct {
	conns chan quic.Connection

	closeOnce sync.Once
	closed    chan struct{}
}

func newMockQUICListener() *MockQUICListener {
	return &MockQUICListener{
		conns:  make(chan quic.Connection, 16),
		closed: make(chan struct{}),
	}
}

func (m *MockQUICListener) Push(conn quic.Connection) {
	m.conns <- conn
}

func (m *MockQUICListener) Accept(ctx context.Context) (quic.Connection, error) {
	select {
	case conn := <-m.conns:
		return conn, nil
	case <-m.closed:
		return nil, errors.New("listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MockQUICListener) Addr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4433}
}

func (m *MockQUICListener) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}
