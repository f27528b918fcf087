package moqt

import (
	"context"
	"net/http"

	"github.com/okdaichi/moqlite/quic"
	"github.com/okdaichi/moqlite/webtransport"
	"github.com/stretchr/testify/mock"
)

var _ webtransport.Server = (*MockWebTransportServer)(nil)

// MockWebTransportServer is a mock implementation of the webtransport.Server interface
type MockWebTransportServer struct {
	mock.Mock
}

func (m *MockWebTransportServer) Upgrade(w http.ResponseWriter, r *http.Request) (quic.Connection, error) {
	args := m.Called(w, r)
	if conn, ok := args.Get(0).(quic.Connection); ok {
		return conn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWebTransportServer) ServeQUICConn(conn quic.Connection) error {
	args := m.Called(conn)
	return args.Error(0)
}

func (m *MockWebTransportServer) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockWebTransportServer) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
