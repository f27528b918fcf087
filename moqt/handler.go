package moqt

// ConnectionHandler serves connections accepted by a Server.
//
// ServeMOQ runs on its own goroutine once the handshake completes. The
// connection stays open after ServeMOQ returns, until either peer closes it,
// so a handler may simply publish or consume and return.
type ConnectionHandler interface {
	ServeMOQ(conn *Connection)
}

// ConnectionHandlerFunc adapts an ordinary function to ConnectionHandler.
type ConnectionHandlerFunc func(conn *Connection)

func (f ConnectionHandlerFunc) ServeMOQ(conn *Connection) {
	f(conn)
}
