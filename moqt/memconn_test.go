package moqt

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/okdaichi/moqlite/quic"
)

// newConnPair returns two in-memory connections connected to each other.
// Streams behave like QUIC streams: FIN, resets and STOP_SENDING are
// delivered to the peer, and closing a connection fails every stream on
// both sides with an application error.
func newConnPair(alpn string) (client, server *memConn) {
	state := quic.ConnectionState{
		TLS: tls.ConnectionState{NegotiatedProtocol: alpn},
	}

	client = newMemConn(true, state,
		&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000},
		&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4433},
	)
	server = newMemConn(false, state,
		&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4433},
		&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000},
	)
	client.peer = server
	server.peer = client

	return client, server
}

var _ quic.Connection = (*memConn)(nil)

type memConn struct {
	peer     *memConn
	isClient bool
	state    quic.ConnectionState
	local    net.Addr
	remote   net.Addr

	ctx    context.Context
	cancel context.CancelCauseFunc

	bidi chan *memStream
	uni  chan *memReceiveStream

	mu       sync.Mutex
	nextBidi quic.StreamID
	nextUni  quic.StreamID
	ends     []pipeEnd
	closed   bool
}

type pipeEnd struct {
	p      *pipe
	writer bool
}

func newMemConn(isClient bool, state quic.ConnectionState, local, remote net.Addr) *memConn {
	ctx, cancel := context.WithCancelCause(context.Background())

	c := &memConn{
		isClient: isClient,
		state:    state,
		local:    local,
		remote:   remote,
		ctx:      ctx,
		cancel:   cancel,
		bidi:     make(chan *memStream, 256),
		uni:      make(chan *memReceiveStream, 256),
	}

	if isClient {
		c.nextBidi, c.nextUni = 0, 2
	} else {
		c.nextBidi, c.nextUni = 1, 3
	}

	return c
}

func (c *memConn) AcceptStream(ctx context.Context) (quic.Stream, error) {
	select {
	case s := <-c.bidi:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, context.Cause(c.ctx)
	}
}

func (c *memConn) AcceptUniStream(ctx context.Context) (quic.ReceiveStream, error) {
	select {
	case s := <-c.uni:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, context.Cause(c.ctx)
	}
}

func (c *memConn) OpenStream() (quic.Stream, error) {
	return c.OpenStreamSync(context.Background())
}

func (c *memConn) OpenStreamSync(ctx context.Context) (quic.Stream, error) {
	if err := c.err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	id := c.nextBidi
	c.nextBidi += 4
	c.mu.Unlock()

	out := newPipe(id)
	in := newPipe(id)

	c.register(pipeEnd{p: out, writer: true}, pipeEnd{p: in, writer: false})
	c.peer.register(pipeEnd{p: out, writer: false}, pipeEnd{p: in, writer: true})

	select {
	case c.peer.bidi <- &memStream{id: id, send: out, recv: in}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, context.Cause(c.ctx)
	}

	return &memStream{id: id, send: in, recv: out}, nil
}

func (c *memConn) OpenUniStream() (quic.SendStream, error) {
	return c.OpenUniStreamSync(context.Background())
}

func (c *memConn) OpenUniStreamSync(ctx context.Context) (quic.SendStream, error) {
	if err := c.err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	id := c.nextUni
	c.nextUni += 4
	c.mu.Unlock()

	p := newPipe(id)

	c.register(pipeEnd{p: p, writer: true})
	c.peer.register(pipeEnd{p: p, writer: false})

	select {
	case c.peer.uni <- &memReceiveStream{id: id, recv: p}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, context.Cause(c.ctx)
	}

	return &memSendStream{id: id, send: p}, nil
}

func (c *memConn) CloseWithError(code quic.ApplicationErrorCode, msg string) error {
	c.closeWith(&quic.ApplicationError{ErrorCode: code, ErrorMessage: msg})
	c.peer.closeWith(&quic.ApplicationError{ErrorCode: code, ErrorMessage: msg, Remote: true})
	return nil
}

func (c *memConn) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ends := c.ends
	c.ends = nil
	c.mu.Unlock()

	for _, end := range ends {
		end.p.fail(end.writer, err)
	}

	c.cancel(err)
}

func (c *memConn) register(ends ...pipeEnd) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		err := context.Cause(c.ctx)
		for _, end := range ends {
			end.p.fail(end.writer, err)
		}
		return
	}
	c.ends = append(c.ends, ends...)
}

func (c *memConn) err() error {
	if c.ctx.Err() != nil {
		return context.Cause(c.ctx)
	}
	return nil
}

func (c *memConn) ConnectionState() quic.ConnectionState { return c.state }
func (c *memConn) Context() context.Context { return c.ctx }
func (c *memConn) LocalAddr() net.Addr { return c.local }
func (c *memConn) RemoteAddr() net.Addr { return c.remote }

// pipe is one direction of a stream.
type pipe struct {
	id quic.StreamID

	mu     sync.Mutex
	notify chan struct{}
	buf    []byte
	fin    bool

	// writerErr and readerErr are returned to the writing and reading end.
	writerErr error
	readerErr error

	writeClosed  bool
	readDeadline time.Time
}

func newPipe(id quic.StreamID) *pipe {
	return &pipe{
		id:     id,
		notify: make(chan struct{}),
	}
}

// signal must be called with p.mu held.
func (p *pipe) signal() {
	close(p.notify)
	p.notify = make(chan struct{})
}

func (p *pipe) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writerErr != nil {
		return 0, p.writerErr
	}
	if p.writeClosed {
		return 0, errors.New("write on closed stream")
	}

	p.buf = append(p.buf, b...)
	p.signal()

	return len(b), nil
}

func (p *pipe) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeClosed {
		return nil
	}
	p.writeClosed = true
	p.fin = true
	p.signal()

	return nil
}

func (p *pipe) cancelWrite(code quic.StreamErrorCode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeClosed = true
	if p.writerErr == nil {
		p.writerErr = &quic.StreamError{StreamID: p.id, ErrorCode: code}
	}

	// Data fully delivered before the reset is not taken back.
	if p.fin && len(p.buf) == 0 {
		return
	}
	if p.readerErr == nil {
		p.readerErr = &quic.StreamError{StreamID: p.id, ErrorCode: code, Remote: true}
		p.buf = nil
	}
	p.signal()
}

func (p *pipe) cancelRead(code quic.StreamErrorCode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readerErr == nil {
		p.readerErr = &quic.StreamError{StreamID: p.id, ErrorCode: code}
	}
	p.buf = nil
	if p.writerErr == nil && !p.fin {
		p.writerErr = &quic.StreamError{StreamID: p.id, ErrorCode: code, Remote: true}
	}
	p.signal()
}

func (p *pipe) fail(writer bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer {
		if p.writerErr == nil {
			p.writerErr = err
		}
	} else if p.readerErr == nil {
		p.readerErr = err
		p.buf = nil
	}
	p.signal()
}

func (p *pipe) read(b []byte) (int, error) {
	for {
		p.mu.Lock()
		if p.readerErr != nil {
			err := p.readerErr
			p.mu.Unlock()
			return 0, err
		}
		if len(p.buf) > 0 {
			n := copy(b, p.buf)
			p.buf = p.buf[n:]
			p.mu.Unlock()
			return n, nil
		}
		if p.fin {
			p.mu.Unlock()
			return 0, io.EOF
		}
		deadline := p.readDeadline
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			p.mu.Unlock()
			return 0, os.ErrDeadlineExceeded
		}
		notify := p.notify
		p.mu.Unlock()

		if deadline.IsZero() {
			<-notify
			continue
		}

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (p *pipe) setReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readDeadline = t
	p.signal()

	return nil
}

var _ quic.Stream = (*memStream)(nil)

type memStream struct {
	id   quic.StreamID
	send *pipe
	recv *pipe
}

func (s *memStream) StreamID() quic.StreamID { return s.id }
func (s *memStream) Read(b []byte) (int, error) { return s.recv.read(b) }
func (s *memStream) Write(b []byte) (int, error) { return s.send.write(b) }
func (s *memStream) Close() error { return s.send.close() }
func (s *memStream) CancelWrite(code quic.StreamErrorCode) { s.send.cancelWrite(code) }
func (s *memStream) CancelRead(code quic.StreamErrorCode) { s.recv.cancelRead(code) }
func (s *memStream) SetReadDeadline(t time.Time) error { return s.recv.setReadDeadline(t) }
func (s *memStream) SetWriteDeadline(time.Time) error { return nil }
func (s *memStream) SetDeadline(t time.Time) error { return s.recv.setReadDeadline(t) }

var _ quic.SendStream = (*memSendStream)(nil)

type memSendStream struct {
	id   quic.StreamID
	send *pipe
}

func (s *memSendStream) StreamID() quic.StreamID { return s.id }
func (s *memSendStream) Write(b []byte) (int, error) { return s.send.write(b) }
func (s *memSendStream) Close() error { return s.send.close() }
func (s *memSendStream) CancelWrite(code quic.StreamErrorCode) { s.send.cancelWrite(code) }
func (s *memSendStream) SetWriteDeadline(time.Time) error { return nil }

var _ quic.ReceiveStream = (*memReceiveStream)(nil)

type memReceiveStream struct {
	id   quic.StreamID
	recv *pipe
}

func (s *memReceiveStream) StreamID() quic.StreamID { return s.id }
func (s *memReceiveStream) Read(b []byte) (int, error) { return s.recv.read(b) }
func (s *memReceiveStream) CancelRead(code quic.StreamErrorCode) { s.recv.cancelRead(code) }
func (s *memReceiveStream) SetReadDeadline(t time.Time) error { return s.recv.setReadDeadline(t) }
