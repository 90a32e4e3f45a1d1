package grapi

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/grout-project/groutd/internal/grlog"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	log    = grlog.Named("api")
	tracer = otel.Tracer("groutd/grapi")
)

// writeState is a connection's pending-write state, mirroring the
// original's implicit DRAINED/PENDING/CLOSED cycle between api_read_cb's
// send_response and api_write_cb's retry.
type writeState int

const (
	drained writeState = iota
	pending
	closed
)

const (
	readChunk  = 4096
	epollWait  = 256 // max events per epoll_wait
	backlog    = 16  // matches the original's #define BACKLOG 16
)

type conn struct {
	fd      int
	id      uuid.UUID
	readBuf []byte
	outBuf  []byte
	state   writeState
}

// Server is the single-threaded reactor dispatch server (§4.F): one epoll
// loop, accepting connections on a UNIX stream socket and dispatching
// complete request frames against a Registry.
type Server struct {
	SockPath   string
	MaxPayload uint32
	Registry   *Registry

	epfd     int
	listenFd int
	conns    map[int]*conn
}

// NewServer constructs a Server bound to sockPath with the given handler
// registry and payload ceiling.
func NewServer(sockPath string, maxPayload uint32, registry *Registry) *Server {
	return &Server{
		SockPath:   sockPath,
		MaxPayload: maxPayload,
		Registry:   registry,
		conns:      make(map[int]*conn),
	}
}

// Listen binds and listens on SockPath, mirroring listen_api_socket: a
// non-blocking, close-on-exec UNIX stream socket with a backlog of 16.
func (s *Server) Listen() error {
	_ = os.Remove(s.SockPath)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("grapi: socket: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: s.SockPath}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("grapi: bind %s: %w", s.SockPath, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("grapi: listen %s: %w", s.SockPath, err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("grapi: epoll_create1: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
		unix.Close(fd)
		unix.Close(epfd)
		return fmt.Errorf("grapi: epoll_ctl add listener: %w", err)
	}

	s.listenFd = fd
	s.epfd = epfd
	log.Info("listening on API socket", zap.String("path", s.SockPath))
	return nil
}

// Close tears down the listener, every open connection, the epoll instance,
// and unlinks the socket path — the Go analogue of main()'s shutdown
// sequence (event_free_finalize on ev_listen, unlink, libevent_global_shutdown).
func (s *Server) Close() {
	for fd := range s.conns {
		unix.Close(fd)
	}
	s.conns = make(map[int]*conn)
	if s.listenFd != 0 {
		unix.Close(s.listenFd)
	}
	if s.epfd != 0 {
		unix.Close(s.epfd)
	}
	_ = os.Remove(s.SockPath)
}

// Run drives the epoll loop until ctx is canceled. It returns nil on a
// clean context cancellation, matching event_base_dispatch returning 0 on
// an ordinary exit from the loop.
func (s *Server) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, epollWait)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := unix.EpollWait(s.epfd, events, 200)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("grapi: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case fd == s.listenFd:
				s.acceptLoop()
			default:
				s.handleConnEvent(ctx, fd, events[i].Events)
			}
		}
	}
}

// acceptLoop drains every pending connection on the listening socket,
// mirroring listen_cb's accept4 loop until EAGAIN.
func (s *Server) acceptLoop() {
	for {
		fd, _, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			log.Error("accept", zap.Error(err))
			return
		}

		if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
			log.Error("epoll_ctl add connection", zap.Error(err))
			unix.Close(fd)
			continue
		}

		c := &conn{fd: fd, id: uuid.New()}
		s.conns[fd] = c
		log.Debug("new connection", zap.String("conn", c.id.String()))
	}
}

func (s *Server) handleConnEvent(ctx context.Context, fd int, events uint32) {
	c, ok := s.conns[fd]
	if !ok {
		return
	}

	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		s.closeConn(c)
		return
	}
	if events&unix.EPOLLOUT != 0 {
		s.flushWrite(c)
		if c.state == closed {
			return
		}
	}
	if events&unix.EPOLLIN != 0 {
		s.readAndDispatch(ctx, c)
	}
}

// readAndDispatch mirrors api_read_cb: drain the socket into c.readBuf,
// then peel off and dispatch every complete frame it now contains.
func (s *Server) readAndDispatch(ctx context.Context, c *conn) {
	buf := make([]byte, readChunk)
	for {
		n, err := unix.Read(c.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				break
			}
			log.Error("recv", zap.Error(err))
			s.closeConn(c)
			return
		}
		if n == 0 {
			log.Debug("client disconnected", zap.String("conn", c.id.String()))
			s.closeConn(c)
			return
		}
		c.readBuf = append(c.readBuf, buf[:n]...)
	}

	for {
		if len(c.readBuf) < HeaderSize {
			return
		}
		hdr, err := DecodeRequestHeader(c.readBuf)
		if err != nil {
			return
		}
		if err := CheckPayloadLen(hdr.PayloadLen, s.MaxPayload); err != nil {
			s.sendResponse(c, EncodeResponse(hdr.ID, grerrno.Of(err), nil))
			s.closeConn(c)
			return
		}
		total := HeaderSize + int(hdr.PayloadLen)
		if len(c.readBuf) < total {
			return
		}

		payload := append([]byte(nil), c.readBuf[HeaderSize:total]...)
		c.readBuf = c.readBuf[total:]
		s.dispatch(ctx, c, hdr, payload)
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, hdr RequestHeader, payload []byte) {
	ctx, span := tracer.Start(ctx, "api.dispatch")
	defer span.End()

	handler, ok := s.Registry.Lookup(hdr.Type)
	if !ok {
		log.Debug("unknown request type", zap.Uint32("type", hdr.Type))
		s.sendResponse(c, EncodeResponse(hdr.ID, grerrno.ENOTSUP, nil))
		return
	}

	log.Debug("request",
		zap.Uint32("id", hdr.ID),
		zap.String("handler", handler.Name),
		zap.String("payload_len", humanize.Bytes(uint64(len(payload)))),
	)

	respPayload, status := handler.Callback(payload)
	_ = ctx
	s.sendResponse(c, EncodeResponse(hdr.ID, status, respPayload))
}

// sendResponse mirrors send_response plus api_write_cb's EAGAIN retry:
// a short/blocked write leaves the remainder in c.outBuf and arms EPOLLOUT
// (state PENDING) until a later writable event drains it (state DRAINED).
func (s *Server) sendResponse(c *conn, frame []byte) {
	if c.state == pending {
		c.outBuf = append(c.outBuf, frame...)
		return
	}

	n, err := unix.Write(c.fd, frame)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			s.armPending(c, frame)
			return
		}
		log.Error("send", zap.Error(err))
		s.closeConn(c)
		return
	}
	if n < len(frame) {
		s.armPending(c, frame[n:])
		return
	}
	c.state = drained
}

func (s *Server) armPending(c *conn, remainder []byte) {
	c.outBuf = append(c.outBuf, remainder...)
	c.state = pending
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, c.fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT,
		Fd:     int32(c.fd),
	}); err != nil {
		log.Error("epoll_ctl mod (arm write)", zap.Error(err))
	}
}

func (s *Server) flushWrite(c *conn) {
	for len(c.outBuf) > 0 {
		n, err := unix.Write(c.fd, c.outBuf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			log.Error("send (retry)", zap.Error(err))
			s.closeConn(c)
			return
		}
		c.outBuf = c.outBuf[n:]
	}

	c.state = drained
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, c.fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(c.fd),
	}); err != nil {
		log.Error("epoll_ctl mod (disarm write)", zap.Error(err))
	}
}

func (s *Server) closeConn(c *conn) {
	c.state = closed
	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	unix.Close(c.fd)
	delete(s.conns, c.fd)
}
