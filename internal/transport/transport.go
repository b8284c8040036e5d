// Package transport carries replication streams over TCP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukeburns/channeler/internal/logging"
	"github.com/lukeburns/channeler/internal/mux"
)

// DefaultDialTimeout bounds Dial when ctx has no deadline.
const DefaultDialTimeout = 5 * time.Second

// Replicator runs replication over an established connection.
type Replicator interface {
	Replicate(conn io.ReadWriteCloser) (*mux.Stream, error)
}

// Server accepts TCP connections and hands each to a Replicator.
type Server struct {
	r   Replicator
	log zerolog.Logger

	mu      sync.Mutex
	streams map[*mux.Stream]struct{}
	closed  bool
}

// NewServer returns a server replicating through r.
func NewServer(r Replicator) *Server {
	return &Server{
		r:       r,
		log:     logging.Component("transport"),
		streams: make(map[*mux.Stream]struct{}),
	}
}

// Listen opens a TCP listener on addr.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is done or ln fails, then
// closes ln and every stream it started. Connections accepted after that
// are closed immediately.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer func() {
		close(stop)
		_ = ln.Close()
		s.closeAll()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.handle(conn)
	}
}

// Active returns the number of live inbound streams.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *Server) handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	st, err := s.r.Replicate(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", remote).Msg("replicate inbound")
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = st.Close()
		return
	}
	s.streams[st] = struct{}{}
	n := len(s.streams)
	s.mu.Unlock()
	s.log.Info().Str("remote", remote).Str("stream", st.ID()).Int("active", n).Msg("peer connected")

	st.OnClose(func(err error) {
		s.mu.Lock()
		delete(s.streams, st)
		n := len(s.streams)
		s.mu.Unlock()
		s.log.Info().Err(err).Str("remote", remote).Int("active", n).Msg("peer disconnected")
	})
}

func (s *Server) closeAll() {
	s.mu.Lock()
	s.closed = true
	streams := make([]*mux.Stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()
	for _, st := range streams {
		_ = st.Close()
	}
}

// Dial connects to addr and replicates over the connection.
func Dial(ctx context.Context, addr string, r Replicator) (*mux.Stream, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	st, err := r.Replicate(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	l := logging.Component("transport")
	l.Info().Str("remote", addr).Str("stream", st.ID()).Msg("connected")
	return st, nil
}
