package mux

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/logging"
)

// ErrRejected is passed to Handler.OnClose when the remote end had no core
// for the session's discovery key.
var ErrRejected = errors.New("mux: session rejected by remote")

// Handler receives the events of one session. Attach compares handlers with
// ==, so implementations must be comparable.
type Handler interface {
	OnOpen(s *Session)
	OnMessage(s *Session, payload []byte)
	OnClose(s *Session, err error)
}

// Options configures a Stream.
type Options struct {
	Limits Limits
	// OnDiscoveryKey is called on its own goroutine when the remote end opens
	// a key with no local session. It must eventually call Attach or Reject.
	// When nil every such key is rejected.
	OnDiscoveryKey func(s *Stream, dk domain.DiscoveryKey)
	Logger         *zerolog.Logger
}

// Stream multiplexes sessions over conn.
type Stream struct {
	id     string
	conn   io.ReadWriteCloser
	limits Limits
	log    zerolog.Logger

	onDiscoveryKey func(*Stream, domain.DiscoveryKey)

	out    *queue[Frame]
	events *queue[func()]

	mu       sync.Mutex
	sessions map[domain.DiscoveryKey]*Session
	pending  map[domain.DiscoveryKey]struct{}
	hooks    []func(error)
	hooksRan bool
	closing  bool
	err      error

	finishOnce sync.Once
	writerDone chan struct{}
	done       chan struct{}
}

// New starts multiplexing over conn. The stream owns conn and closes it when
// the stream ends.
func New(conn io.ReadWriteCloser, opts Options) *Stream {
	if opts.Limits.MaxPayloadBytes == 0 {
		opts.Limits = DefaultLimits()
	}
	id := uuid.NewString()
	log := logging.Component("mux")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	s := &Stream{
		id:             id,
		conn:           conn,
		limits:         opts.Limits,
		log:            log.With().Str("stream", id).Logger(),
		onDiscoveryKey: opts.OnDiscoveryKey,
		out:            newQueue[Frame](),
		events:         newQueue[func()](),
		sessions:       make(map[domain.DiscoveryKey]*Session),
		pending:        make(map[domain.DiscoveryKey]struct{}),
		writerDone:     make(chan struct{}),
		done:           make(chan struct{}),
	}
	if nc, ok := conn.(net.Conn); ok {
		s.log = s.log.With().Str("remote", nc.RemoteAddr().String()).Logger()
	}

	go s.readLoop()
	go s.writeLoop()
	go s.dispatchLoop()
	return s
}

// ID returns the random identifier used in logs.
func (s *Stream) ID() string { return s.id }

// Done is closed after the connection is closed and every callback, close
// hooks included, has returned.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the error the stream ended with. It is nil while the stream is
// running and after a graceful close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Closed reports whether the stream has started shutting down.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Sessions returns the number of attached sessions.
func (s *Stream) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// OnClose registers fn to run once the stream has ended. If it already has,
// fn runs immediately.
func (s *Stream) OnClose(fn func(err error)) {
	s.mu.Lock()
	if s.hooksRan {
		err := s.err
		s.mu.Unlock()
		fn(err)
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// HandleDiscoveryKeys replaces the OnDiscoveryKey callback. Keys that arrive
// while no callback is set are rejected.
func (s *Stream) HandleDiscoveryKeys(fn func(*Stream, domain.DiscoveryKey)) {
	s.mu.Lock()
	s.onDiscoveryKey = fn
	s.mu.Unlock()
}

// Attach opens a session for dk. Attaching a key again with the same handler
// returns the existing session. A different handler takes the key over: the
// old session is closed on both ends and a new one is opened.
func (s *Stream) Attach(dk domain.DiscoveryKey, h Handler) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return nil, fmt.Errorf("stream %s: %w", s.id, domain.ErrClosed)
	}
	if old, ok := s.sessions[dk]; ok {
		if old.handler == h {
			return old, nil
		}
		old.closed = true
		delete(s.sessions, dk)
		s.out.push(newFrame(FrameClose, dk, nil))
		s.events.push(func() { old.handler.OnClose(old, nil) })
		s.log.Debug().Str("dk", dk.String()).Msg("session replaced")
	}

	sess := &Session{stream: s, dk: dk, handler: h}
	s.sessions[dk] = sess
	if _, ok := s.pending[dk]; ok {
		delete(s.pending, dk)
		sess.remoteOpen = true
	}
	if sess.remoteOpen {
		sess.opened = true
		s.events.push(func() { h.OnOpen(sess) })
	}
	s.out.push(newFrame(FrameOpen, dk, nil))
	s.log.Debug().Str("dk", dk.String()).Bool("remote_open", sess.remoteOpen).Msg("session attached")
	return sess, nil
}

// Reject tells the remote end there is no session for dk. It is a no-op if
// a session was attached in the meantime.
func (s *Stream) Reject(dk domain.DiscoveryKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, dk)
	if s.closing {
		return
	}
	if _, ok := s.sessions[dk]; ok {
		return
	}
	s.out.push(newFrame(FrameReject, dk, nil))
	s.log.Debug().Str("dk", dk.String()).Msg("session rejected")
}

// Close flushes queued frames and closes the connection.
func (s *Stream) Close() error {
	s.finish(nil)
	return nil
}

// Destroy closes the connection immediately. Sessions see err in OnClose.
func (s *Stream) Destroy(err error) {
	if err == nil {
		err = fmt.Errorf("stream %s: %w", s.id, domain.ErrClosed)
	}
	s.finish(err)
	_ = s.conn.Close()
}

func (s *Stream) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.err = err
		sessions := s.sessions
		s.sessions = make(map[domain.DiscoveryKey]*Session)
		s.pending = make(map[domain.DiscoveryKey]struct{})
		for _, sess := range sessions {
			sess.closed = true
			s.events.push(func() { sess.handler.OnClose(sess, err) })
		}
		s.events.close()
		s.out.close()
		s.mu.Unlock()

		if err != nil {
			s.log.Debug().Err(err).Msg("stream closed")
		} else {
			s.log.Debug().Msg("stream closed")
		}
	})
}

func (s *Stream) readLoop() {
	for {
		f, err := ReadFrame(s.conn, s.limits)
		if err != nil {
			if errors.Is(err, io.EOF) || s.Closed() {
				s.finish(nil)
				return
			}
			s.Destroy(err)
			return
		}
		s.handle(f)
	}
}

func (s *Stream) handle(f Frame) {
	dk := f.Header.DiscoveryKey

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}

	switch f.Header.Type {
	case FrameOpen:
		if sess, ok := s.sessions[dk]; ok {
			if !sess.remoteOpen {
				sess.remoteOpen = true
				sess.opened = true
				s.events.push(func() { sess.handler.OnOpen(sess) })
			}
			return
		}
		if _, ok := s.pending[dk]; ok {
			return
		}
		s.pending[dk] = struct{}{}
		if s.onDiscoveryKey == nil {
			delete(s.pending, dk)
			s.out.push(newFrame(FrameReject, dk, nil))
			return
		}
		s.log.Debug().Str("dk", dk.String()).Msg("remote opened unknown key")
		go s.onDiscoveryKey(s, dk)

	case FrameReject, FrameClose:
		delete(s.pending, dk)
		sess, ok := s.sessions[dk]
		if !ok {
			return
		}
		delete(s.sessions, dk)
		sess.closed = true
		var reason error
		if f.Header.Type == FrameReject {
			reason = ErrRejected
		}
		s.events.push(func() { sess.handler.OnClose(sess, reason) })

	case FrameMessage:
		sess, ok := s.sessions[dk]
		if !ok || !sess.opened {
			return
		}
		payload := f.Payload
		s.events.push(func() { sess.handler.OnMessage(sess, payload) })

	default:
		s.log.Warn().Stringer("type", f.Header.Type).Msg("dropping unknown frame")
	}
}

func (s *Stream) writeLoop() {
	defer close(s.writerDone)
	defer s.conn.Close()

	for {
		batch, ok := s.out.next()
		if !ok {
			return
		}
		for _, f := range batch {
			if err := WriteFrame(s.conn, f, s.limits); err != nil {
				if !s.Closed() {
					s.Destroy(err)
				}
				return
			}
		}
	}
}

func (s *Stream) dispatchLoop() {
	for {
		batch, ok := s.events.next()
		if !ok {
			break
		}
		for _, fn := range batch {
			fn()
		}
	}
	<-s.writerDone

	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.hooksRan = true
	err := s.err
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(err)
	}
	close(s.done)
}

// Session is one discovery key's share of a stream.
type Session struct {
	stream  *Stream
	dk      domain.DiscoveryKey
	handler Handler

	// guarded by stream.mu
	remoteOpen bool
	opened     bool
	closed     bool
}

func (s *Session) DiscoveryKey() domain.DiscoveryKey { return s.dk }
func (s *Session) Stream() *Stream                   { return s.stream }

// Send queues payload for the remote end. The caller must not modify payload
// afterwards.
func (s *Session) Send(payload []byte) error {
	st := s.stream
	st.mu.Lock()
	defer st.mu.Unlock()

	if s.closed || st.closing {
		return fmt.Errorf("session %s: %w", s.dk, domain.ErrClosed)
	}
	if !st.out.push(newFrame(FrameMessage, s.dk, payload)) {
		return fmt.Errorf("stream %s: %w", st.id, domain.ErrClosed)
	}
	return nil
}

// Close ends the session on both ends. The connection stays up.
func (s *Session) Close() error {
	s.end(FrameClose, nil)
	return nil
}

// Reject ends the session and tells the remote end there is nothing local
// for its key. The connection stays up.
func (s *Session) Reject() {
	s.end(FrameReject, ErrRejected)
}

func (s *Session) end(t FrameType, reason error) {
	st := s.stream
	st.mu.Lock()
	defer st.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if st.sessions[s.dk] == s {
		delete(st.sessions, s.dk)
	}
	if !st.closing {
		st.out.push(newFrame(t, s.dk, nil))
		st.events.push(func() { s.handler.OnClose(s, reason) })
	}
}
