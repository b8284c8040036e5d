package core

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/mux"
)

// Session message types.
const (
	msgSync byte = iota + 1 // u64 length
	msgData                 // u64 index | signature | payload
)

// peer is the replication state of one session.
type peer struct {
	sess   *mux.Session
	ready  bool   // our length was sent
	remote uint64 // entries the remote end is known to have
}

// Replicate attaches the core to stream. The session starts exchanging
// entries once the remote end attaches the same discovery key. Close ends
// every session attached here, opened or not.
func (c *Core) Replicate(stream *mux.Stream) (*mux.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return nil, fmt.Errorf("core %s: %w", c.dk, domain.ErrClosed)
	}
	sess, err := stream.Attach(c.dk, replicator{c})
	if err != nil {
		return nil, err
	}
	if _, ok := c.peers[sess]; !ok {
		c.peers[sess] = &peer{sess: sess}
	}
	return sess, nil
}

// Peers returns the number of sessions currently replicating.
func (c *Core) Peers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.peers {
		if p.ready {
			n++
		}
	}
	return n
}

// whenOpen runs fn once the core has finished opening, in the order events
// arrived. Until then fn is queued so the caller never waits on storage.
func (c *Core) whenOpen(fn func()) {
	c.gateMu.Lock()
	if c.live {
		c.gateMu.Unlock()
		fn()
		return
	}
	c.backlog = append(c.backlog, fn)
	start := !c.draining
	c.draining = true
	c.gateMu.Unlock()
	if start {
		go c.drain()
	}
}

func (c *Core) drain() {
	_ = c.Ready(context.Background())
	for {
		c.gateMu.Lock()
		fns := c.backlog
		c.backlog = nil
		if len(fns) == 0 {
			c.live = true
			c.draining = false
			c.gateMu.Unlock()
			return
		}
		c.gateMu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}

// replicator adapts a Core to mux.Handler. Callbacks run on the stream's
// dispatch goroutine; events for a core that is still opening are queued.
type replicator struct{ c *Core }

var _ mux.Handler = replicator{}

func (r replicator) OnOpen(sess *mux.Session) {
	c := r.c
	c.whenOpen(func() { c.startPeer(sess) })
}

func (r replicator) OnMessage(sess *mux.Session, payload []byte) {
	c := r.c
	if len(payload) == 0 {
		return
	}
	c.whenOpen(func() { c.handleMessage(sess, payload) })
}

func (r replicator) OnClose(sess *mux.Session, err error) {
	c := r.c
	c.whenOpen(func() {
		c.mu.Lock()
		delete(c.peers, sess)
		c.mu.Unlock()
	})
	if err != nil {
		c.log.Debug().Err(err).Str("stream", sess.Stream().ID()).Msg("peer closed")
	}
}

// startPeer begins replicating on an opened session, or rejects it if the
// core could not be opened.
func (c *Core) startPeer(sess *mux.Session) {
	if c.readyErr != nil {
		c.mu.Lock()
		delete(c.peers, sess)
		c.mu.Unlock()
		sess.Reject()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[sess]
	if !ok || p.ready || c.closing {
		return
	}
	p.ready = true
	c.sendLocked(p, syncMessage(uint64(len(c.entries))))
	c.log.Debug().Str("stream", sess.Stream().ID()).Msg("peer opened")
}

func (c *Core) handleMessage(sess *mux.Session, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[sess]
	if !ok || !p.ready || c.closing {
		return
	}

	switch payload[0] {
	case msgSync:
		if len(payload) != 9 {
			return
		}
		// The remote length is authoritative; a lower value asks for a resend.
		p.remote = binary.BigEndian.Uint64(payload[1:])
		c.catchUpLocked(p)

	case msgData:
		if len(payload) < 9+crypto.SignatureSize {
			return
		}
		index := binary.BigEndian.Uint64(payload[1:9])
		sig := payload[9 : 9+crypto.SignatureSize]
		data := payload[9+crypto.SignatureSize:]
		if index+1 > p.remote {
			p.remote = index + 1
		}
		c.receiveLocked(p, index, sig, data)
	}
}

// receiveLocked verifies and appends an entry from a peer.
func (c *Core) receiveLocked(from *peer, index uint64, sig, data []byte) {
	have := uint64(len(c.entries))
	switch {
	case index < have:
		return
	case index > have:
		// Ask for the gap again.
		c.sendLocked(from, syncMessage(have))
		return
	}

	h := chainHash(c.head, index, data)
	if !crypto.Verify(c.pub, h[:], sig) {
		c.log.Warn().Uint64("index", index).Str("stream", from.sess.Stream().ID()).Msg("dropping peer with bad signature")
		delete(c.peers, from.sess)
		_ = from.sess.Close()
		return
	}
	if err := c.appendLocked(index, h, sig, data); err != nil {
		c.log.Error().Err(err).Uint64("index", index).Msg("storing replicated entry")
		return
	}
	c.broadcastLocked(index, sig, data, from)
}

// catchUpLocked sends p every entry it is missing.
func (c *Core) catchUpLocked(p *peer) {
	for i := p.remote; i < uint64(len(c.entries)); i++ {
		sig, data, err := c.readLocked(i)
		if err != nil {
			c.log.Error().Err(err).Uint64("index", i).Msg("reading entry for peer")
			return
		}
		if !c.sendLocked(p, dataMessage(i, sig, data)) {
			return
		}
		p.remote = i + 1
	}
}

// broadcastLocked pushes a new entry to every ready peer except skip.
func (c *Core) broadcastLocked(index uint64, sig, data []byte, skip *peer) {
	for _, p := range c.peers {
		if p == skip || !p.ready || p.remote > index {
			continue
		}
		if p.remote < index {
			c.catchUpLocked(p)
			continue
		}
		if c.sendLocked(p, dataMessage(index, sig, data)) {
			p.remote = index + 1
		}
	}
}

func (c *Core) sendLocked(p *peer, msg []byte) bool {
	if err := p.sess.Send(msg); err != nil {
		delete(c.peers, p.sess)
		return false
	}
	return true
}

func syncMessage(length uint64) []byte {
	msg := make([]byte, 9)
	msg[0] = msgSync
	binary.BigEndian.PutUint64(msg[1:], length)
	return msg
}

func dataMessage(index uint64, sig, data []byte) []byte {
	msg := make([]byte, 0, 9+len(sig)+len(data))
	msg = append(msg, msgData)
	msg = binary.BigEndian.AppendUint64(msg, index)
	msg = append(msg, sig...)
	msg = append(msg, data...)
	return msg
}
