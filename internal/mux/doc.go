// Package mux carries many replication sessions over one duplex connection.
//
// Every frame names the session it belongs to by discovery key. A session is
// usable once both ends have sent an open frame for the same key. When the
// remote end opens a key nothing local has attached, the stream asks its
// owner through OnDiscoveryKey; the owner answers with Attach or Reject.
// Rejecting a key ends that one session and leaves the connection up.
//
// Handler callbacks run on a single dispatch goroutine per stream, in the
// order the events happened. Sends never block, so a handler may send from
// inside a callback.
package mux
