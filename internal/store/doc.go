// Package store is the channel registry: it owns a root identity, the cores
// derived from it, and the replication streams those cores travel over.
//
// Channels are requested in two phases. Writable, Readable and Get validate
// the request and return a Channel descriptor without doing any I/O;
// Channel.Open resolves the core, creating it on first use, and waits until
// it is ready.
//
// At most one core is live per discovery key. The cache check, the insert of
// a new core and its attachment to every tracked stream happen under one
// lock, and the inserted core doubles as the in-flight creation that later
// resolvers wait on. A core that is closing is waited out and then created
// again.
package store
