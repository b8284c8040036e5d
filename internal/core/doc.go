// Package core implements a signed append-only log that replicates over
// mux sessions.
//
// A core lives in four blobs below its directory:
//
//	key         32-byte public key
//	secret_key  64-byte expanded secret key, writable cores only
//	meta        JSON metadata
//	data        records of u32 length | 64-byte signature | payload
//
// Entries are chained: h_i = BLAKE2b-256(h_{i-1} || u64 i || payload), and
// each record carries the Ed25519 signature of h_i. Readers verify every
// entry they load from disk or receive from a peer.
package core
