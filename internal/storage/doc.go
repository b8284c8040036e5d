// Package storage provides the byte-addressable blobs that back root keys and
// cores.
//
// Two providers are available:
//   - Dir stores each blob as a file below a root directory. Parent
//     directories are created on first write and Lock takes an flock on unix.
//   - Memory keeps blobs in process memory. Opening the same name twice sees
//     the same bytes, which lets tests reopen a store without touching disk.
//
// Reading past the end of a blob, or stating a blob that was never written,
// fails with an error wrapping os.ErrNotExist.
package storage
