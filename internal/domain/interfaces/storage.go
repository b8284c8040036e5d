package interfaces

// ByteStorage is a byte-addressable blob. Reads past the end and stats of a
// blob that was never written fail with an error wrapping os.ErrNotExist.
type ByteStorage interface {
	Stat() (size int64, err error)
	Read(offset int64, size int) ([]byte, error)
	Write(offset int64, data []byte) error
	Close() error
}

// Locker is implemented by storage that can take an exclusive writer lock.
type Locker interface {
	Lock() error
}

// StorageProvider opens blobs by slash-separated name.
type StorageProvider interface {
	Open(name string) (ByteStorage, error)
}
