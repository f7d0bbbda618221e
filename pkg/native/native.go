// Package native defines the capability surface of the native filesystem
// client the hdfs package drives: sessions, open files, status entries and
// the errno conventions of each call.
//
// Every call returns its failure as a Go error carrying a syscall.Errno in
// the same return, so the error state can never be clobbered by a later
// call the way a process-global errno can.
package native

import (
	"errors"
	"os"
	"sync"
	"syscall"

	dfserrors "github.com/objectfs/hdfsclient/pkg/errors"
)

// Kind discriminates the entries returned by GetPathInfo and ListDirectory.
type Kind byte

const (
	KindFile      Kind = 'F'
	KindDirectory Kind = 'D'
)

// String returns "file", "directory", or the raw kind byte.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return string(rune(k))
	}
}

// Open flags accepted by FS.OpenFile.
const (
	O_RDONLY = os.O_RDONLY
	O_WRONLY = os.O_WRONLY
	O_APPEND = os.O_WRONLY | os.O_APPEND
)

// TimeUnchanged leaves a timestamp untouched in FS.Utime.
const TimeUnchanged int64 = -1

// EINTERNAL is reported for failures inside the client itself.
const EINTERNAL = dfserrors.EINTERNAL

// Status is one path's attributes as reported by the client.
type Status struct {
	Name        string
	Kind        Kind
	Size        int64
	BlockSize   int64
	Replication int16
	Owner       string
	Group       string
	Permissions int16
	LastMod     int64
	LastAccess  int64
}

// File is an open stream. All I/O goes through the FS that opened it.
type File interface {
	IsOpenForRead() bool
	IsOpenForWrite() bool
}

// FS is one live session against a filesystem.
type FS interface {
	Disconnect() error

	OpenFile(path string, flags int, bufferSize int, replication int16, blockSize int64) (File, error)
	CloseFile(f File) error
	Read(f File, buf []byte) (int, error)
	Pread(f File, position int64, buf []byte) (int, error)
	Write(f File, buf []byte) (int, error)
	SeekTo(f File, position int64) error
	Tell(f File) (int64, error)
	Flush(f File) error
	HFlush(f File) error
	Available(f File) (int, error)

	// Exists returns nil when path exists.
	Exists(path string) error
	// ListDirectory returns nil and -1 on failure. An empty directory is an
	// empty slice and 0.
	ListDirectory(path string) ([]Status, int, error)
	GetPathInfo(path string) (*Status, error)
	Delete(path string, recursive bool) error
	Rename(oldPath, newPath string) error
	CreateDirectory(path string) error
	Chmod(path string, mode int16) error
	// Chown leaves owner or group unchanged when passed "".
	Chown(path, owner, group string) error
	SetReplication(path string, replication int16) error
	// Utime takes seconds since the epoch, or TimeUnchanged.
	Utime(path string, mtime, atime int64) error
	Copy(src string, dstFS FS, dst string) error
	Move(src string, dstFS FS, dst string) error
	GetHosts(path string, start, length int64) ([][]string, error)
	GetCapacity() (int64, error)
	GetUsed() (int64, error)
	GetDefaultBlockSize() (int64, error)
	GetDefaultBlockSizeAtPath(path string) (int64, error)
	SetWorkingDirectory(path string) error
	GetWorkingDirectory() (string, error)
}

// Driver creates sessions.
type Driver interface {
	Connect(host string, port int, user string) (FS, error)
	ConnectLocal(user string) (FS, error)
}

var (
	// ErrAlreadyInitialized is returned by Init after the first successful call.
	ErrAlreadyInitialized = errors.New("native client already initialized")

	// ErrNotInitialized is returned when no driver has been registered.
	ErrNotInitialized = errors.New("native client not initialized")
)

var (
	initOnce sync.Once
	driverMu sync.RWMutex
	current  Driver
)

// Init registers the process-wide driver. It must run before the first
// connection that does not bring its own driver; only the first call
// takes effect.
func Init(d Driver) error {
	if d == nil {
		return syscall.EINVAL
	}
	err := ErrAlreadyInitialized
	initOnce.Do(func() {
		driverMu.Lock()
		current = d
		driverMu.Unlock()
		err = nil
	})
	return err
}

// CurrentDriver returns the registered driver.
func CurrentDriver() (Driver, error) {
	driverMu.RLock()
	defer driverMu.RUnlock()
	if current == nil {
		return nil, ErrNotInitialized
	}
	return current, nil
}
