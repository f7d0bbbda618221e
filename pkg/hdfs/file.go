package hdfs

import (
	"bytes"
	"runtime"
	"strconv"
	"time"

	"github.com/objectfs/hdfsclient/internal/buffer"
	"github.com/objectfs/hdfsclient/pkg/errors"
	"github.com/objectfs/hdfsclient/pkg/native"
	"github.com/objectfs/hdfsclient/pkg/utils"
)

// File is an open stream over one path, created by Connection.Open.
// A File is not safe for concurrent use.
//
// Every I/O method except Close, IsReadOpen and IsWriteOpen fails with
// FILE_CLOSED after Close, and with NOT_CONNECTED once the owning
// Connection has been disconnected.
type File struct {
	*fileState

	// conn keeps the Connection alive while the handle is reachable.
	conn *Connection
}

type fileState struct {
	c      *conn
	path   string
	mode   OpenMode
	nf     native.File // nil once released
	closed bool
}

// Open opens path for reading, writing (create or truncate) or appending.
func (c *Connection) Open(path string, mode OpenMode, opts OpenOptions) (*File, error) {
	flags, ok := mode.flags()
	if !ok {
		return nil, argumentError("open", "unknown open mode %v", mode)
	}
	if err := validateOptions("open", &opts); err != nil {
		return nil, err
	}

	var st *fileState
	err := c.session().call("open", func(fs native.FS) error {
		nf, err := fs.OpenFile(path, flags, opts.BufferSize, opts.Replication, opts.BlockSize)
		if err != nil {
			return err
		}
		if nf == nil {
			return native.EINTERNAL
		}
		st = &fileState{c: c.conn, path: path, mode: mode, nf: nf}
		c.files[st] = struct{}{}
		c.metrics.AddOpenFiles(1)
		return nil
	}, fail(errors.ErrCodeCouldNotOpen, "Could not open file %s", path))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("file opened", openFields(path, mode, opts))

	f := &File{fileState: st, conn: c}
	runtime.AddCleanup(f, func(st *fileState) { st.collect() }, st)
	return f, nil
}

func openFields(path string, mode OpenMode, opts OpenOptions) map[string]interface{} {
	fields := map[string]interface{}{"path": path, "mode": mode.String()}
	if opts.BufferSize > 0 {
		fields["buffer_size"] = utils.FormatBytes(int64(opts.BufferSize))
	}
	if opts.BlockSize > 0 {
		fields["block_size"] = utils.FormatBytes(opts.BlockSize)
	}
	if opts.Replication > 0 {
		fields["replication"] = opts.Replication
	}
	return fields
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Mode returns the mode the file was opened with.
func (f *File) Mode() OpenMode { return f.mode }

func (f *File) String() string {
	return "hdfs.File(" + f.path + ")"
}

// IsReadOpen reports whether the handle is open for reading.
func (f *File) IsReadOpen() bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	return f.liveLocked() && f.nf.IsOpenForRead()
}

// IsWriteOpen reports whether the handle is open for writing.
func (f *File) IsWriteOpen() bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	return f.liveLocked() && f.nf.IsOpenForWrite()
}

func (st *fileState) liveLocked() bool {
	return !st.closed && st.nf != nil && st.c.fs != nil
}

// check returns the session to issue a file call on. Callers hold the
// connection lock.
func (st *fileState) check(operation string) (native.FS, error) {
	if st.closed {
		return nil, st.c.reject(operation, errors.NewError(errors.ErrCodeFileClosed, "File is closed").
			WithContext("path", st.path).
			WithComponent(component).
			WithOperation(operation))
	}
	if st.c.fs == nil || st.nf == nil {
		return nil, st.c.reject(operation, notConnected(operation).WithContext("path", st.path))
	}
	return st.c.fs, nil
}

func (st *fileState) readLength(operation string, maxLength int) (int, error) {
	if maxLength == 0 {
		return MaxReadLength, nil
	}
	if maxLength < 0 || maxLength > MaxReadLength {
		return 0, st.c.reject(operation, errors.Newf(errors.ErrCodeFile,
			"Can only read a max of %d bytes from HDFS", MaxReadLength).
			WithContext("requested", strconv.Itoa(maxLength)).
			WithComponent(component).
			WithOperation(operation))
	}
	return maxLength, nil
}

// Read issues one native read of at most maxLength bytes (MaxReadLength when
// zero) and returns what it delivered, which may be less. An empty slice
// means end of stream. Requests above MaxReadLength fail instead of being
// truncated.
func (f *File) Read(maxLength int) ([]byte, error) {
	return f.read("read", maxLength, func(fs native.FS, buf []byte) (int, error) {
		return fs.Read(f.nf, buf)
	})
}

// ReadAt is Read at an absolute position. It does not move the offset used
// by Read.
func (f *File) ReadAt(offset int64, maxLength int) ([]byte, error) {
	return f.read("pread", maxLength, func(fs native.FS, buf []byte) (int, error) {
		return fs.Pread(f.nf, offset, buf)
	})
}

func (f *File) read(operation string, maxLength int, fn func(native.FS, []byte) (int, error)) ([]byte, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	fs, err := f.check(operation)
	if err != nil {
		return nil, err
	}
	length, err := f.readLength(operation, maxLength)
	if err != nil {
		return nil, err
	}

	buf := buffer.GetBuffer(length)
	defer buffer.PutBuffer(buf)

	start := time.Now()
	n, err := fn(fs, buf)
	if err == nil && (n < 0 || n > length) {
		err = native.EINTERNAL
	}
	if err := f.c.finish(operation, start, int64(max(n, 0)), err, fail(errors.ErrCodeFile, "Failed to read data")); err != nil {
		return nil, err
	}
	return bytes.Clone(buf[:n]), nil
}

// Write hands data to the stream and returns how much was accepted, which
// may be less than len(data).
func (f *File) Write(data []byte) (int, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	fs, err := f.check("write")
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := fs.Write(f.nf, data)
	if err == nil && n < 0 {
		err = native.EINTERNAL
	}
	if err := f.c.finish("write", start, int64(max(n, 0)), err, fail(errors.ErrCodeFile, "Failed to write data")); err != nil {
		return 0, err
	}
	return n, nil
}

// SeekTo moves the read offset to the absolute position offset.
func (f *File) SeekTo(offset int64) error {
	return f.do("seek", func(fs native.FS) error {
		return fs.SeekTo(f.nf, offset)
	}, fail(errors.ErrCodeFile, "Failed to seek to position %d", offset))
}

// Tell returns the current offset.
func (f *File) Tell() (int64, error) {
	var pos int64
	err := f.do("tell", func(fs native.FS) (err error) {
		pos, err = fs.Tell(f.nf)
		return err
	}, fail(errors.ErrCodeFile, "Failed to read position"))
	return pos, err
}

// Flush pushes buffered writes out of the client.
func (f *File) Flush() error {
	return f.do("flush", func(fs native.FS) error {
		return fs.Flush(f.nf)
	}, fail(errors.ErrCodeFile, "Flush failed"))
}

// HFlush flushes and makes the written data visible to readers that open
// the file afterwards.
func (f *File) HFlush() error {
	return f.do("hflush", func(fs native.FS) error {
		return fs.HFlush(f.nf)
	}, fail(errors.ErrCodeFile, "HFlush failed"))
}

// Available returns the number of bytes readable without blocking.
func (f *File) Available() (int, error) {
	var n int
	err := f.do("available", func(fs native.FS) (err error) {
		n, err = fs.Available(f.nf)
		return err
	}, fail(errors.ErrCodeFile, "Failed to get available data"))
	return n, err
}

func (f *File) do(operation string, fn func(native.FS) error, onErr failure) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	fs, err := f.check(operation)
	if err != nil {
		return err
	}
	start := time.Now()
	return f.c.finish(operation, start, 0, fn(fs), onErr)
}

// Close closes the native file. It is safe to call more than once; only the
// first call reaches the native client, and the handle counts as closed
// even when that call fails.
func (f *File) Close() error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	nf := f.nf
	if nf == nil {
		return nil
	}
	f.nf = nil
	delete(f.c.files, f.fileState)
	f.c.metrics.AddOpenFiles(-1)

	start := time.Now()
	return f.c.finish("close", start, 0, f.c.fs.CloseFile(nf), fail(errors.ErrCodeFile, "Could not close file"))
}

// releaseLocked closes the native file while its session is being torn
// down. The handle itself stays open and reports NOT_CONNECTED.
func (st *fileState) releaseLocked() {
	if st.nf == nil {
		return
	}
	if err := st.c.fs.CloseFile(st.nf); err != nil {
		st.c.logger.Warn("failed to release open file", map[string]interface{}{
			"path":  st.path,
			"error": err,
		})
	}
	st.nf = nil
	delete(st.c.files, st)
	st.c.metrics.AddOpenFiles(-1)
}

// collect runs when an unclosed File is garbage collected.
func (st *fileState) collect() {
	st.c.mu.Lock()
	defer st.c.mu.Unlock()

	if st.closed || st.nf == nil {
		return
	}
	st.c.logger.Warn("file was not closed before being collected", map[string]interface{}{"path": st.path})
	st.closed = true
	st.releaseLocked()
}
