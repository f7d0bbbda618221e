package minidfs

import (
	"io"
	"os"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
)

type streamMode int

const (
	streamInput streamMode = iota
	streamOutput
)

// file is one open stream. All fields are guarded by the namespace lock.
type file struct {
	ns      *namespace
	session *session
	path    string
	node    *inode
	mode    streamMode
	closed  bool

	// input streams
	rd  billy.File
	pos int64

	// output streams
	buf        []byte
	bufferSize int
	written    int64
}

func (f *file) IsOpenForRead() bool {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()
	return !f.closed && f.mode == streamInput
}

func (f *file) IsOpenForWrite() bool {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()
	return !f.closed && f.mode == streamOutput
}

func (ns *namespace) openRead(p string) (*file, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.lookupLocked(p)
	if n == nil {
		return nil, syscall.ENOENT
	}
	if n.dir {
		return nil, syscall.EISDIR
	}
	rd, err := ns.cfg.storage.Open(ns.storagePath(p))
	if err != nil {
		return nil, toErrno(err)
	}
	return &file{ns: ns, path: p, node: n, mode: streamInput, rd: rd}, nil
}

func (ns *namespace) create(p, owner string, bufferSize int, replication int16, blockSize int64) (*file, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if n := ns.lookupLocked(p); n != nil && n.dir {
		return nil, syscall.EISDIR
	}
	if _, leased := ns.leases[p]; leased {
		return nil, syscall.EBUSY
	}
	if err := ns.mkdirsLocked(parentOf(p), owner); err != nil {
		if err == syscall.EEXIST {
			return nil, syscall.ENOTDIR
		}
		return nil, err
	}

	w, err := ns.cfg.storage.OpenFile(ns.storagePath(p), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, toErrno(err)
	}
	if err := w.Close(); err != nil {
		return nil, toErrno(err)
	}

	if replication == 0 || ns.cfg.fixedRepl {
		replication = ns.cfg.replication
	}
	if blockSize == 0 {
		blockSize = ns.cfg.blockSize
	}
	now := time.Now().Unix()
	n := &inode{
		owner:       owner,
		group:       DefaultGroup,
		perm:        0o644,
		replication: replication,
		blockSize:   blockSize,
		mtime:       now,
		atime:       now,
	}
	ns.inodes[p] = n

	f := &file{ns: ns, path: p, node: n, mode: streamOutput, bufferSize: bufferSize}
	ns.leases[p] = f
	return f, nil
}

func (ns *namespace) openAppend(p string, bufferSize int) (*file, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.lookupLocked(p)
	if n == nil {
		return nil, syscall.ENOENT
	}
	if n.dir {
		return nil, syscall.EISDIR
	}
	if _, leased := ns.leases[p]; leased {
		return nil, syscall.EBUSY
	}

	f := &file{ns: ns, path: p, node: n, mode: streamOutput, bufferSize: bufferSize, written: n.size}
	ns.leases[p] = f
	return f, nil
}

func parentOf(p string) string {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "/"
}

func (f *file) holdsLeaseLocked() bool {
	return f.ns.leases[f.path] == f
}

// readAtLocked reads at most up to the end of the block holding pos.
func (f *file) readAtLocked(pos int64, buf []byte) (int, error) {
	visible := f.node.size
	if pos >= visible || len(buf) == 0 {
		return 0, nil
	}
	want := int64(len(buf))
	if rest := visible - pos; rest < want {
		want = rest
	}
	if bs := f.node.blockSize; bs > 0 {
		if rest := bs - pos%bs; rest < want {
			want = rest
		}
	}
	n, err := f.rd.ReadAt(buf[:want], pos)
	if err != nil && err != io.EOF {
		return n, toErrno(err)
	}
	return n, nil
}

// flushLocked pushes buffered bytes to storage.
func (f *file) flushLocked() error {
	if len(f.buf) == 0 {
		return nil
	}
	if !f.holdsLeaseLocked() {
		return syscall.ENOENT
	}
	w, err := f.ns.cfg.storage.OpenFile(f.ns.storagePath(f.path), os.O_WRONLY, 0o644)
	if err != nil {
		return toErrno(err)
	}
	if _, err := w.Seek(f.written, io.SeekStart); err != nil {
		w.Close()
		return toErrno(err)
	}
	n, err := w.Write(f.buf)
	f.written += int64(n)
	f.buf = f.buf[n:]
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return toErrno(err)
	}
	f.buf = f.buf[:0]
	return nil
}

func (f *file) read(buf []byte) (int, error) {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed {
		return 0, syscall.EBADF
	}
	if f.mode != streamInput {
		return 0, syscall.EINVAL
	}
	n, err := f.readAtLocked(f.pos, buf)
	f.pos += int64(n)
	return n, err
}

func (f *file) pread(position int64, buf []byte) (int, error) {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed {
		return 0, syscall.EBADF
	}
	if f.mode != streamInput {
		return 0, syscall.EINVAL
	}
	if position < 0 {
		return 0, syscall.EINVAL
	}
	return f.readAtLocked(position, buf)
}

func (f *file) write(buf []byte) (int, error) {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed {
		return 0, syscall.EBADF
	}
	if f.mode != streamOutput {
		return 0, syscall.EINVAL
	}
	f.buf = append(f.buf, buf...)
	if len(f.buf) >= f.bufferSize {
		if err := f.flushLocked(); err != nil {
			return 0, err
		}
	}
	return len(buf), nil
}

func (f *file) seek(position int64) error {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed || f.mode != streamInput {
		return syscall.EBADF
	}
	if position < 0 || position > f.node.size {
		return syscall.EINVAL
	}
	f.pos = position
	return nil
}

func (f *file) tell() (int64, error) {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed {
		return 0, syscall.EBADF
	}
	if f.mode == streamOutput {
		return f.written + int64(len(f.buf)), nil
	}
	return f.pos, nil
}

func (f *file) flush(publish bool) error {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed || f.mode != streamOutput {
		return syscall.EBADF
	}
	if err := f.flushLocked(); err != nil {
		return err
	}
	if publish && f.holdsLeaseLocked() {
		f.node.size = f.written
	}
	return nil
}

func (f *file) available() (int, error) {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed || f.mode != streamInput {
		return 0, syscall.EBADF
	}
	if rest := f.node.size - f.pos; rest > 0 {
		return int(rest), nil
	}
	return 0, nil
}

func (f *file) close() error {
	f.ns.mu.Lock()
	defer f.ns.mu.Unlock()

	if f.closed {
		return syscall.EBADF
	}
	f.closed = true

	if f.mode == streamInput {
		if err := f.rd.Close(); err != nil {
			return toErrno(err)
		}
		return nil
	}

	err := f.flushLocked()
	if f.holdsLeaseLocked() {
		f.node.size = f.written
		f.node.mtime = time.Now().Unix()
		delete(f.ns.leases, f.path)
	}
	return err
}
