package minidfs

import (
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/objectfs/hdfsclient/pkg/native"
)

// session implements native.FS for one connected user.
type session struct {
	ns   *namespace
	user string

	mu     sync.Mutex
	cwd    string
	closed bool
	files  map[*file]struct{}
}

var _ native.FS = (*session)(nil)

func newSession(ns *namespace, user, cwd string) *session {
	return &session{
		ns:    ns,
		user:  user,
		cwd:   cwd,
		files: make(map[*file]struct{}),
	}
}

// resolve makes p absolute against the working directory. Scheme-qualified
// names ("hdfs://nn:8020/a", "file:///a") keep only their path.
func (s *session) resolve(p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", syscall.ENOTCONN
	}
	if strings.Contains(p, "://") {
		u, err := url.Parse(p)
		if err != nil {
			return "", syscall.EINVAL
		}
		p = u.Path
	}
	if p == "" {
		return "", syscall.EINVAL
	}
	if !path.IsAbs(p) {
		p = path.Join(s.cwd, p)
	}
	return path.Clean(p), nil
}

func (s *session) fileOf(nf native.File) (*file, error) {
	f, ok := nf.(*file)
	if !ok || f == nil {
		return nil, syscall.EBADF
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, syscall.ENOTCONN
	}
	if _, owned := s.files[f]; !owned {
		return nil, syscall.EBADF
	}
	return f, nil
}

func (s *session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return syscall.ENOTCONN
	}
	s.closed = true
	open := s.files
	s.files = nil
	s.mu.Unlock()

	for f := range open {
		_ = f.close()
	}
	return nil
}

func (s *session) OpenFile(p string, flags int, bufferSize int, replication int16, blockSize int64) (native.File, error) {
	abs, err := s.resolve(p)
	if err != nil {
		return nil, pathErr("open", p, err)
	}
	if bufferSize < 0 || replication < 0 || blockSize < 0 {
		return nil, pathErr("open", abs, syscall.EINVAL)
	}
	if bufferSize == 0 {
		bufferSize = defaultBufferSize
	}

	var f *file
	switch access := flags & (os.O_WRONLY | os.O_RDWR); {
	case access == os.O_RDONLY:
		f, err = s.ns.openRead(abs)
	case access == os.O_WRONLY && flags&os.O_APPEND != 0:
		f, err = s.ns.openAppend(abs, bufferSize)
	case access == os.O_WRONLY:
		f, err = s.ns.create(abs, s.user, bufferSize, replication, blockSize)
	default:
		err = syscall.ENOTSUP
	}
	if err != nil {
		return nil, pathErr("open", abs, err)
	}
	f.session = s

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = f.close()
		return nil, pathErr("open", abs, syscall.ENOTCONN)
	}
	s.files[f] = struct{}{}
	return f, nil
}

func (s *session) CloseFile(nf native.File) error {
	f, err := s.fileOf(nf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.files, f)
	s.mu.Unlock()
	return f.close()
}

func (s *session) Read(nf native.File, buf []byte) (int, error) {
	f, err := s.fileOf(nf)
	if err != nil {
		return 0, err
	}
	return f.read(buf)
}

func (s *session) Pread(nf native.File, position int64, buf []byte) (int, error) {
	f, err := s.fileOf(nf)
	if err != nil {
		return 0, err
	}
	return f.pread(position, buf)
}

func (s *session) Write(nf native.File, buf []byte) (int, error) {
	f, err := s.fileOf(nf)
	if err != nil {
		return 0, err
	}
	return f.write(buf)
}

func (s *session) SeekTo(nf native.File, position int64) error {
	f, err := s.fileOf(nf)
	if err != nil {
		return err
	}
	return f.seek(position)
}

func (s *session) Tell(nf native.File) (int64, error) {
	f, err := s.fileOf(nf)
	if err != nil {
		return 0, err
	}
	return f.tell()
}

func (s *session) Flush(nf native.File) error {
	f, err := s.fileOf(nf)
	if err != nil {
		return err
	}
	return f.flush(false)
}

func (s *session) HFlush(nf native.File) error {
	f, err := s.fileOf(nf)
	if err != nil {
		return err
	}
	return f.flush(true)
}

func (s *session) Available(nf native.File) (int, error) {
	f, err := s.fileOf(nf)
	if err != nil {
		return 0, err
	}
	return f.available()
}

func (s *session) Exists(p string) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("exists", p, err)
	}
	if _, err := s.ns.stat(abs); err != nil {
		return pathErr("exists", abs, err)
	}
	return nil
}

func (s *session) ListDirectory(p string) ([]native.Status, int, error) {
	abs, err := s.resolve(p)
	if err != nil {
		return nil, -1, pathErr("list", p, err)
	}
	entries, err := s.ns.list(abs)
	if err != nil {
		return nil, -1, pathErr("list", abs, err)
	}
	return entries, len(entries), nil
}

func (s *session) GetPathInfo(p string) (*native.Status, error) {
	abs, err := s.resolve(p)
	if err != nil {
		return nil, pathErr("stat", p, err)
	}
	st, err := s.ns.stat(abs)
	if err != nil {
		return nil, pathErr("stat", abs, err)
	}
	return &st, nil
}

func (s *session) Delete(p string, recursive bool) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("delete", p, err)
	}
	if err := s.ns.remove(abs, recursive); err != nil {
		return pathErr("delete", abs, err)
	}
	return nil
}

func (s *session) Rename(oldPath, newPath string) error {
	from, err := s.resolve(oldPath)
	if err != nil {
		return pathErr("rename", oldPath, err)
	}
	to, err := s.resolve(newPath)
	if err != nil {
		return pathErr("rename", newPath, err)
	}
	if err := s.ns.rename(from, to); err != nil {
		return pathErr("rename", from, err)
	}
	return nil
}

func (s *session) CreateDirectory(p string) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("mkdir", p, err)
	}
	if err := s.ns.mkdirs(abs, s.user); err != nil {
		return pathErr("mkdir", abs, err)
	}
	return nil
}

func (s *session) Chmod(p string, mode int16) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("chmod", p, err)
	}
	if err := s.ns.chmod(abs, s.user, mode); err != nil {
		return pathErr("chmod", abs, err)
	}
	return nil
}

func (s *session) Chown(p, owner, group string) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("chown", p, err)
	}
	if err := s.ns.chown(abs, s.user, owner, group); err != nil {
		return pathErr("chown", abs, err)
	}
	return nil
}

func (s *session) SetReplication(p string, replication int16) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("setrep", p, err)
	}
	if err := s.ns.setReplication(abs, replication); err != nil {
		return pathErr("setrep", abs, err)
	}
	return nil
}

func (s *session) Utime(p string, mtime, atime int64) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("utime", p, err)
	}
	if err := s.ns.utime(abs, mtime, atime); err != nil {
		return pathErr("utime", abs, err)
	}
	return nil
}

func (s *session) GetHosts(p string, start, length int64) ([][]string, error) {
	abs, err := s.resolve(p)
	if err != nil {
		return nil, pathErr("hosts", p, err)
	}
	hosts, err := s.ns.hosts(abs, start, length)
	if err != nil {
		return nil, pathErr("hosts", abs, err)
	}
	return hosts, nil
}

func (s *session) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return syscall.ENOTCONN
	}
	return nil
}

func (s *session) GetCapacity() (int64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	return s.ns.cfg.capacity, nil
}

func (s *session) GetUsed() (int64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	return s.ns.used()
}

func (s *session) GetDefaultBlockSize() (int64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	return s.ns.cfg.blockSize, nil
}

func (s *session) GetDefaultBlockSizeAtPath(p string) (int64, error) {
	abs, err := s.resolve(p)
	if err != nil {
		return 0, pathErr("blocksize", p, err)
	}
	return s.ns.blockSizeAt(abs), nil
}

func (s *session) SetWorkingDirectory(p string) error {
	abs, err := s.resolve(p)
	if err != nil {
		return pathErr("chdir", p, err)
	}
	st, err := s.ns.stat(abs)
	if err != nil {
		return pathErr("chdir", abs, err)
	}
	if st.Kind != native.KindDirectory {
		return pathErr("chdir", abs, syscall.ENOTDIR)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cwd = abs
	return nil
}

func (s *session) GetWorkingDirectory() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", syscall.ENOTCONN
	}
	return s.cwd, nil
}
