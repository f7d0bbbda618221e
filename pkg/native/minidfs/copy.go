package minidfs

import (
	"path"
	"syscall"

	"github.com/objectfs/hdfsclient/pkg/native"
)

const copyBufferSize = 64 << 10

// Copy copies src, recursively for directories, to dst on dstFS. An existing
// destination directory receives the source under its base name; existing
// files are overwritten. Data streams through dstFS, so any session works as
// a destination.
func (s *session) Copy(src string, dstFS native.FS, dst string) error {
	if dstFS == nil {
		return pathErr("copy", src, syscall.EINVAL)
	}
	if err := s.copyTree(src, dstFS, dst); err != nil {
		return pathErr("copy", src, err)
	}
	return nil
}

// Move renames within one namespace and copies then deletes across
// namespaces.
func (s *session) Move(src string, dstFS native.FS, dst string) error {
	if dstFS == nil {
		return pathErr("move", src, syscall.EINVAL)
	}
	if ds, ok := dstFS.(*session); ok && ds.ns == s.ns {
		from, err := s.resolve(src)
		if err != nil {
			return pathErr("move", src, err)
		}
		to, err := ds.resolve(dst)
		if err != nil {
			return pathErr("move", dst, err)
		}
		if err := s.ns.rename(from, to); err != nil {
			return pathErr("move", from, err)
		}
		return nil
	}

	if err := s.copyTree(src, dstFS, dst); err != nil {
		return pathErr("move", src, err)
	}
	if err := s.Delete(src, true); err != nil {
		return err
	}
	return nil
}

func (s *session) copyTree(src string, dstFS native.FS, dst string) error {
	st, err := s.GetPathInfo(src)
	if err != nil {
		return err
	}
	if info, err := dstFS.GetPathInfo(dst); err == nil && info.Kind == native.KindDirectory {
		dst = path.Join(info.Name, path.Base(st.Name))
	}
	if ds, ok := dstFS.(*session); ok && ds.ns == s.ns {
		abs, err := ds.resolve(dst)
		if err != nil {
			return err
		}
		if underPath(abs, st.Name) {
			return syscall.EINVAL
		}
	}
	return s.copyEntry(st, dstFS, dst)
}

func (s *session) copyEntry(st *native.Status, dstFS native.FS, dst string) error {
	if st.Kind != native.KindDirectory {
		return s.copyFile(st.Name, dstFS, dst)
	}
	if err := dstFS.CreateDirectory(dst); err != nil {
		return err
	}
	children, _, err := s.ListDirectory(st.Name)
	if err != nil {
		return err
	}
	for i := range children {
		if err := s.copyEntry(&children[i], dstFS, path.Join(dst, path.Base(children[i].Name))); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) copyFile(src string, dstFS native.FS, dst string) error {
	in, err := s.OpenFile(src, native.O_RDONLY, 0, 0, 0)
	if err != nil {
		return err
	}
	defer s.CloseFile(in)

	out, err := dstFS.OpenFile(dst, native.O_WRONLY, copyBufferSize, 0, 0)
	if err != nil {
		return err
	}

	buf := make([]byte, copyBufferSize)
	for {
		n, err := s.Read(in, buf)
		if err != nil {
			dstFS.CloseFile(out)
			return err
		}
		if n == 0 {
			break
		}
		for off := 0; off < n; {
			w, err := dstFS.Write(out, buf[off:n])
			if err == nil && w <= 0 {
				err = syscall.EIO
			}
			if err != nil {
				dstFS.CloseFile(out)
				return err
			}
			off += w
		}
	}
	return dstFS.CloseFile(out)
}
