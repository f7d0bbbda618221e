package hdfs

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/objectfs/hdfsclient/pkg/errors"
	"github.com/objectfs/hdfsclient/pkg/native"
)

// FileInfo is an immutable snapshot of one path's attributes, as returned
// by Stat and List.
type FileInfo struct {
	name        string
	kind        native.Kind
	size        int64
	blockSize   int64
	replication int16
	owner       string
	group       string
	perm        int
	mtime       time.Time
	atime       time.Time
}

func newFileInfo(st *native.Status) (*FileInfo, error) {
	switch st.Kind {
	case native.KindFile, native.KindDirectory:
	default:
		return nil, errors.Newf(errors.ErrCodeDFS, "File was not a file or directory: %s", st.Name).
			WithContext("kind", st.Kind.String()).
			WithComponent(component)
	}
	return &FileInfo{
		name:        st.Name,
		kind:        st.Kind,
		size:        st.Size,
		blockSize:   st.BlockSize,
		replication: st.Replication,
		owner:       st.Owner,
		group:       st.Group,
		perm:        int(st.Permissions) & 07777,
		mtime:       time.Unix(st.LastMod, 0),
		atime:       time.Unix(st.LastAccess, 0),
	}, nil
}

func newFileInfos(entries []native.Status) ([]*FileInfo, error) {
	infos := make([]*FileInfo, 0, len(entries))
	for i := range entries {
		info, err := newFileInfo(&entries[i])
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Name returns the full path of the entry.
func (fi *FileInfo) Name() string { return fi.name }

// BaseName returns the last element of Name.
func (fi *FileInfo) BaseName() string { return path.Base(fi.name) }

func (fi *FileInfo) Kind() native.Kind { return fi.kind }
func (fi *FileInfo) IsFile() bool      { return fi.kind == native.KindFile }
func (fi *FileInfo) IsDirectory() bool { return fi.kind == native.KindDirectory }
func (fi *FileInfo) Size() int64       { return fi.size }
func (fi *FileInfo) BlockSize() int64  { return fi.blockSize }
func (fi *FileInfo) Replication() int16 {
	return fi.replication
}
func (fi *FileInfo) Owner() string { return fi.owner }
func (fi *FileInfo) Group() string { return fi.group }

// Mode returns the permissions in decimal-digit form, e.g. 755.
func (fi *FileInfo) Mode() int {
	mode, _ := OctalToDecimal(fi.perm)
	return mode
}

// Permissions returns the permission bits as an os.FileMode, with
// os.ModeDir set for directories.
func (fi *FileInfo) Permissions() os.FileMode {
	mode := os.FileMode(fi.perm) & os.ModePerm
	if fi.IsDirectory() {
		mode |= os.ModeDir
	}
	return mode
}

func (fi *FileInfo) LastModified() time.Time { return fi.mtime }
func (fi *FileInfo) LastAccess() time.Time   { return fi.atime }

func (fi *FileInfo) String() string {
	class := "File"
	if fi.IsDirectory() {
		class = "Directory"
	}
	return fmt.Sprintf("#<hdfs.%s: %s, mode=%d, owner=%s, group=%s>",
		class, fi.name, fi.Mode(), fi.owner, fi.group)
}
