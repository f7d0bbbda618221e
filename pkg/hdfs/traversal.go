package hdfs

import (
	"io"

	"github.com/objectfs/hdfsclient/pkg/errors"
)

// Lister is the single-level listing surface the traversals are built on.
// *Connection implements it.
type Lister interface {
	List(path string) ([]*FileInfo, error)
	Stat(path string) (*FileInfo, error)
}

var _ Lister = (*Connection)(nil)

// Predicate selects entries during Find and FindAll.
type Predicate func(info *FileInfo) bool

// VisitFunc is called for each entry Find matches.
type VisitFunc func(info *FileInfo) error

// WalkFunc is called once per directory with its immediate children split
// into directories and files.
type WalkFunc func(path string, dirs, files []*FileInfo) error

// Find walks the tree under root depth-first in pre-order: each child is
// offered to match, visited if it matches, and then descended into if it
// is a directory. Errors from List or visit stop the walk and are returned
// unchanged. Depth is not bounded.
func Find(l Lister, root string, match Predicate, visit VisitFunc) error {
	children, err := l.List(root)
	if err != nil {
		return err
	}
	for _, child := range children {
		if match(child) {
			if err := visit(child); err != nil {
				return err
			}
		}
		if child.IsDirectory() {
			if err := Find(l, child.Name(), match, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindAll returns every entry under root that match selects, in the order
// Find would visit them.
func FindAll(l Lister, root string, match Predicate) ([]*FileInfo, error) {
	children, err := l.List(root)
	if err != nil {
		return nil, err
	}
	var found []*FileInfo
	for _, child := range children {
		if match(child) {
			found = append(found, child)
		}
		if child.IsDirectory() {
			nested, err := FindAll(l, child.Name(), match)
			if err != nil {
				return nil, err
			}
			found = append(found, nested...)
		}
	}
	return found, nil
}

// Walk lists each directory under root once. Subdirectories are walked as
// they are met; visit runs for a directory after all of its children have
// been partitioned, so a directory's callback fires after those of its
// descendants.
func Walk(l Lister, root string, visit WalkFunc) error {
	children, err := l.List(root)
	if err != nil {
		return err
	}
	var dirs, files []*FileInfo
	for _, child := range children {
		if !child.IsDirectory() {
			files = append(files, child)
			continue
		}
		dirs = append(dirs, child)
		if err := Walk(l, child.Name(), visit); err != nil {
			return err
		}
	}
	return visit(root, dirs, files)
}

// Find is the package-level Find over this connection.
func (c *Connection) Find(root string, match Predicate, visit VisitFunc) error {
	return Find(c, root, match, visit)
}

// FindAll is the package-level FindAll over this connection.
func (c *Connection) FindAll(root string, match Predicate) ([]*FileInfo, error) {
	return FindAll(c, root, match)
}

// Walk is the package-level Walk over this connection.
func (c *Connection) Walk(root string, visit WalkFunc) error {
	return Walk(c, root, visit)
}

// ReadAll reads the whole of path, issuing as many bounded reads as the
// size reported by Stat requires. The file is closed on every return.
func (c *Connection) ReadAll(path string) (data []byte, err error) {
	info, err := c.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := c.Open(path, ModeRead, OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			data, err = nil, cerr
		}
	}()

	data = make([]byte, 0, info.Size())
	for int64(len(data)) < info.Size() {
		chunk, err := f.Read(MaxReadLength)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		data = append(data, chunk...)
	}
	return data, nil
}

// Write creates or truncates path and writes all of data to it.
func (c *Connection) Write(path string, data []byte) (err error) {
	f, err := c.Open(path, ModeWrite, OpenOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for len(data) > 0 {
		n, err := f.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NewError(errors.ErrCodeFile, "Failed to write data: "+io.ErrShortWrite.Error()).
				WithCause(io.ErrShortWrite).
				WithContext("path", path).
				WithComponent(component).
				WithOperation("write")
		}
		data = data[n:]
	}
	return nil
}

// Touch creates path as an empty file if it does not exist. The existence
// check and the create are separate calls.
func (c *Connection) Touch(path string) error {
	exists, err := c.Exists(path)
	if err != nil || exists {
		return err
	}
	f, err := c.Open(path, ModeWrite, OpenOptions{})
	if err != nil {
		return err
	}
	return f.Close()
}
