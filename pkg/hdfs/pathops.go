package hdfs

import (
	"time"

	"github.com/objectfs/hdfsclient/pkg/errors"
	"github.com/objectfs/hdfsclient/pkg/native"
)

// Stat returns the attributes of path. A missing path is DOES_NOT_EXIST.
func (c *Connection) Stat(path string) (*FileInfo, error) {
	var st *native.Status
	err := c.session().call("stat", func(fs native.FS) (err error) {
		st, err = fs.GetPathInfo(path)
		if err == nil && st == nil {
			err = native.EINTERNAL
		}
		return err
	}, pathFail("Failed to stat file %s", path))
	if err != nil {
		return nil, err
	}
	return newFileInfo(st)
}

// List returns the immediate children of path. An empty directory yields
// an empty slice; a missing path is DOES_NOT_EXIST.
func (c *Connection) List(path string) ([]*FileInfo, error) {
	var entries []native.Status
	err := c.session().call("list", func(fs native.FS) error {
		var (
			count int
			err   error
		)
		entries, count, err = fs.ListDirectory(path)
		if err == nil && entries == nil && count < 0 {
			err = native.EINTERNAL
		}
		if err == nil && count >= 0 && count < len(entries) {
			entries = entries[:count]
		}
		return err
	}, pathFail("Failed to list directory %s", path))
	if err != nil {
		return nil, err
	}
	return newFileInfos(entries)
}

// Exists reports whether path exists. Only NOT_CONNECTED is reported as an
// error; every native outcome collapses into the boolean.
func (c *Connection) Exists(path string) (bool, error) {
	var found bool
	err := c.session().call("exists", func(fs native.FS) error {
		found = fs.Exists(path) == nil
		return nil
	}, nil)
	return found, err
}

// CreateDirectory creates path and any missing parents.
func (c *Connection) CreateDirectory(path string) error {
	return c.session().call("mkdir", func(fs native.FS) error {
		return fs.CreateDirectory(path)
	}, fail(errors.ErrCodeDFS, "Could not create directory at path %s", path))
}

// Delete removes path. Non-empty directories require recursive.
func (c *Connection) Delete(path string, recursive bool) error {
	return c.session().call("delete", func(fs native.FS) error {
		return fs.Delete(path, recursive)
	}, fail(errors.ErrCodeDFS, "Could not delete file at path %s", path))
}

// Rename moves from to to within this filesystem.
func (c *Connection) Rename(from, to string) error {
	return c.session().call("rename", func(fs native.FS) error {
		return fs.Rename(from, to)
	}, fail(errors.ErrCodeDFS, "Could not rename path %s to path %s", from, to))
}

// Chmod sets the permissions of path. mode is in decimal-digit form: 755
// means rwxr-xr-x. DefaultMode is 644.
func (c *Connection) Chmod(path string, mode int) error {
	perm, err := DecimalToOctal(mode)
	if err != nil {
		return err
	}
	return c.session().call("chmod", func(fs native.FS) error {
		return fs.Chmod(path, int16(perm))
	}, fail(errors.ErrCodeDFS, "Failed to chmod path %s to mode %d", path, mode))
}

// Chown sets the owner of path, leaving its group unchanged.
func (c *Connection) Chown(path, owner string) error {
	if owner == "" {
		return argumentError("chown", "owner must not be empty")
	}
	return c.session().call("chown", func(fs native.FS) error {
		return fs.Chown(path, owner, "")
	}, fail(errors.ErrCodeDFS, "Failed to chown user path %s to user %s", path, owner))
}

// Chgrp sets the group of path, leaving its owner unchanged.
func (c *Connection) Chgrp(path, group string) error {
	if group == "" {
		return argumentError("chgrp", "group must not be empty")
	}
	return c.session().call("chgrp", func(fs native.FS) error {
		return fs.Chown(path, "", group)
	}, fail(errors.ErrCodeDFS, "Failed to chgrp path %s to group %s", path, group))
}

// SetReplication sets the replication factor of a file. DefaultReplication
// is 3.
func (c *Connection) SetReplication(path string, factor int16) error {
	return c.session().call("setrep", func(fs native.FS) error {
		return fs.SetReplication(path, factor)
	}, fail(errors.ErrCodeDFS, "Failed to set replication to %d at path %s", factor, path))
}

var epoch = time.Unix(0, 0)

// Utime sets the timestamps named in opts. Omitted timestamps keep their
// current value; timestamps before 1970 are rejected.
func (c *Connection) Utime(path string, opts UtimeOptions) error {
	for _, t := range []struct {
		name string
		at   *time.Time
	}{{"mtime", opts.Mtime}, {"atime", opts.Atime}} {
		if t.at != nil && t.at.Before(epoch) {
			return argumentError("utime", "%s %s is before the epoch", t.name, t.at.UTC().Format(time.RFC3339)).
				WithContext("path", path)
		}
	}
	mtime, atime := unixOrUnchanged(opts.Mtime), unixOrUnchanged(opts.Atime)
	return c.session().call("utime", func(fs native.FS) error {
		return fs.Utime(path, mtime, atime)
	}, fail(errors.ErrCodeDFS, "Error while setting modified and access time of path %s", path))
}

// Hosts returns, for each block overlapping [start, start+length) of path,
// the hosts serving a replica of that block.
func (c *Connection) Hosts(path string, start, length int64) ([][]string, error) {
	var hosts [][]string
	err := c.session().call("hosts", func(fs native.FS) (err error) {
		hosts, err = fs.GetHosts(path, start, length)
		return err
	}, fail(errors.ErrCodeDFS, "Error while retrieving hosts at path %s", path))
	return hosts, err
}

// Capacity returns the raw capacity of the filesystem in bytes.
func (c *Connection) Capacity() (int64, error) {
	return c.int64Call("capacity", func(fs native.FS) (int64, error) {
		return fs.GetCapacity()
	}, fail(errors.ErrCodeDFS, "Error while retrieving capacity"))
}

// Used returns the bytes in use across the filesystem.
func (c *Connection) Used() (int64, error) {
	return c.int64Call("used", func(fs native.FS) (int64, error) {
		return fs.GetUsed()
	}, fail(errors.ErrCodeDFS, "Error while retrieving used capacity"))
}

// DefaultBlockSize returns the filesystem's default block size.
func (c *Connection) DefaultBlockSize() (int64, error) {
	return c.int64Call("blocksize", func(fs native.FS) (int64, error) {
		return fs.GetDefaultBlockSize()
	}, fail(errors.ErrCodeDFS, "Error while retrieving default block size"))
}

// DefaultBlockSizeAt returns the default block size for files created at
// path.
func (c *Connection) DefaultBlockSizeAt(path string) (int64, error) {
	return c.int64Call("blocksize", func(fs native.FS) (int64, error) {
		return fs.GetDefaultBlockSizeAtPath(path)
	}, fail(errors.ErrCodeDFS, "Error while retrieving default block size at path %s", path))
}

func (c *Connection) int64Call(operation string, fn func(native.FS) (int64, error), onErr failure) (int64, error) {
	var v int64
	err := c.session().call(operation, func(fs native.FS) (err error) {
		v, err = fn(fs)
		if err == nil && v < 0 {
			err = native.EINTERNAL
		}
		return err
	}, onErr)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Cd changes the working directory that relative paths resolve against.
func (c *Connection) Cd(path string) error {
	return c.session().call("chdir", func(fs native.FS) error {
		return fs.SetWorkingDirectory(path)
	}, fail(errors.ErrCodeDFS, "Failed to change current working directory to path %s", path))
}

// Cwd returns the working directory.
func (c *Connection) Cwd() (string, error) {
	var cwd string
	err := c.session().call("cwd", func(fs native.FS) (err error) {
		cwd, err = fs.GetWorkingDirectory()
		return err
	}, fail(errors.ErrCodeDFS, "Failed to get current working directory"))
	return cwd, err
}

// Copy copies from, recursively for directories, to to on dest. A nil dest
// copies within this filesystem. The native client moves the data; nothing
// passes through this process's buffers.
func (c *Connection) Copy(from, to string, dest *Connection) error {
	return c.transfer("copy", from, to, dest, fail(errors.ErrCodeDFS, "Failed to copy path: %s to path: %s", from, to),
		func(fs, dst native.FS) error { return fs.Copy(from, dst, to) })
}

// Move moves from to to on dest. Within one filesystem it is a rename.
func (c *Connection) Move(from, to string, dest *Connection) error {
	return c.transfer("move", from, to, dest, fail(errors.ErrCodeDFS, "Error while moving path %s to path %s", from, to),
		func(fs, dst native.FS) error { return fs.Move(from, dst, to) })
}

func (c *Connection) transfer(operation, from, to string, dest *Connection, onErr failure, fn func(fs, dst native.FS) error) error {
	if c.session() == nil {
		return notConnected(operation)
	}
	if dest == nil {
		dest = c
	}
	if dest.session() == nil {
		return argumentError(operation, "destination must be a Connection returned by Connect").
			WithContext("from", from).
			WithContext("to", to)
	}

	unlock := lockPair(c.conn, dest.conn)
	defer unlock()

	if dest.fs == nil {
		return c.reject(operation, notConnected(operation).WithContext("connection_id", dest.id))
	}
	dst := dest.fs
	return c.callLocked(operation, func(fs native.FS) error {
		return fn(fs, dst)
	}, onErr)
}
