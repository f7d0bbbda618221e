package minidfs

import (
	"errors"
	"hash/fnv"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/objectfs/hdfsclient/pkg/native"
)

type namespaceConfig struct {
	storage     billy.Filesystem
	root        string
	hosts       []string
	blockSize   int64
	replication int16
	capacity    int64
	superuser   string

	// enforceOwnership restricts chown to the superuser and chmod to the owner.
	enforceOwnership bool
	// fixedRepl pins every file to replication 1.
	fixedRepl bool
}

type inode struct {
	dir         bool
	owner       string
	group       string
	perm        int16
	replication int16
	blockSize   int64
	// size is the length visible to readers.
	size  int64
	mtime int64
	atime int64
}

// namespace is the NameNode view: metadata in memory, data in storage.
type namespace struct {
	mu     sync.Mutex
	cfg    namespaceConfig
	inodes map[string]*inode
	leases map[string]*file
}

func newNamespace(cfg namespaceConfig) (*namespace, error) {
	if cfg.root != "/" {
		if err := cfg.storage.MkdirAll(cfg.root, 0o755); err != nil {
			return nil, err
		}
	}
	now := time.Now().Unix()
	ns := &namespace{
		cfg:    cfg,
		inodes: make(map[string]*inode),
		leases: make(map[string]*file),
	}
	ns.inodes["/"] = &inode{
		dir:   true,
		owner: cfg.superuser,
		group: DefaultGroup,
		perm:  0o755,
		mtime: now,
		atime: now,
	}
	return ns, nil
}

func pathErr(op, p string, err error) error {
	return &fs.PathError{Op: op, Path: p, Err: toErrno(err)}
}

// toErrno maps storage failures onto the errno set of the client.
func toErrno(err error) syscall.Errno {
	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, os.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, os.ErrPermission):
		return syscall.EACCES
	default:
		return native.EINTERNAL
	}
}

func (ns *namespace) storagePath(p string) string {
	return path.Join(ns.cfg.root, p)
}

func (ns *namespace) lookupLocked(p string) *inode {
	if n, ok := ns.inodes[p]; ok {
		return n
	}
	fi, err := ns.cfg.storage.Stat(ns.storagePath(p))
	if err != nil {
		return nil
	}
	n := &inode{
		dir:   fi.IsDir(),
		owner: ns.cfg.superuser,
		group: DefaultGroup,
		perm:  int16(fi.Mode().Perm()),
		mtime: fi.ModTime().Unix(),
		atime: fi.ModTime().Unix(),
	}
	if !n.dir {
		n.size = fi.Size()
		n.blockSize = ns.cfg.blockSize
		n.replication = ns.cfg.replication
	}
	ns.inodes[p] = n
	return n
}

func (ns *namespace) status(p string, n *inode) native.Status {
	kind := native.KindFile
	if n.dir {
		kind = native.KindDirectory
	}
	return native.Status{
		Name:        p,
		Kind:        kind,
		Size:        n.size,
		BlockSize:   n.blockSize,
		Replication: n.replication,
		Owner:       n.owner,
		Group:       n.group,
		Permissions: n.perm,
		LastMod:     n.mtime,
		LastAccess:  n.atime,
	}
}

func (ns *namespace) childNamesLocked(p string) ([]string, error) {
	entries, err := ns.cfg.storage.ReadDir(ns.storagePath(p))
	if err != nil {
		// An untouched in-memory storage has no root entry yet.
		if p == "/" && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (ns *namespace) newDirInode(owner string) *inode {
	now := time.Now().Unix()
	return &inode{
		dir:   true,
		owner: owner,
		group: DefaultGroup,
		perm:  0o755,
		mtime: now,
		atime: now,
	}
}

// mkdirsLocked creates p and any missing ancestors.
func (ns *namespace) mkdirsLocked(p, owner string) error {
	var missing []string
	for cur := p; cur != "/"; cur = path.Dir(cur) {
		n := ns.lookupLocked(cur)
		if n == nil {
			missing = append(missing, cur)
			continue
		}
		if !n.dir {
			if cur == p {
				return syscall.EEXIST
			}
			return syscall.ENOTDIR
		}
		break
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := ns.cfg.storage.MkdirAll(ns.storagePath(missing[i]), 0o755); err != nil {
			return toErrno(err)
		}
		ns.inodes[missing[i]] = ns.newDirInode(owner)
	}
	return nil
}

func (ns *namespace) stat(p string) (native.Status, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.lookupLocked(p)
	if n == nil {
		return native.Status{}, syscall.ENOENT
	}
	return ns.status(p, n), nil
}

func (ns *namespace) list(p string) ([]native.Status, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.lookupLocked(p)
	if n == nil {
		return nil, syscall.ENOENT
	}
	if !n.dir {
		return []native.Status{ns.status(p, n)}, nil
	}

	names, err := ns.childNamesLocked(p)
	if err != nil {
		return nil, toErrno(err)
	}
	out := make([]native.Status, 0, len(names))
	for _, name := range names {
		child := path.Join(p, name)
		if cn := ns.lookupLocked(child); cn != nil {
			out = append(out, ns.status(child, cn))
		}
	}
	return out, nil
}

func (ns *namespace) mkdirs(p, owner string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.mkdirsLocked(p, owner)
}

func (ns *namespace) remove(p string, recursive bool) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if p == "/" {
		return syscall.EPERM
	}
	n := ns.lookupLocked(p)
	if n == nil {
		return syscall.ENOENT
	}
	if n.dir && !recursive {
		names, err := ns.childNamesLocked(p)
		if err != nil {
			return toErrno(err)
		}
		if len(names) > 0 {
			return syscall.ENOTEMPTY
		}
	}
	if err := ns.removeTreeLocked(p); err != nil {
		return toErrno(err)
	}
	ns.forgetLocked(p)
	return nil
}

func (ns *namespace) removeTreeLocked(p string) error {
	n := ns.lookupLocked(p)
	if n != nil && n.dir {
		names, err := ns.childNamesLocked(p)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := ns.removeTreeLocked(path.Join(p, name)); err != nil {
				return err
			}
		}
	}
	return ns.cfg.storage.Remove(ns.storagePath(p))
}

func underPath(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}

// forgetLocked drops metadata and leases for p and everything below it.
func (ns *namespace) forgetLocked(p string) {
	for k := range ns.inodes {
		if underPath(k, p) {
			delete(ns.inodes, k)
		}
	}
	for k := range ns.leases {
		if underPath(k, p) {
			delete(ns.leases, k)
		}
	}
}

func (ns *namespace) rename(from, to string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if from == "/" {
		return syscall.EINVAL
	}
	if ns.lookupLocked(from) == nil {
		return syscall.ENOENT
	}

	dst := to
	if dn := ns.lookupLocked(to); dn != nil && dn.dir {
		dst = path.Join(to, path.Base(from))
	}
	if dst == from {
		return nil
	}
	if underPath(dst, from) {
		return syscall.EINVAL
	}
	if ns.lookupLocked(dst) != nil {
		return syscall.EEXIST
	}
	parent := ns.lookupLocked(path.Dir(dst))
	if parent == nil {
		return syscall.ENOENT
	}
	if !parent.dir {
		return syscall.ENOTDIR
	}

	if err := ns.moveTreeLocked(from, dst); err != nil {
		return toErrno(err)
	}

	moved := make(map[string]*inode)
	for k, n := range ns.inodes {
		if underPath(k, from) {
			moved[dst+strings.TrimPrefix(k, from)] = n
			delete(ns.inodes, k)
		}
	}
	for k, n := range moved {
		ns.inodes[k] = n
	}
	for k, f := range ns.leases {
		if underPath(k, from) {
			delete(ns.leases, k)
			f.path = dst + strings.TrimPrefix(k, from)
			ns.leases[f.path] = f
		}
	}
	return nil
}

func (ns *namespace) moveTreeLocked(from, to string) error {
	n := ns.lookupLocked(from)
	if n == nil {
		return syscall.ENOENT
	}
	src, dst := ns.storagePath(from), ns.storagePath(to)
	if !n.dir {
		data, err := util.ReadFile(ns.cfg.storage, src)
		if err != nil {
			return err
		}
		if err := util.WriteFile(ns.cfg.storage, dst, data, 0o644); err != nil {
			return err
		}
		return ns.cfg.storage.Remove(src)
	}

	if err := ns.cfg.storage.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	names, err := ns.childNamesLocked(from)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ns.moveTreeLocked(path.Join(from, name), path.Join(to, name)); err != nil {
			return err
		}
	}
	return ns.cfg.storage.Remove(src)
}

func (ns *namespace) chmod(p, user string, mode int16) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.lookupLocked(p)
	if n == nil {
		return syscall.ENOENT
	}
	if ns.cfg.enforceOwnership && user != ns.cfg.superuser && user != n.owner {
		return syscall.EPERM
	}
	n.perm = mode & 0o7777
	return nil
}

func (ns *namespace) chown(p, user, owner, group string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.lookupLocked(p)
	if n == nil {
		return syscall.ENOENT
	}
	if ns.cfg.enforceOwnership && user != ns.cfg.superuser {
		if owner != "" {
			return syscall.EPERM
		}
		if group != "" && user != n.owner {
			return syscall.EPERM
		}
	}
	if owner != "" {
		n.owner = owner
	}
	if group != "" {
		n.group = group
	}
	return nil
}

func (ns *namespace) setReplication(p string, replication int16) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if replication <= 0 {
		return syscall.EINVAL
	}
	n := ns.lookupLocked(p)
	if n == nil {
		return syscall.ENOENT
	}
	if n.dir {
		return syscall.EISDIR
	}
	if !ns.cfg.fixedRepl {
		n.replication = replication
	}
	return nil
}

func (ns *namespace) utime(p string, mtime, atime int64) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if mtime < native.TimeUnchanged || atime < native.TimeUnchanged {
		return syscall.EINVAL
	}
	n := ns.lookupLocked(p)
	if n == nil {
		return syscall.ENOENT
	}
	if mtime != native.TimeUnchanged {
		n.mtime = mtime
	}
	if atime != native.TimeUnchanged {
		n.atime = atime
	}
	return nil
}

func (ns *namespace) hosts(p string, start, length int64) ([][]string, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if start < 0 || length < 0 {
		return nil, syscall.EINVAL
	}
	n := ns.lookupLocked(p)
	if n == nil {
		return nil, syscall.ENOENT
	}
	if n.dir {
		return nil, syscall.EISDIR
	}

	end := n.size
	if length < n.size-start {
		end = start + length
	}
	blocks := [][]string{}
	if start >= end {
		return blocks, nil
	}

	h := fnv.New32a()
	h.Write([]byte(p))
	seed := uint64(h.Sum32())

	for b := start / n.blockSize; b <= (end-1)/n.blockSize; b++ {
		blocks = append(blocks, ns.placement(seed+uint64(b), n.replication))
	}
	return blocks, nil
}

// placement picks the datanodes holding one block's replicas.
func (ns *namespace) placement(seed uint64, replication int16) []string {
	nodes := ns.cfg.hosts
	count := int(replication)
	if count > len(nodes) {
		count = len(nodes)
	}
	if count < 1 {
		count = 1
	}
	out := make([]string, count)
	for i := range out {
		out[i] = nodes[(seed+uint64(i))%uint64(len(nodes))]
	}
	return out
}

func (ns *namespace) used() (int64, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.usedLocked("/")
}

func (ns *namespace) usedLocked(p string) (int64, error) {
	n := ns.lookupLocked(p)
	if n == nil {
		return 0, nil
	}
	if !n.dir {
		return n.size * int64(n.replication), nil
	}
	names, err := ns.childNamesLocked(p)
	if err != nil {
		return 0, toErrno(err)
	}
	var total int64
	for _, name := range names {
		sub, err := ns.usedLocked(path.Join(p, name))
		if err != nil {
			return 0, err
		}
		total += sub
	}
	return total, nil
}

func (ns *namespace) blockSizeAt(p string) int64 {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if n := ns.lookupLocked(p); n != nil && !n.dir {
		return n.blockSize
	}
	return ns.cfg.blockSize
}
