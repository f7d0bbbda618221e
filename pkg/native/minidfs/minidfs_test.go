package minidfs

import (
	"bytes"
	"syscall"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/hdfsclient/pkg/native"
)

func newCluster(t *testing.T, cfg ClusterConfig) (*Driver, *Cluster) {
	t.Helper()
	c, err := NewCluster(cfg)
	require.NoError(t, err)
	return NewDriver(memfs.New(), c), c
}

func connect(t *testing.T, d *Driver, user string) native.FS {
	t.Helper()
	fs, err := d.Connect("localhost", DefaultPort, user)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Disconnect() })
	return fs
}

func writeFile(t *testing.T, fs native.FS, p string, data []byte) {
	t.Helper()
	f, err := fs.OpenFile(p, native.O_WRONLY, 0, 0, 0)
	require.NoError(t, err)
	n, err := fs.Write(f, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, fs.CloseFile(f))
}

func readFile(t *testing.T, fs native.FS, p string) []byte {
	t.Helper()
	f, err := fs.OpenFile(p, native.O_RDONLY, 0, 0, 0)
	require.NoError(t, err)
	defer fs.CloseFile(f)

	var out bytes.Buffer
	buf := make([]byte, 1000)
	for {
		n, err := fs.Read(f, buf)
		require.NoError(t, err)
		if n == 0 {
			return out.Bytes()
		}
		out.Write(buf[:n])
	}
}

func TestConnect(t *testing.T) {
	wildcard, err := NewCluster(ClusterConfig{})
	require.NoError(t, err)
	bound, err := NewCluster(ClusterConfig{Host: "nn.example", Port: 9000})
	require.NoError(t, err)
	d := NewDriver(memfs.New(), wildcard, bound)

	tests := []struct {
		name    string
		host    string
		port    int
		user    string
		wantErr error
	}{
		{"wildcard host", "anything", DefaultPort, "alice", nil},
		{"bound host", "nn.example", 9000, "alice", nil},
		{"wrong host", "other", 9000, "alice", syscall.ECONNREFUSED},
		{"unknown port", "localhost", 1234, "alice", syscall.ECONNREFUSED},
		{"missing user", "localhost", DefaultPort, "", syscall.EINVAL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := d.Connect(tt.host, tt.port, tt.user)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, fs)
				return
			}
			require.NoError(t, err)
			cwd, err := fs.GetWorkingDirectory()
			require.NoError(t, err)
			assert.Equal(t, "/user/"+tt.user, cwd)
			require.NoError(t, fs.Disconnect())
		})
	}

	assert.Equal(t, "nn.example:9000", bound.Addr())
	assert.NotEmpty(t, bound.ID)
}

func TestConnectLocal(t *testing.T) {
	d := NewDriver(memfs.New())
	fs, err := d.ConnectLocal("alice")
	require.NoError(t, err)
	defer fs.Disconnect()

	cwd, err := fs.GetWorkingDirectory()
	require.NoError(t, err)
	assert.Equal(t, "/", cwd)

	writeFile(t, fs, "notes.txt", []byte("hello"))
	st, err := fs.GetPathInfo("/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int16(1), st.Replication)
	assert.Equal(t, int64(LocalBlockSize), st.BlockSize)

	hosts, err := fs.GetHosts("/notes.txt", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"localhost"}}, hosts)

	bs, err := fs.GetDefaultBlockSize()
	require.NoError(t, err)
	assert.Equal(t, int64(LocalBlockSize), bs)

	// a second local session shares the namespace
	other, err := d.ConnectLocal("bob")
	require.NoError(t, err)
	defer other.Disconnect()
	assert.NoError(t, other.Exists("/notes.txt"))
}

func TestReadsStopAtBlockBoundary(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{DefaultBlockSize: 1024})
	fs := connect(t, d, "alice")

	data := bytes.Repeat([]byte("0123456789"), 300)
	writeFile(t, fs, "/data/blob", data)

	f, err := fs.OpenFile("/data/blob", native.O_RDONLY, 0, 0, 0)
	require.NoError(t, err)
	defer fs.CloseFile(f)

	buf := make([]byte, 4096)
	n, err := fs.Read(f, buf)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
	assert.Equal(t, data[:1024], buf[:n])

	require.NoError(t, fs.SeekTo(f, 1000))
	n, err = fs.Read(f, buf)
	require.NoError(t, err)
	assert.Equal(t, 24, n)

	pos, err := fs.Tell(f)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), pos)

	avail, err := fs.Available(f)
	require.NoError(t, err)
	assert.Equal(t, len(data)-1024, avail)

	n, err = fs.Pread(f, 2990, buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	pos, _ = fs.Tell(f)
	assert.Equal(t, int64(1024), pos, "pread must not move the offset")

	assert.Equal(t, data, readFile(t, fs, "/data/blob"))

	assert.ErrorIs(t, fs.SeekTo(f, int64(len(data))+1), syscall.EINVAL)
}

func TestVisibleLength(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")

	w, err := fs.OpenFile("/log", native.O_WRONLY, 1<<20, 0, 0)
	require.NoError(t, err)
	_, err = fs.Write(w, []byte("first"))
	require.NoError(t, err)

	size := func() int64 {
		st, err := fs.GetPathInfo("/log")
		require.NoError(t, err)
		return st.Size
	}
	assert.Equal(t, int64(0), size())

	require.NoError(t, fs.Flush(w))
	assert.Equal(t, int64(0), size(), "flush does not publish the length")

	require.NoError(t, fs.HFlush(w))
	assert.Equal(t, int64(5), size())
	assert.Equal(t, []byte("first"), readFile(t, fs, "/log"))

	_, err = fs.Write(w, []byte("second"))
	require.NoError(t, err)
	pos, err := fs.Tell(w)
	require.NoError(t, err)
	assert.Equal(t, int64(11), pos)

	require.NoError(t, fs.CloseFile(w))
	assert.Equal(t, int64(11), size())
}

func TestLeasesAndAppend(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")

	w, err := fs.OpenFile("/f", native.O_WRONLY, 0, 0, 0)
	require.NoError(t, err)

	_, err = fs.OpenFile("/f", native.O_WRONLY, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.EBUSY)
	_, err = fs.OpenFile("/f", native.O_APPEND, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.EBUSY)

	_, err = fs.Write(w, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(w))
	assert.ErrorIs(t, fs.CloseFile(w), syscall.EBADF)

	a, err := fs.OpenFile("/f", native.O_APPEND, 0, 0, 0)
	require.NoError(t, err)
	_, err = fs.Write(a, []byte("def"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(a))
	assert.Equal(t, []byte("abcdef"), readFile(t, fs, "/f"))

	_, err = fs.OpenFile("/missing", native.O_APPEND, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.ENOENT)

	require.NoError(t, fs.CreateDirectory("/dir"))
	_, err = fs.OpenFile("/dir", native.O_WRONLY, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.EISDIR)
	_, err = fs.OpenFile("/dir", native.O_RDONLY, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.EISDIR)
	_, err = fs.OpenFile("/f", native.O_WRONLY|syscall.O_RDWR, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.ENOTSUP)
	_, err = fs.OpenFile("/f/child", native.O_WRONLY, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}

func TestWrongModeErrors(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")
	writeFile(t, fs, "/f", []byte("x"))

	r, err := fs.OpenFile("/f", native.O_RDONLY, 0, 0, 0)
	require.NoError(t, err)
	defer fs.CloseFile(r)
	assert.True(t, r.IsOpenForRead())
	assert.False(t, r.IsOpenForWrite())

	_, err = fs.Write(r, []byte("y"))
	assert.ErrorIs(t, err, syscall.EINVAL)
	assert.ErrorIs(t, fs.Flush(r), syscall.EBADF)
	assert.ErrorIs(t, fs.HFlush(r), syscall.EBADF)

	w, err := fs.OpenFile("/g", native.O_WRONLY, 0, 0, 0)
	require.NoError(t, err)
	_, err = fs.Read(w, make([]byte, 1))
	assert.ErrorIs(t, err, syscall.EINVAL)
	assert.ErrorIs(t, fs.SeekTo(w, 0), syscall.EBADF)
	_, err = fs.Available(w)
	assert.ErrorIs(t, err, syscall.EBADF)
	require.NoError(t, fs.CloseFile(w))
	assert.False(t, w.IsOpenForWrite())

	other := connect(t, d, "bob")
	_, err = other.Read(r, make([]byte, 1))
	assert.ErrorIs(t, err, syscall.EBADF, "files belong to the session that opened them")
}

func TestListDirectory(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")

	require.NoError(t, fs.CreateDirectory("/empty"))
	entries, n, err := fs.ListDirectory("/empty")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.Equal(t, 0, n)

	entries, n, err = fs.ListDirectory("/nope")
	assert.ErrorIs(t, err, syscall.ENOENT)
	assert.Nil(t, entries)
	assert.Equal(t, -1, n)

	writeFile(t, fs, "/d/b", []byte("b"))
	writeFile(t, fs, "/d/a", []byte("aa"))
	require.NoError(t, fs.CreateDirectory("/d/c"))

	entries, n, err = fs.ListDirectory("/d")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	assert.Equal(t, "/d/a", entries[0].Name)
	assert.Equal(t, native.KindFile, entries[0].Kind)
	assert.Equal(t, int64(2), entries[0].Size)
	assert.Equal(t, "/d/b", entries[1].Name)
	assert.Equal(t, "/d/c", entries[2].Name)
	assert.Equal(t, native.KindDirectory, entries[2].Kind)

	st, err := fs.GetPathInfo("/d/a")
	require.NoError(t, err)
	assert.Equal(t, "alice", st.Owner)
	assert.Equal(t, DefaultGroup, st.Group)
	assert.Equal(t, int16(0o644), st.Permissions)
	assert.Equal(t, int16(DefaultReplication), st.Replication)
	assert.Equal(t, int64(DefaultBlockSize), st.BlockSize)

	root, _, err := fs.ListDirectory("/")
	require.NoError(t, err)
	assert.Len(t, root, 2)
}

func TestDelete(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")
	writeFile(t, fs, "/tree/a/b", []byte("x"))

	assert.ErrorIs(t, fs.Delete("/tree", false), syscall.ENOTEMPTY)
	assert.ErrorIs(t, fs.Delete("/", true), syscall.EPERM)
	assert.ErrorIs(t, fs.Delete("/missing", false), syscall.ENOENT)

	require.NoError(t, fs.Delete("/tree", true))
	assert.ErrorIs(t, fs.Exists("/tree"), syscall.ENOENT)
	assert.ErrorIs(t, fs.Exists("/tree/a/b"), syscall.ENOENT)

	require.NoError(t, fs.CreateDirectory("/empty"))
	require.NoError(t, fs.Delete("/empty", false))
}

func TestRename(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")
	writeFile(t, fs, "/src/file", []byte("payload"))
	require.NoError(t, fs.CreateDirectory("/dst"))
	writeFile(t, fs, "/other", []byte("o"))

	require.NoError(t, fs.Rename("/src/file", "/dst"))
	assert.Equal(t, []byte("payload"), readFile(t, fs, "/dst/file"))
	assert.ErrorIs(t, fs.Exists("/src/file"), syscall.ENOENT)

	assert.ErrorIs(t, fs.Rename("/other", "/dst/file"), syscall.EEXIST)
	assert.ErrorIs(t, fs.Rename("/other", "/no/such/parent"), syscall.ENOENT)
	assert.ErrorIs(t, fs.Rename("/dst", "/dst/inner"), syscall.EINVAL)
	assert.ErrorIs(t, fs.Rename("/missing", "/x"), syscall.ENOENT)

	require.NoError(t, fs.Rename("/dst", "/moved"))
	assert.Equal(t, []byte("payload"), readFile(t, fs, "/moved/file"))

	// an open writer follows its file
	w, err := fs.OpenFile("/moved/live", native.O_WRONLY, 0, 0, 0)
	require.NoError(t, err)
	_, err = fs.Write(w, []byte("before"))
	require.NoError(t, err)
	require.NoError(t, fs.HFlush(w))
	require.NoError(t, fs.Rename("/moved", "/final"))
	_, err = fs.Write(w, []byte("after"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(w))
	assert.Equal(t, []byte("beforeafter"), readFile(t, fs, "/final/live"))
}

func TestOwnership(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	alice := connect(t, d, "alice")
	root := connect(t, d, DefaultSuperuser)
	writeFile(t, alice, "/f", []byte("x"))

	assert.ErrorIs(t, alice.Chown("/f", "bob", ""), syscall.EPERM)
	require.NoError(t, alice.Chown("/f", "", "staff"))
	require.NoError(t, root.Chown("/f", "bob", ""))

	st, err := root.GetPathInfo("/f")
	require.NoError(t, err)
	assert.Equal(t, "bob", st.Owner)
	assert.Equal(t, "staff", st.Group)

	assert.ErrorIs(t, alice.Chmod("/f", 0o600), syscall.EPERM)
	require.NoError(t, root.Chmod("/f", 0o600))
	st, _ = root.GetPathInfo("/f")
	assert.Equal(t, int16(0o600), st.Permissions)

	assert.ErrorIs(t, root.Chown("/missing", "x", ""), syscall.ENOENT)
}

func TestReplicationAndTimes(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")
	writeFile(t, fs, "/f", []byte("x"))
	require.NoError(t, fs.CreateDirectory("/d"))

	require.NoError(t, fs.SetReplication("/f", 2))
	st, _ := fs.GetPathInfo("/f")
	assert.Equal(t, int16(2), st.Replication)
	assert.ErrorIs(t, fs.SetReplication("/d", 2), syscall.EISDIR)
	assert.ErrorIs(t, fs.SetReplication("/f", 0), syscall.EINVAL)

	before, _ := fs.GetPathInfo("/f")
	require.NoError(t, fs.Utime("/f", 1000, native.TimeUnchanged))
	st, _ = fs.GetPathInfo("/f")
	assert.Equal(t, int64(1000), st.LastMod)
	assert.Equal(t, before.LastAccess, st.LastAccess)

	require.NoError(t, fs.Utime("/f", native.TimeUnchanged, 2000))
	st, _ = fs.GetPathInfo("/f")
	assert.Equal(t, int64(1000), st.LastMod)
	assert.Equal(t, int64(2000), st.LastAccess)

	assert.ErrorIs(t, fs.Utime("/f", -5, 0), syscall.EINVAL)
}

func TestGetHosts(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{DefaultBlockSize: 10})
	fs := connect(t, d, "alice")
	writeFile(t, fs, "/f", bytes.Repeat([]byte("x"), 25))

	hosts, err := fs.GetHosts("/f", 0, 25)
	require.NoError(t, err)
	require.Len(t, hosts, 3)
	for _, block := range hosts {
		assert.Len(t, block, 3)
		seen := map[string]bool{}
		for _, h := range block {
			assert.Contains(t, DefaultDataNodes, h)
			seen[h] = true
		}
		assert.Len(t, seen, 3, "replicas land on distinct datanodes")
	}

	again, err := fs.GetHosts("/f", 0, 25)
	require.NoError(t, err)
	assert.Equal(t, hosts, again)

	hosts, err = fs.GetHosts("/f", 12, 3)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)

	hosts, err = fs.GetHosts("/f", 100, 3)
	require.NoError(t, err)
	assert.Empty(t, hosts)

	_, err = fs.GetHosts("/missing", 0, 1)
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestCapacityAndUsed(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{Capacity: 5000})
	fs := connect(t, d, "alice")

	capacity, err := fs.GetCapacity()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), capacity)

	writeFile(t, fs, "/a", make([]byte, 10))
	writeFile(t, fs, "/b/c", make([]byte, 5))
	require.NoError(t, fs.SetReplication("/b/c", 1))

	used, err := fs.GetUsed()
	require.NoError(t, err)
	assert.Equal(t, int64(10*DefaultReplication+5), used)
}

func TestWorkingDirectory(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs := connect(t, d, "alice")

	writeFile(t, fs, "relative.txt", []byte("r"))
	assert.NoError(t, fs.Exists("/user/alice/relative.txt"))

	require.NoError(t, fs.CreateDirectory("/tmp"))
	require.NoError(t, fs.SetWorkingDirectory("/tmp"))
	cwd, _ := fs.GetWorkingDirectory()
	assert.Equal(t, "/tmp", cwd)

	assert.ErrorIs(t, fs.SetWorkingDirectory("/nope"), syscall.ENOENT)
	assert.ErrorIs(t, fs.SetWorkingDirectory("/user/alice/relative.txt"), syscall.ENOTDIR)

	assert.NoError(t, fs.Exists("hdfs://nn:8020/user/alice/relative.txt"))

	bs, err := fs.GetDefaultBlockSizeAtPath("/user/alice/relative.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultBlockSize), bs)
}

func TestCopyAndMove(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{DefaultBlockSize: 100})
	fs := connect(t, d, "alice")
	data := bytes.Repeat([]byte("abc"), 500)
	writeFile(t, fs, "/src/big", data)
	writeFile(t, fs, "/src/sub/small", []byte("s"))

	require.NoError(t, fs.Copy("/src/big", fs, "/copy"))
	assert.Equal(t, data, readFile(t, fs, "/copy"))

	require.NoError(t, fs.Copy("/src", fs, "/tree"))
	assert.Equal(t, []byte("s"), readFile(t, fs, "/tree/sub/small"))

	require.NoError(t, fs.CreateDirectory("/into"))
	require.NoError(t, fs.Copy("/src/big", fs, "/into"))
	assert.NoError(t, fs.Exists("/into/big"))

	assert.ErrorIs(t, fs.Copy("/src/big", fs, "/src/big"), syscall.EINVAL)
	assert.ErrorIs(t, fs.Copy("/src", fs, "/src"), syscall.EINVAL)
	assert.ErrorIs(t, fs.Copy("/missing", fs, "/x"), syscall.ENOENT)

	require.NoError(t, fs.Move("/copy", fs, "/renamed"))
	assert.ErrorIs(t, fs.Exists("/copy"), syscall.ENOENT)
	assert.Equal(t, data, readFile(t, fs, "/renamed"))
}

func TestCopyAcrossClusters(t *testing.T) {
	a, err := NewCluster(ClusterConfig{Port: 8020})
	require.NoError(t, err)
	b, err := NewCluster(ClusterConfig{Port: 9020})
	require.NoError(t, err)
	d := NewDriver(memfs.New(), a, b)

	src, err := d.Connect("nn-a", 8020, "alice")
	require.NoError(t, err)
	defer src.Disconnect()
	dst, err := d.Connect("nn-b", 9020, "alice")
	require.NoError(t, err)
	defer dst.Disconnect()

	data := bytes.Repeat([]byte{7}, 200000)
	writeFile(t, src, "/x", data)

	require.NoError(t, src.Copy("/x", dst, "/y"))
	st, err := dst.GetPathInfo("/y")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), st.Size)
	assert.NoError(t, src.Exists("/x"))

	require.NoError(t, src.Move("/x", dst, "/z"))
	assert.ErrorIs(t, src.Exists("/x"), syscall.ENOENT)
	assert.Equal(t, data, readFile(t, dst, "/z"))

	local, err := d.ConnectLocal("alice")
	require.NoError(t, err)
	defer local.Disconnect()
	require.NoError(t, dst.Copy("/z", local, "/exported"))
	assert.Equal(t, data, readFile(t, local, "/exported"))
}

func TestDisconnect(t *testing.T) {
	d, _ := newCluster(t, ClusterConfig{})
	fs, err := d.Connect("localhost", DefaultPort, "alice")
	require.NoError(t, err)

	w, err := fs.OpenFile("/pending", native.O_WRONLY, 0, 0, 0)
	require.NoError(t, err)
	_, err = fs.Write(w, []byte("unflushed"))
	require.NoError(t, err)

	require.NoError(t, fs.Disconnect())
	assert.ErrorIs(t, fs.Disconnect(), syscall.ENOTCONN)
	assert.ErrorIs(t, fs.Exists("/pending"), syscall.ENOTCONN)
	_, err = fs.Write(w, []byte("more"))
	assert.ErrorIs(t, err, syscall.ENOTCONN)
	assert.False(t, w.IsOpenForWrite())

	// the lease was released and the buffered data finalized
	other := connect(t, d, "alice")
	assert.Equal(t, []byte("unflushed"), readFile(t, other, "/pending"))
}
