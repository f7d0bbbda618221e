package hdfs

import (
	"bytes"
	"fmt"
	"syscall"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/hdfsclient/pkg/errors"
	"github.com/objectfs/hdfsclient/pkg/native/minidfs"
	"github.com/objectfs/hdfsclient/pkg/utils"
)

func TestConnect(t *testing.T) {
	env := newTestEnv(t, minidfs.ClusterConfig{})

	t.Run("cluster", func(t *testing.T) {
		conn := env.connect(t, "alice")

		assert.True(t, conn.IsConnected())
		assert.False(t, conn.Local())
		assert.Equal(t, "localhost", conn.Host())
		assert.Equal(t, DefaultPort, conn.Port())
		assert.Equal(t, "alice", conn.User())
		assert.Equal(t, "hdfs.Connection(hdfs://alice@localhost:8020)", conn.String())

		_, err := uuid.Parse(conn.ID())
		assert.NoError(t, err)

		cwd, err := conn.Cwd()
		require.NoError(t, err)
		assert.Equal(t, "/user/alice", cwd)
	})

	t.Run("second cluster", func(t *testing.T) {
		opts := env.options("alice")
		opts.Port = otherPort
		conn := env.connectWith(t, opts)
		assert.Equal(t, otherPort, conn.Port())
	})

	t.Run("local", func(t *testing.T) {
		opts := env.options("alice")
		opts.Local = true
		opts.Host = "ignored.example.com"
		opts.Port = 1
		conn := env.connectWith(t, opts)

		assert.True(t, conn.Local())
		assert.Equal(t, "hdfs.Connection(file:///)", conn.String())

		cwd, err := conn.Cwd()
		require.NoError(t, err)
		assert.Equal(t, "/", cwd)

		size, err := conn.DefaultBlockSize()
		require.NoError(t, err)
		assert.Equal(t, int64(minidfs.LocalBlockSize), size)
	})

	t.Run("refused", func(t *testing.T) {
		opts := env.options("alice")
		opts.Port = 9999
		conn, err := Connect(opts)
		require.Error(t, err)
		assert.Nil(t, conn)

		assert.True(t, errors.Is(err, errors.ErrConnect))
		assert.True(t, errors.Is(err, errors.ErrDFS))
		assert.True(t, errors.Is(err, syscall.ECONNREFUSED))
		assert.Contains(t, err.Error(), "Failed to connect to HDFS")
		assert.Contains(t, err.Error(), syscall.ECONNREFUSED.Error())
	})

	t.Run("no driver registered", func(t *testing.T) {
		_, err := Connect(ConnectOptions{User: "alice"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConnect))
	})
}

func TestConnectOptions(t *testing.T) {
	env := newTestEnv(t, minidfs.ClusterConfig{})

	defaults := ConnectOptions{}.withDefaults()
	assert.Equal(t, DefaultHost, defaults.Host)
	assert.Equal(t, DefaultPort, defaults.Port)
	assert.NotNil(t, defaults.Logger)

	tests := []struct {
		name   string
		modify func(*ConnectOptions)
	}{
		{"port too large", func(o *ConnectOptions) { o.Port = 70000 }},
		{"negative port", func(o *ConnectOptions) { o.Port = -1 }},
		{"bad host", func(o *ConnectOptions) { o.Host = "not a host!" }},
		{"long user", func(o *ConnectOptions) { o.User = string(bytes.Repeat([]byte("u"), 1025)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := env.options("alice")
			tt.modify(&opts)
			_, err := Connect(opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrArgument), err.Error())
			assert.False(t, errors.Is(err, errors.ErrDFS))
		})
	}

	t.Run("local ignores host and port", func(t *testing.T) {
		opts := env.options("alice")
		opts.Local = true
		opts.Host = "not a host!"
		opts.Port = -5
		conn := env.connectWith(t, opts)

		assert.True(t, conn.IsConnected())
		assert.True(t, conn.Local())
		assert.Empty(t, conn.Host())
		assert.Zero(t, conn.Port())
		assert.Equal(t, "hdfs.Connection(file:///)", conn.String())
	})
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t, minidfs.ClusterConfig{})
	conn := env.connect(t, "alice")
	writeFile(t, conn, "/data/file", []byte("payload"))

	assert.Equal(t, int64(1), env.metrics.GetMetrics()["active_connections"])
	require.NoError(t, conn.Disconnect())
	require.NoError(t, conn.Disconnect())
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsConnected())
	assert.Equal(t, int64(0), env.metrics.GetMetrics()["active_connections"])

	before := env.operations()

	calls := map[string]func() error{
		"stat":      func() error { _, err := conn.Stat("/data/file"); return err },
		"list":      func() error { _, err := conn.List("/data"); return err },
		"exists":    func() error { _, err := conn.Exists("/data/file"); return err },
		"mkdir":     func() error { return conn.CreateDirectory("/x") },
		"delete":    func() error { return conn.Delete("/data", true) },
		"rename":    func() error { return conn.Rename("/data/file", "/data/other") },
		"chmod":     func() error { return conn.Chmod("/data/file", 755) },
		"chown":     func() error { return conn.Chown("/data/file", "bob") },
		"chgrp":     func() error { return conn.Chgrp("/data/file", "staff") },
		"setrep":    func() error { return conn.SetReplication("/data/file", 2) },
		"utime":     func() error { return conn.Utime("/data/file", UtimeOptions{}) },
		"hosts":     func() error { _, err := conn.Hosts("/data/file", 0, 1); return err },
		"capacity":  func() error { _, err := conn.Capacity(); return err },
		"used":      func() error { _, err := conn.Used(); return err },
		"blocksize": func() error { _, err := conn.DefaultBlockSize(); return err },
		"chdir":     func() error { return conn.Cd("/data") },
		"cwd":       func() error { _, err := conn.Cwd(); return err },
		"copy":      func() error { return conn.Copy("/data/file", "/data/copy", nil) },
		"move":      func() error { return conn.Move("/data/file", "/data/moved", nil) },
		"open":      func() error { _, err := conn.Open("/data/file", ModeRead, OpenOptions{}); return err },
		"read_all":  func() error { _, err := conn.ReadAll("/data/file"); return err },
		"touch":     func() error { return conn.Touch("/data/new") },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrNotConnected), err.Error())
			assert.Equal(t, errors.ErrCodeNotConnected, errors.Code(err))
		})
	}

	// nothing reached the native client
	after := env.operations()
	for op, m := range after {
		assert.Equal(t, before[op].Count, m.Count, op)
	}
}

func TestZeroConnection(t *testing.T) {
	var conn Connection

	assert.False(t, conn.IsConnected())
	assert.NoError(t, conn.Disconnect())
	assert.Equal(t, "hdfs.Connection(<nil>)", conn.String())
	assert.Empty(t, conn.ID())

	_, err := conn.Stat("/")
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	_, err = conn.Open("/f", ModeRead, OpenOptions{})
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
}

func TestNilConnection(t *testing.T) {
	var conn *Connection

	assert.False(t, conn.IsConnected())
	assert.NoError(t, conn.Disconnect())
	assert.Equal(t, "hdfs.Connection(<nil>)", conn.String())
	assert.Empty(t, conn.ID())
	assert.False(t, conn.Local())

	_, err := conn.Stat("/")
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	_, err = conn.Exists("/")
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	_, err = conn.Open("/f", ModeRead, OpenOptions{})
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	_, err = conn.FindAll("/", (*FileInfo).IsFile)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	err = conn.Copy("/a", "/b", nil)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
}

func TestDisconnectReleasesFiles(t *testing.T) {
	env := newTestEnv(t, minidfs.ClusterConfig{})
	conn := env.connect(t, "alice")

	w, err := conn.Open("/a", ModeWrite, OpenOptions{})
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	writeFile(t, conn, "/b", []byte("xyz"))
	r, err := conn.Open("/b", ModeRead, OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), env.openFiles())

	require.NoError(t, conn.Disconnect())
	assert.Equal(t, int64(0), env.openFiles())

	// the writer's data was finalized by the native close
	other := env.connect(t, "alice")
	data, err := other.ReadAll("/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = r.Read(1)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	assert.False(t, r.IsReadOpen())
	assert.NoError(t, w.Close())
	assert.NoError(t, r.Close())

	_, err = r.Read(1)
	assert.True(t, errors.Is(err, errors.ErrFileClosed))
}

func TestConnectionLogging(t *testing.T) {
	env := newTestEnv(t, minidfs.ClusterConfig{})

	var out bytes.Buffer
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  utils.TRACE,
		Output: &out,
		Format: utils.FormatText,
	})
	require.NoError(t, err)

	opts := env.options("alice")
	opts.Logger = logger
	conn := env.connectWith(t, opts)

	_, err = conn.Exists("/")
	require.NoError(t, err)
	f, err := conn.Open("/tuned", ModeWrite, OpenOptions{BufferSize: 64 << 10, BlockSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = conn.Stat("/missing")
	require.Error(t, err)
	require.NoError(t, conn.Disconnect())

	logs := out.String()
	assert.Contains(t, logs, "connected")
	assert.Contains(t, logs, "connection_id="+conn.ID())
	assert.Contains(t, logs, "component=hdfs.connection")
	assert.Contains(t, logs, "address=hdfs://alice@localhost:8020")
	assert.Contains(t, logs, "file opened")
	assert.Contains(t, logs, "buffer_size=64.0 KB")
	assert.Contains(t, logs, "block_size=1.0 MB")
	assert.Contains(t, logs, "native call")
	assert.Contains(t, logs, "DOES_NOT_EXIST")
	assert.Contains(t, logs, "disconnected")
}

func TestConnectionPerGoroutine(t *testing.T) {
	env := newTestEnv(t, minidfs.ClusterConfig{})

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			conn, err := Connect(env.options(fmt.Sprintf("user%d", i)))
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			path := fmt.Sprintf("/shared/%d", i)
			data := pattern(1000 + i)
			if err := conn.Write(path, data); err != nil {
				return err
			}
			got, err := conn.ReadAll(path)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, data) {
				return fmt.Errorf("%s: read back %d bytes, want %d", path, len(got), len(data))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	conn := env.connect(t, "alice")
	entries, err := conn.List("/shared")
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestSharedConnection(t *testing.T) {
	env := newTestEnv(t, minidfs.ClusterConfig{})
	conn := env.connect(t, "alice")
	writeFile(t, conn, "/f", []byte("x"))

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				if _, err := conn.Stat("/f"); err != nil {
					return err
				}
				if err := conn.Write(fmt.Sprintf("/g/%d-%d", i, j), []byte("y")); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	entries, err := conn.List("/g")
	require.NoError(t, err)
	assert.Len(t, entries, 160)
}
