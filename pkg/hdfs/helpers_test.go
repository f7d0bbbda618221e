package hdfs

import (
	"bytes"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/hdfsclient/internal/metrics"
	"github.com/objectfs/hdfsclient/pkg/native/minidfs"
)

const otherPort = 9000

// testEnv is two clusters and a local filesystem behind one driver.
type testEnv struct {
	driver  *minidfs.Driver
	metrics *metrics.Collector
}

func newTestEnv(t *testing.T, cfg minidfs.ClusterConfig) *testEnv {
	t.Helper()

	primary, err := minidfs.NewCluster(cfg)
	require.NoError(t, err)

	cfg.Port = otherPort
	cfg.Storage = nil
	secondary, err := minidfs.NewCluster(cfg)
	require.NoError(t, err)

	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	require.NoError(t, err)

	return &testEnv{
		driver:  minidfs.NewDriver(memfs.New(), primary, secondary),
		metrics: collector,
	}
}

func (e *testEnv) options(user string) ConnectOptions {
	return ConnectOptions{
		Host:    "localhost",
		User:    user,
		Driver:  e.driver,
		Metrics: e.metrics,
	}
}

func (e *testEnv) connect(t *testing.T, user string) *Connection {
	t.Helper()
	return e.connectWith(t, e.options(user))
}

func (e *testEnv) connectWith(t *testing.T, opts ConnectOptions) *Connection {
	t.Helper()
	conn, err := Connect(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Disconnect() })
	return conn
}

func (e *testEnv) openFiles() int64 {
	return e.metrics.GetMetrics()["open_files"].(int64)
}

func (e *testEnv) operations() map[string]metrics.OperationMetrics {
	return e.metrics.GetMetrics()["operations"].(map[string]metrics.OperationMetrics)
}

func writeFile(t *testing.T, conn *Connection, path string, data []byte) {
	t.Helper()
	require.NoError(t, conn.Write(path, data))
}

func pattern(size int) []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
}
