package hdfs

import (
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/objectfs/hdfsclient/internal/metrics"
	"github.com/objectfs/hdfsclient/pkg/errors"
	"github.com/objectfs/hdfsclient/pkg/native"
	"github.com/objectfs/hdfsclient/pkg/utils"
)

const component = "hdfs"

// connectionSeq orders connections for calls that lock two of them.
var connectionSeq atomic.Uint64

// Connection is one session to a filesystem, either a NameNode or the local
// filesystem. Calls through a Connection are serialized by its lock, so it
// may be shared, but callers wanting parallel I/O should open one Connection
// per goroutine.
//
// A Connection that becomes unreachable without Disconnect is disconnected
// by the runtime.
type Connection struct {
	*conn
}

type conn struct {
	mu    sync.Mutex
	fs    native.FS // nil once disconnected
	files map[*fileState]struct{}

	seq     uint64
	id      string
	opts    ConnectOptions
	logger  *utils.StructuredLogger
	metrics *metrics.Collector
}

// Connect opens a session described by opts. Unset fields take their
// defaults: host 0.0.0.0, port 8020 and the current OS user.
func Connect(opts ConnectOptions) (*Connection, error) {
	opts = opts.withDefaults()
	if err := validateOptions("connect", &opts); err != nil {
		return nil, err
	}

	c := &conn{
		files:   make(map[*fileState]struct{}),
		seq:     connectionSeq.Add(1),
		id:      uuid.NewString(),
		opts:    opts,
		metrics: opts.Metrics,
	}
	c.logger = opts.Logger.WithComponent("hdfs.connection").WithFields(map[string]interface{}{
		"connection_id": c.id,
		"address":       c.address(),
	})

	driver := opts.Driver
	if driver == nil {
		d, err := native.CurrentDriver()
		if err != nil {
			e := errors.NewError(errors.ErrCodeConnect, "Failed to connect to HDFS: "+err.Error()).
				WithCause(err).
				WithComponent(component).
				WithOperation("connect")
			c.metrics.RecordError("connect", e)
			return nil, e
		}
		driver = d
	}

	start := time.Now()
	var (
		fs  native.FS
		err error
	)
	if opts.Local {
		fs, err = driver.ConnectLocal(opts.User)
	} else {
		fs, err = driver.Connect(opts.Host, opts.Port, opts.User)
	}
	if err == nil && fs == nil {
		err = native.EINTERNAL
	}
	c.metrics.RecordOperation("connect", time.Since(start), 0, err == nil)
	if err != nil {
		e := errors.FromNative(errors.ErrCodeConnect, err, "Failed to connect to HDFS").
			WithContext("address", c.address()).
			WithContext("user", opts.User).
			WithComponent(component).
			WithOperation("connect")
		c.metrics.RecordError("connect", e)
		c.logger.Debug("connect failed", map[string]interface{}{"error": e})
		return nil, e
	}

	c.fs = fs
	c.metrics.AddActiveConnections(1)
	c.logger.Info("connected", map[string]interface{}{
		"user":  opts.User,
		"local": opts.Local,
	})

	connection := &Connection{conn: c}
	runtime.AddCleanup(connection, func(c *conn) { c.release(true) }, c)
	return connection, nil
}

// Disconnect releases the session and any native files still open on it.
// It is safe to call more than once and never fails; native teardown
// failures are logged.
func (c *Connection) Disconnect() error {
	if s := c.session(); s != nil {
		s.release(false)
	}
	return nil
}

// Close is Disconnect, for use as an io.Closer.
func (c *Connection) Close() error {
	return c.Disconnect()
}

// IsConnected reports whether the session is still held.
func (c *Connection) IsConnected() bool {
	if c.session() == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fs != nil
}

// ID returns the unique identifier logged with every event of this session.
func (c *Connection) ID() string {
	if c.session() == nil {
		return ""
	}
	return c.id
}

// Local reports whether this is a local filesystem session.
func (c *Connection) Local() bool { return c.session() != nil && c.opts.Local }

// Host returns the NameNode host the session was opened against, or "" for
// a local session.
func (c *Connection) Host() string {
	if c.session() == nil {
		return ""
	}
	return c.opts.Host
}

// Port returns the NameNode port the session was opened against, or 0 for
// a local session.
func (c *Connection) Port() int {
	if c.session() == nil {
		return 0
	}
	return c.opts.Port
}

// User returns the user the session acts as.
func (c *Connection) User() string {
	if c.session() == nil {
		return ""
	}
	return c.opts.User
}

func (c *Connection) String() string {
	if c.session() == nil {
		return "hdfs.Connection(<nil>)"
	}
	return fmt.Sprintf("hdfs.Connection(%s)", c.address())
}

// session returns the shared state, nil for a nil or zero Connection.
func (c *Connection) session() *conn {
	if c == nil {
		return nil
	}
	return c.conn
}

func (c *conn) address() string {
	if c.opts.Local {
		return "file:///"
	}
	return "hdfs://" + c.opts.User + "@" + net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

func (c *conn) release(collected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fs == nil {
		return
	}
	if collected {
		c.logger.Warn("connection was not disconnected before being collected")
	}

	for st := range c.files {
		st.releaseLocked()
	}
	if err := c.fs.Disconnect(); err != nil {
		c.logger.Warn("native disconnect failed", map[string]interface{}{"error": err})
	}
	c.fs = nil
	c.metrics.AddActiveConnections(-1)
	c.logger.Info("disconnected")
}

// failure converts a native error into the error returned to callers.
type failure func(cause error) *errors.DFSError

func fail(code errors.ErrorCode, format string, args ...interface{}) failure {
	return func(cause error) *errors.DFSError {
		return errors.FromNative(code, cause, format, args...)
	}
}

// pathFail reports ENOENT as DOES_NOT_EXIST and everything else as
// DFS_EXCEPTION.
func pathFail(format string, args ...interface{}) failure {
	return func(cause error) *errors.DFSError {
		return errors.FromNative(errors.PathCode(cause), cause, format, args...)
	}
}

func notConnected(operation string) *errors.DFSError {
	return errors.NewError(errors.ErrCodeNotConnected, "DFS is not connected").
		WithComponent(component).
		WithOperation(operation)
}

// call runs one native round trip under the connection lock.
func (c *conn) call(operation string, fn func(native.FS) error, onErr failure) error {
	if c == nil {
		return notConnected(operation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callLocked(operation, fn, onErr)
}

func (c *conn) callLocked(operation string, fn func(native.FS) error, onErr failure) error {
	if c.fs == nil {
		return c.reject(operation, notConnected(operation))
	}
	start := time.Now()
	err := fn(c.fs)
	return c.finish(operation, start, 0, err, onErr)
}

// finish records a completed native call and converts its error.
func (c *conn) finish(operation string, start time.Time, bytes int64, err error, onErr failure) error {
	elapsed := time.Since(start)
	c.metrics.RecordOperation(operation, elapsed, bytes, err == nil)
	if err == nil {
		c.logger.Trace("native call", map[string]interface{}{
			"operation": operation,
			"duration":  elapsed,
			"bytes":     bytes,
		})
		return nil
	}
	return c.reject(operation, onErr(err).WithComponent(component).WithOperation(operation))
}

func (c *conn) reject(operation string, e *errors.DFSError) error {
	c.metrics.RecordError(operation, e)
	c.logger.Debug("call failed", map[string]interface{}{"operation": operation, "error": e})
	return e
}

// lockPair locks a and b in sequence order and returns the matching unlock.
func lockPair(a, b *conn) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if b.seq < a.seq {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
