// Package minidfs is an in-process implementation of the native client
// capability. A Cluster plays the NameNode and its DataNodes over a go-billy
// filesystem; the driver also serves local-filesystem sessions.
package minidfs

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/uuid"
)

// Defaults for a cluster configuration.
const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8020
	DefaultBlockSize   = 128 << 20
	DefaultReplication = 3
	DefaultCapacity    = 1 << 40
	DefaultSuperuser   = "hdfs"
	DefaultGroup       = "supergroup"

	// LocalBlockSize is what local sessions report as block size.
	LocalBlockSize = 32 << 20

	defaultBufferSize = 4096
	clusterDataRoot   = "/current"
)

// DefaultDataNodes names the datanodes of a default cluster.
var DefaultDataNodes = []string{"dn1.local", "dn2.local", "dn3.local"}

// ClusterConfig describes a simulated cluster.
type ClusterConfig struct {
	// Host the NameNode is bound to. "0.0.0.0" accepts any host name.
	Host string
	Port int

	DataNodes          []string
	DefaultBlockSize   int64
	DefaultReplication int16
	Capacity           int64
	Superuser          string

	// Storage holds block data. Defaults to an in-memory filesystem.
	Storage billy.Filesystem
}

// Cluster is a running simulated NameNode.
type Cluster struct {
	ID string

	host string
	port int
	ns   *namespace
}

// NewCluster starts a cluster with the defaults filled in.
func NewCluster(cfg ClusterConfig) (*Cluster, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if len(cfg.DataNodes) == 0 {
		cfg.DataNodes = DefaultDataNodes
	}
	if cfg.DefaultBlockSize == 0 {
		cfg.DefaultBlockSize = DefaultBlockSize
	}
	if cfg.DefaultReplication == 0 {
		cfg.DefaultReplication = DefaultReplication
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Superuser == "" {
		cfg.Superuser = DefaultSuperuser
	}
	if cfg.Storage == nil {
		cfg.Storage = memfs.New()
	}
	if cfg.DefaultBlockSize < 0 || cfg.DefaultReplication < 0 || cfg.Capacity < 0 {
		return nil, fmt.Errorf("invalid cluster configuration: negative size")
	}

	ns, err := newNamespace(namespaceConfig{
		storage:          cfg.Storage,
		root:             clusterDataRoot,
		hosts:            append([]string(nil), cfg.DataNodes...),
		blockSize:        cfg.DefaultBlockSize,
		replication:      cfg.DefaultReplication,
		capacity:         cfg.Capacity,
		superuser:        cfg.Superuser,
		enforceOwnership: true,
	})
	if err != nil {
		return nil, err
	}

	return &Cluster{
		ID:   "CID-" + uuid.NewString(),
		host: cfg.Host,
		port: cfg.Port,
		ns:   ns,
	}, nil
}

// Addr returns host:port of the NameNode.
func (c *Cluster) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Host returns the bound host.
func (c *Cluster) Host() string { return c.host }

// Port returns the bound port.
func (c *Cluster) Port() int { return c.port }

func (c *Cluster) accepts(host string, port int) bool {
	if port != c.port {
		return false
	}
	return c.host == DefaultHost || c.host == host
}
