package minidfs

import (
	"sync"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/objectfs/hdfsclient/pkg/native"
)

// LocalCapacity is what local sessions report as capacity.
const LocalCapacity = 1 << 40

// Driver routes sessions to registered clusters or to the local filesystem.
type Driver struct {
	mu       sync.Mutex
	clusters []*Cluster
	local    billy.Filesystem
	localNS  *namespace
}

// NewDriver creates a driver serving the given clusters. Local sessions use
// local, or the host filesystem rooted at "/" when local is nil.
func NewDriver(local billy.Filesystem, clusters ...*Cluster) *Driver {
	if local == nil {
		local = osfs.New("/")
	}
	return &Driver{
		clusters: clusters,
		local:    local,
	}
}

// AddCluster registers another cluster.
func (d *Driver) AddCluster(c *Cluster) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clusters = append(d.clusters, c)
}

// Connect opens a session on the cluster bound at host:port.
func (d *Driver) Connect(host string, port int, user string) (native.FS, error) {
	if user == "" {
		return nil, syscall.EINVAL
	}

	d.mu.Lock()
	var target *Cluster
	for _, c := range d.clusters {
		if c.accepts(host, port) {
			target = c
			break
		}
	}
	d.mu.Unlock()

	if target == nil {
		return nil, syscall.ECONNREFUSED
	}
	return newSession(target.ns, user, "/user/"+user), nil
}

// ConnectLocal opens a session on the local filesystem.
func (d *Driver) ConnectLocal(user string) (native.FS, error) {
	if user == "" {
		return nil, syscall.EINVAL
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.localNS == nil {
		ns, err := newNamespace(namespaceConfig{
			storage:     d.local,
			root:        "/",
			hosts:       []string{"localhost"},
			blockSize:   LocalBlockSize,
			replication: 1,
			capacity:    LocalCapacity,
			superuser:   user,
			fixedRepl:   true,
		})
		if err != nil {
			return nil, err
		}
		d.localNS = ns
	}
	return newSession(d.localNS, user, "/"), nil
}
