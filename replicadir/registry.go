// Package replicadir makes the set of live gateway replicas observable
// without sharing any rate-limiting or ban state between them: each
// process registers itself with a TTL heartbeat and can discover or
// watch its peers. This feeds the health endpoint's replica count (the
// metrics endpoint exposes no replica gauge); it never becomes a
// coordination point for ban or bucket state.
package replicadir

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Instance describes one live gateway replica.
type Instance struct {
	ID       string            `json:"id"`
	Address  string            `json:"address"`
	Metadata map[string]string `json:"metadata"`
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s@%s", i.ID, i.Address)
}

// serviceName is fixed: this directory tracks exactly one kind of
// peer, the gateway process itself.
const serviceName = "shield-gateway"

// Directory registers this replica and discovers its peers.
type Directory interface {
	// Register adds this replica and starts heartbeating. The returned
	// function deregisters it; callers should defer it.
	Register(ctx context.Context, instance *Instance) (deregister func(context.Context) error, err error)

	// Peers lists the currently live replicas.
	Peers(ctx context.Context) ([]*Instance, error)

	// Watch emits the full peer list whenever it changes, until ctx is
	// canceled.
	Watch(ctx context.Context) (<-chan []*Instance, error)

	// Close stops this directory's own heartbeats.
	Close() error
}

func hashInstances(instances []*Instance) string {
	if len(instances) == 0 {
		return "empty"
	}
	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].ID < instances[j].ID
	})
	var sb strings.Builder
	for i, inst := range instances {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(inst.ID)
		sb.WriteString("@")
		sb.WriteString(inst.Address)
	}
	return sb.String()
}
