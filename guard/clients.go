package guard

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

const (
	clientSetShards       = 32
	clientSetShardCapcity = 10000 // 320,000 principals tracked total across shards
)

// clientSet is a striped, bounded-LRU tracker of every principal ever
// seen by this process. The spec leaves the memory bound of this set
// an open question; this resolves it by evicting the least-recently-
// seen principal per shard once that shard is full, rather than
// growing unbounded. Once any shard evicts, the reported cardinality
// becomes a floor, not an exact count — that's logged once.
type clientSet struct {
	shards     [clientSetShards]clientShard
	evictedOne sync.Once
}

type clientShard struct {
	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

func newClientSet() *clientSet {
	cs := &clientSet{}
	for i := range cs.shards {
		cs.shards[i].order = list.New()
		cs.shards[i].entries = make(map[string]*list.Element)
	}
	return cs
}

func (cs *clientSet) shardFor(principal string) *clientShard {
	h := xxhash.Sum64String(principal)
	return &cs.shards[h%clientSetShards]
}

// touch records principal as seen, moving it to the front of its
// shard's LRU list. Returns true if this was the first time the
// principal was seen (useful for gauges that care about new clients).
func (cs *clientSet) touch(principal string) bool {
	shard := cs.shardFor(principal)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if el, ok := shard.entries[principal]; ok {
		shard.order.MoveToFront(el)
		return false
	}

	if shard.order.Len() >= clientSetShardCapcity {
		oldest := shard.order.Back()
		if oldest != nil {
			shard.order.Remove(oldest)
			delete(shard.entries, oldest.Value.(string))
			cs.evictedOne.Do(func() {
				log.Warn().Msg("active client set shard at capacity, evicting least-recently-seen principals; active_clients gauge is now a floor, not an exact count")
			})
		}
	}

	el := shard.order.PushFront(principal)
	shard.entries[principal] = el
	return true
}

// cardinality returns the approximate number of tracked principals.
func (cs *clientSet) cardinality() int {
	total := 0
	for i := range cs.shards {
		cs.shards[i].mu.Lock()
		total += cs.shards[i].order.Len()
		cs.shards[i].mu.Unlock()
	}
	return total
}
