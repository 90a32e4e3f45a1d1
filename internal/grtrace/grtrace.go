// Package grtrace implements the bounded trace ring (§4.H): two distinct
// bounded resources, not one. A fixed-capacity pool of trace-item slots
// (POOL_SIZE) backs every Item ever recorded; a separate BURST-capacity
// ring of finished trace chains holds onto the most recent chains for
// Dump/Clear. Each has its own independent oldest-drop recycle trigger,
// grounded on original_source/modules/infra/datapath/trace.c:
// gr_mbuf_trace_add recycles from the ring when the *pool*
// (rte_mempool_get) is exhausted; gr_mbuf_trace_finish recycles the *ring*
// itself (rte_ring_enqueue returning -ENOBUFS) when it is full. Both loops
// free the evicted chain's items back to the pool via free_trace.
//
// Generalized from per-packet mbuf trace chains to per-control-event trace
// chains (interface reconfigs, bond transitions, dispatched requests), and
// reimplemented atop sync.Mutex + two bounded counters as the idiomatic Go
// substitute for rte_mempool/rte_ring — no pack dependency offers a
// lock-free MPSC ring or a slab allocator, and a mutex-guarded pair of
// bounds is the plain Go way to express the same two limits.
package grtrace

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/grout-project/groutd/internal/grlog"
	"go.uber.org/zap"
)

// BurstSize mirrors the original's RTE_GRAPH_BURST_SIZE: the capacity of
// the ring of finished trace chains (traced_packets).
const BurstSize = 32

// itemsPerChain mirrors the original's fixed 128 trace items per mempool
// object budget, used only to size PoolSize.
const itemsPerChain = 128

// align32Pow2 rounds v up to the next power of two, replicating the
// original's align32pow2() bit-twiddle.
func align32Pow2(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

// PoolSize is POOL_SIZE = align32pow2(BURST*128)-1 from trace.c: the
// capacity of the trace-item slot pool, independent of and much larger
// than BurstSize.
var PoolSize = int(align32Pow2(BurstSize*itemsPerChain)) - 1

var log = grlog.Named("trace")

// Item is a single traced step: one interface reconfig, one bond state
// transition, one dispatched request, etc.
type Item struct {
	Seq    uint64
	Label  string
	At     time.Time
	Fields map[string]any
}

// Chain is every Item recorded for a single traced event, in the order
// they were added, matching the original's per-mbuf STAILQ of trace items.
type Chain struct {
	Seq   uint64
	Items []Item
	ring  *Ring
}

// Ring owns both bounded trace resources: an item-slot pool of capacity
// poolCapacity, and a BURST-capacity circular buffer of finished Chains.
// The zero value is not usable; construct with NewRing.
type Ring struct {
	mu sync.Mutex

	poolCapacity int
	poolUsed     int

	buf      []*Chain
	head     int // next slot to dequeue
	tail     int // next slot to enqueue
	size     int
	capacity int

	nextSeq             uint64
	poolExhaustionDrops uint64 // chains evicted to free pool slots (trace_add path)
	ringFullDrops       uint64 // chains evicted because the ring itself was full (trace_finish path)
}

// NewRing returns a Ring with an item pool of poolCapacity slots and a
// chain ring of burstCapacity entries (use PoolSize and BurstSize unless a
// test needs smaller bounds).
func NewRing(poolCapacity, burstCapacity int) *Ring {
	if poolCapacity <= 0 {
		poolCapacity = 1
	}
	if burstCapacity <= 0 {
		burstCapacity = 1
	}
	return &Ring{
		poolCapacity: poolCapacity,
		buf:          make([]*Chain, burstCapacity),
		capacity:     burstCapacity,
	}
}

// NewChain starts a new trace chain, consuming the next sequence number.
func (r *Ring) NewChain() *Chain {
	r.mu.Lock()
	seq := r.nextSeq
	r.nextSeq++
	r.mu.Unlock()
	return &Chain{Seq: seq, ring: r}
}

// timeNow exists so tests can be deterministic without needing to stub the
// standard library's clock.
var timeNow = time.Now

// Add appends one traced step to c, first reserving an item-pool slot for
// it. It is the caller's responsibility to serialize Adds to the same
// Chain (one chain belongs to one in-flight control-plane operation at a
// time), matching the original's gr_mbuf_trace_add contract.
func (c *Chain) Add(label string, fields map[string]any) {
	c.ring.acquireSlot()
	c.Items = append(c.Items, Item{Seq: uint64(len(c.Items)), Label: label, At: timeNow(), Fields: fields})
}

// acquireSlot reserves one item-pool slot, recycling the oldest finished
// chain from the ring (freeing its items back to the pool) for as long as
// the pool is exhausted and the ring still holds something to evict —
// gr_mbuf_trace_add's `while (rte_mempool_get(...) < 0) { dequeue + free }`
// loop. Unlike the original, this never busy-waits: once the ring itself
// is empty there is nothing left to recycle, so the slot is granted
// anyway rather than blocking the control plane forever.
func (r *Ring) acquireSlot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.poolUsed >= r.poolCapacity && r.size > 0 {
		r.evictOldestLocked(&r.poolExhaustionDrops, "trace pool exhausted, recycling oldest chain")
	}
	r.poolUsed++
}

// evictOldestLocked drops the oldest chain from the ring and returns its
// items to the pool. Callers must hold r.mu and know r.size > 0.
func (r *Ring) evictOldestLocked(counter *uint64, msg string) {
	oldest := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % r.capacity
	r.size--
	r.poolUsed -= len(oldest.Items)
	*counter++
	log.Debug(msg,
		zap.Uint64("dropped_seq", oldest.Seq),
		zap.String("pool_size", humanize.Comma(int64(r.poolCapacity))),
	)
}

// Finish enqueues c onto the chain ring, dropping the oldest chain (and
// freeing its items back to the pool) if the ring is full (§4.H's
// "oldest-drop" policy), matching gr_mbuf_trace_finish's
// recycle-on-ENOBUFS behavior.
func (r *Ring) Finish(c *Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		r.evictOldestLocked(&r.ringFullDrops, "trace ring full, dropping oldest chain")
	}

	r.buf[r.tail] = c
	r.tail = (r.tail + 1) % r.capacity
	r.size++
}

// Dump returns every chain currently held, oldest first, without removing
// them — the read-only equivalent of gr_trace_dump.
func (r *Ring) Dump() []*Chain {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Chain, 0, r.size)
	for i, idx := 0, r.head; i < r.size; i, idx = i+1, (idx+1)%r.capacity {
		out = append(out, r.buf[idx])
	}
	return out
}

// Clear drains every chain from the ring and returns their items to the
// pool, matching gr_trace_clear. Chains not yet finished (still in-flight
// from NewChain/Add, not yet passed to Finish) are untouched, matching the
// original: trace_clear only drains the traced_packets ring, not mbufs
// still being processed.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.buf {
		if c == nil {
			continue
		}
		r.poolUsed -= len(c.Items)
		r.buf[i] = nil
	}
	r.head, r.tail, r.size = 0, 0, 0
}

// Dropped reports how many chains have been evicted by either recycle
// trigger (pool exhaustion or ring-full) since the ring was created.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolExhaustionDrops + r.ringFullDrops
}

// PoolExhaustionDrops reports how many chains were evicted specifically to
// free item-pool slots for a new Add (the gr_mbuf_trace_add recycle path).
func (r *Ring) PoolExhaustionDrops() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolExhaustionDrops
}

// RingFullDrops reports how many chains were evicted specifically because
// the chain ring itself was full on Finish (the gr_mbuf_trace_finish
// recycle path).
func (r *Ring) RingFullDrops() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ringFullDrops
}

// Len reports how many finished chains are currently held in the ring.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// PoolUsed reports how many item-pool slots are currently accounted for,
// across both in-flight and ring-held chains.
func (r *Ring) PoolUsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolUsed
}
