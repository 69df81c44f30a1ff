package fibermill

import (
	"sync"
	"sync/atomic"
)

// epochReleaseThreshold bounds how long garbage accumulates on a thread's
// retired list before a release bumps the global epoch and reclaims.
const epochReleaseThreshold = 16

// epochFreeCacheBound caps how many freed node bodies a thread record keeps
// around for fast reuse before handing the rest back to the GC.
const epochFreeCacheBound = 32

// epochNode wraps a value with the epoch it was retired at, chained for the
// per-thread retired list and the free-body cache.
type epochNode struct {
	body       any
	retireEpoch uint64
	next       *epochNode
}

// epochThreadRecord is one thread's slot in the epoch domain: its currently
// open guard's epoch, a retired list (newest first; release examines every
// entry), and a small free-body cache.
type epochThreadRecord struct {
	active   atomic.Bool
	refcount atomic.Int32
	epoch    atomic.Uint64
	mu       sync.Mutex
	retired  *epochNode
	retiredN int
	freeList *epochNode
	freeN    int
	next     *epochThreadRecord
}

// EpochDomain is a batched, deferred-reclamation garbage collector used by
// data structures that walk unbounded paths under concurrent mutation. Not
// used by the sharded queue, which relies on hazard pointers instead; it
// is provided standalone for structures (such as a priority-ordered
// variant of the ready queue) that prefer epoch reclamation's lower
// per-access cost at the expense of coarser-grained reclamation.
type EpochDomain struct {
	global atomic.Uint64
	head   atomic.Pointer[epochThreadRecord]
}

// NewEpochDomain creates a domain with the global epoch at zero.
func NewEpochDomain() *EpochDomain {
	return &EpochDomain{}
}

func (d *EpochDomain) acquireRecord() *epochThreadRecord {
	for r := d.head.Load(); r != nil; r = r.next {
		if !r.active.Load() && r.active.CompareAndSwap(false, true) {
			return r
		}
	}
	r := &epochThreadRecord{}
	r.active.Store(true)
	for {
		head := d.head.Load()
		r.next = head
		if d.head.CompareAndSwap(head, r) {
			return r
		}
	}
}

// Guard is an RAII-style token: while held, no pointer this thread may
// observe can be freed, because the reclaimer only frees entries retired
// before the minimum epoch across all open guards.
type Guard struct {
	domain *EpochDomain
	record *epochThreadRecord
}

// OpenGuard finds (or creates) this thread's record, publishes the current
// global epoch, and increments its refcount.
func (d *EpochDomain) OpenGuard() *Guard {
	r := d.acquireRecord()
	if r.refcount.Add(1) == 1 {
		r.epoch.Store(d.global.Load())
	}
	return &Guard{domain: d, record: r}
}

// Clone increments the guard's record refcount, mirroring a copy of the
// RAII handle in the source design.
func (g *Guard) Clone() *Guard {
	g.record.refcount.Add(1)
	return &Guard{domain: g.domain, record: g.record}
}

// Retire stamps ptr with the current global epoch and defers its
// reclamation until no guard can observe it.
func (g *Guard) Retire(ptr any) {
	r := g.record
	r.mu.Lock()
	r.retired = &epochNode{body: ptr, retireEpoch: g.domain.global.Load(), next: r.retired}
	r.retiredN++
	force := r.retiredN >= epochReleaseThreshold
	r.mu.Unlock()
	if force {
		g.domain.release(r)
	}
}

// Allocate reuses a cached freed body from this thread's record if one is
// available, else calls alloc to construct a fresh T.
func (g *Guard) Allocate(alloc func() any) any {
	r := g.record
	r.mu.Lock()
	if r.freeList != nil {
		n := r.freeList
		r.freeList = n.next
		r.freeN--
		r.mu.Unlock()
		return n.body
	}
	r.mu.Unlock()
	return alloc()
}

// Drop releases this guard; the last drop on a record runs a release pass
// and then deactivates the record.
func (g *Guard) Drop() {
	if g.record.refcount.Add(-1) == 0 {
		g.domain.release(g.record)
		g.record.active.Store(false)
	}
}

// release bumps the global epoch, computes the minimum active epoch, and
// destructively frees every retired node older than it, caching freed
// bodies up to epochFreeCacheBound for fast reuse.
func (d *EpochDomain) release(self *epochThreadRecord) {
	d.global.Add(1)
	minActive := d.global.Load()
	for r := d.head.Load(); r != nil; r = r.next {
		if r.active.Load() && r.refcount.Load() > 0 {
			if e := r.epoch.Load(); e < minActive {
				minActive = e
			}
		}
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	var kept *epochNode
	var keptTail *epochNode
	n := self.retired
	self.retired = nil
	self.retiredN = 0
	for n != nil {
		next := n.next
		if n.retireEpoch < minActive {
			if self.freeN < epochFreeCacheBound {
				n.next = self.freeList
				self.freeList = n
				self.freeN++
			}
			// else: n.body simply becomes unreachable and is collected by
			// the Go garbage collector, which is this domain's underlying
			// memory source.
		} else {
			n.next = nil
			if kept == nil {
				kept = n
			} else {
				keptTail.next = n
			}
			keptTail = n
		}
		n = next
	}
	self.retired = kept
	for k := kept; k != nil; k = k.next {
		self.retiredN++
	}
}
