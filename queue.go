package fibermill

import (
	"math/rand/v2"
	"sync/atomic"
	"unsafe"
)

// msNode is one Michael-Scott queue node. value holds a *Task (stored as
// unsafe.Pointer so the node itself can be hazard-retired uniformly).
type msNode struct {
	next  atomic.Pointer[msNode]
	value unsafe.Pointer
}

// producerQueue is one per-producer Michael-Scott singly-linked queue: a
// sentinel head and an atomic tail. dequeue publishes head/next in the
// calling thread's 2-slot hazard record, passed in by Queue.Dequeue.
type producerQueue struct {
	head  atomic.Pointer[msNode]
	tail  atomic.Pointer[msNode]
	count atomic.Int64
	next  *producerQueue
}

func newProducerQueue() *producerQueue {
	sentinel := &msNode{}
	q := &producerQueue{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

func (q *producerQueue) enqueue(task *Task) {
	node := &msNode{value: unsafe.Pointer(task)}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, node) {
				q.tail.CompareAndSwap(tail, node)
				q.count.Add(1)
				return
			}
		} else {
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// dequeue pops the oldest item, publishing head and next as hazards for the
// duration of the attempt so a concurrent Retire of either cannot free them
// out from under this thread.
func (q *producerQueue) dequeue(hz *hazardRecord) (*Task, bool) {
	for {
		head := q.head.Load()
		hz.Assign(0, unsafe.Pointer(head))
		if head != q.head.Load() {
			continue
		}
		tail := q.tail.Load()
		next := head.next.Load()
		hz.Assign(1, unsafe.Pointer(next))
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			hz.Clear(0)
			hz.Clear(1)
			return nil, false
		}
		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		task := (*Task)(next.value)
		if q.head.CompareAndSwap(head, next) {
			q.count.Add(-1)
			hz.Clear(0)
			hz.Clear(1)
			return task, true
		}
	}
}

// producerQueueSampleWidth is the number of producer queues sampled by a
// dequeue that finds its home queue empty, before falling back to a full
// cycle. The exact constant is tuning, not contract: a full cycle with
// zero items observed must still return Empty regardless of this value.
const producerQueueSampleWidth = 3

// Queue is the sharded MPMC runnable-task queue: a lock-free, append-only
// list of per-producer Michael-Scott queues plus each thread's hazard
// record and home-producer cache entry.
type Queue struct {
	producers atomic.Pointer[producerQueue] // head of the producer list
	hazards   *HazardDomain
	cache     *ThreadCache // tid -> *producerQueue, this thread's home lane
	counter   atomic.Uint64
}

// NewQueue creates an empty sharded queue. cacheCapacity should be at least
// the runtime's threads_count so every worker gets a stable home-producer
// slot.
func NewQueue(cacheCapacity int) *Queue {
	return &Queue{
		hazards: NewHazardDomain(),
		cache:   NewThreadCache(cacheCapacity),
	}
}

// homeProducer returns (creating if necessary) the calling thread's
// producer lane, linking new lanes into the shared list and caching the
// result so subsequent calls are a single cache lookup.
func (q *Queue) homeProducer(tid uint64) *producerQueue {
	if v, ok := q.cache.Get(tid); ok {
		return v.(*producerQueue)
	}
	pq := newProducerQueue()
	for {
		head := q.producers.Load()
		pq.next = head
		if q.producers.CompareAndSwap(head, pq) {
			break
		}
	}
	q.cache.Set(tid, pq)
	return pq
}

// Enqueue appends task to the calling thread's home producer lane.
func (q *Queue) Enqueue(tid uint64, task *Task) {
	q.homeProducer(tid).enqueue(task)
}

// Dequeue consults the thread's home lane first; if empty, it samples a
// handful of other producer lanes (jittered by tid and a call counter to
// spread contention) before declaring the queue Empty. Empty is only
// returned after a full cycle over the producer list observed no items.
func (q *Queue) Dequeue(tid uint64) (*Task, bool) {
	hz := q.hazards.Acquire()
	defer q.hazards.Release(hz)

	home := q.homeProducer(tid)
	if t, ok := home.dequeue(hz); ok {
		return t, true
	}

	all := q.snapshotProducers()
	if len(all) == 0 {
		return nil, false
	}
	start := int((tid ^ q.counter.Add(1)) % uint64(len(all)))
	sampled := 0
	for i := 0; i < len(all) && sampled < producerQueueSampleWidth; i++ {
		pq := all[(start+i)%len(all)]
		if pq == home {
			continue
		}
		if pq.count.Load() <= 0 {
			continue
		}
		sampled++
		if t, ok := pq.dequeue(hz); ok {
			return t, true
		}
	}
	// Full cycle fallback: nothing sampled had positive size, but a racing
	// enqueue may have landed between our size checks. One more unsampled
	// sweep keeps the "full cycle with zero items observed" contract exact.
	for i := 0; i < len(all); i++ {
		pq := all[(start+i)%len(all)]
		if t, ok := pq.dequeue(hz); ok {
			return t, true
		}
	}
	return nil, false
}

func (q *Queue) snapshotProducers() []*producerQueue {
	var out []*producerQueue
	for pq := q.producers.Load(); pq != nil; pq = pq.next {
		out = append(out, pq)
	}
	return out
}

// jitterIndex returns a random index in [0, n), or 0 when n <= 0. Dequeue
// does not use it; its start offset is mixed from tid and a call counter.
func jitterIndex(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n)
}
