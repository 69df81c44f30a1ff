package fibermill

import (
	"sort"
	"sync/atomic"
	"unsafe"
)

// hazardSlots is the per-record hazard pointer count (K). The sharded queue
// needs at most 2 (head, next) live at once per producer traversal.
const hazardSlots = 2

// hazardScanThreshold (R) is the retired-list size that triggers a scan.
// Must be >= 2*liveRecords*K and at least 16; a fixed generous constant
// avoids tracking live-record count just to compute a threshold.
const hazardScanThreshold = 64

// hazardRecord is one thread's published hazard pointers plus its deferred
// free list. Records form a singly linked, append-only list so acquire can
// walk it lock-free looking for an inactive record to reuse.
type hazardRecord struct {
	active  atomic.Bool
	slots   [hazardSlots]atomic.Pointer[any]
	retired []retiredPointer
	next    *hazardRecord
}

type retiredPointer struct {
	ptr    unsafe.Pointer
	free   func(unsafe.Pointer)
	sortAt uintptr
}

// HazardDomain owns the list of hazardRecords shared by every thread that
// traverses the sharded queue's producer lists.
type HazardDomain struct {
	head atomic.Pointer[hazardRecord]
}

// NewHazardDomain creates an empty domain; records are allocated lazily by
// Acquire as threads first touch it.
func NewHazardDomain() *HazardDomain {
	return &HazardDomain{}
}

// Acquire finds an inactive record and claims it, or links a new one.
func (d *HazardDomain) Acquire() *hazardRecord {
	for r := d.head.Load(); r != nil; r = r.next {
		if !r.active.Load() && r.active.CompareAndSwap(false, true) {
			return r
		}
	}
	r := &hazardRecord{}
	r.active.Store(true)
	for {
		head := d.head.Load()
		r.next = head
		if d.head.CompareAndSwap(head, r) {
			return r
		}
	}
}

// Release clears a record's published hazards and marks it reusable.
func (d *HazardDomain) Release(r *hazardRecord) {
	for i := range r.slots {
		r.slots[i].Store(nil)
	}
	r.active.Store(false)
}

// Assign publishes ptr as hazard slot i of r, using the acquire-release
// ordering the manager's scan correctness depends on: a CAS-surviving
// pointer read after Assign is guaranteed visible to a concurrent scan that
// loads this slot afterward.
func (r *hazardRecord) Assign(i int, ptr unsafe.Pointer) {
	v := any(ptr)
	r.slots[i].Store(&v)
}

// Clear removes the published hazard at slot i.
func (r *hazardRecord) Clear(i int) {
	r.slots[i].Store(nil)
}

// Retire queues ptr for deferred reclamation by free once no hazard record
// publishes it, triggering a scan when the retired list crosses the
// threshold.
func (d *HazardDomain) Retire(r *hazardRecord, ptr unsafe.Pointer, free func(unsafe.Pointer)) {
	r.retired = append(r.retired, retiredPointer{ptr: ptr, free: free, sortAt: uintptr(ptr)})
	if len(r.retired) >= hazardScanThreshold {
		d.scan(r)
		d.helpScan(r)
	}
}

// collectHazards gathers the union of every currently published hazard
// pointer across all records, sorted for binary search.
func (d *HazardDomain) collectHazards() []uintptr {
	var out []uintptr
	for r := d.head.Load(); r != nil; r = r.next {
		for i := range r.slots {
			if p := r.slots[i].Load(); p != nil {
				if up, ok := (*p).(unsafe.Pointer); ok && up != nil {
					out = append(out, uintptr(up))
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func isHazardous(hazards []uintptr, ptr uintptr) bool {
	i := sort.Search(len(hazards), func(i int) bool { return hazards[i] >= ptr })
	return i < len(hazards) && hazards[i] == ptr
}

// scan frees every retired pointer in r that no record currently publishes.
func (d *HazardDomain) scan(r *hazardRecord) {
	hazards := d.collectHazards()
	kept := r.retired[:0]
	for _, rp := range r.retired {
		if isHazardous(hazards, rp.sortAt) {
			kept = append(kept, rp)
			continue
		}
		rp.free(rp.ptr)
	}
	r.retired = kept
}

// helpScan adopts the retired lists of inactive records this thread can
// lock, so a thread that exits without retiring anything further does not
// strand other threads' deferred frees forever.
func (d *HazardDomain) helpScan(self *hazardRecord) {
	for r := d.head.Load(); r != nil; r = r.next {
		if r == self || r.active.Load() {
			continue
		}
		if !r.active.CompareAndSwap(false, true) {
			continue
		}
		adopted := r.retired
		r.retired = nil
		r.active.Store(false)
		if len(adopted) == 0 {
			continue
		}
		self.retired = append(self.retired, adopted...)
		if len(self.retired) >= hazardScanThreshold {
			d.scan(self)
		}
	}
}
