package vm

import (
	"math"
	"sync"
)

// ---------------------------------------------------------------------------
// Heap: arena of fixed-layout objects addressed by checked handles
// ---------------------------------------------------------------------------

// Heap owns every VM object. References handed out are integer handles
// (entry index plus generation), so a freed entry can never be reached
// through an old handle: resolving one is an integrity violation. An entry
// whose generation is exhausted is retired rather than reused.
//
// A String holds a counted reference to its value array, so freeing the
// last reference to a string also releases the array.
//
// The heap is shared by all threads of a VM. Its accounting and entry table
// are guarded by mu; object contents are immutable once published, so
// views may be read after the lock is released.
type Heap struct {
	mu       sync.Mutex
	capacity int
	used     int
	entries  []heapEntry
	freeList []int
	live     int
}

type heapEntry struct {
	obj *Object
	gen uint32
}

// NewHeap creates a heap with the given capacity in units.
func NewHeap(capacity int) *Heap {
	if capacity < 0 {
		capacity = 0
	}
	return &Heap{capacity: capacity}
}

// Capacity returns the total number of heap units.
func (h *Heap) Capacity() int {
	return h.capacity
}

// Used returns the number of units occupied by live objects.
func (h *Heap) Used() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Free returns the number of unallocated units.
func (h *Heap) Free() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity - h.used
}

// Live returns the number of live objects.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// free32 returns Free clamped to the int32 range for the operand stack.
func (h *Heap) free32() int32 {
	free := h.Free()
	if free > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(free)
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (h *Heap) alloc(obj *Object) (Ref, *Fault) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if obj.size > h.capacity-h.used {
		return NullRef, newFault(OutOfMemory, "cannot allocate %s of %d units (%d free)",
			obj.kind, obj.size, h.capacity-h.used)
	}

	var idx int
	if n := len(h.freeList); n > 0 {
		idx = h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
	} else {
		if len(h.entries) >= maxHeapEntries {
			return NullRef, newFault(OutOfMemory, "heap entry table exhausted")
		}
		h.entries = append(h.entries, heapEntry{})
		idx = len(h.entries) - 1
	}

	obj.refs = 1
	h.entries[idx].obj = obj
	h.used += obj.size
	h.live++
	return makeRef(idx, h.entries[idx].gen), nil
}

// AllocByteArray allocates a byte array holding a copy of data.
func (h *Heap) AllocByteArray(data []byte) (Ref, *Fault) {
	buf := make([]byte, len(data))
	copy(buf, data)
	return h.alloc(&Object{
		kind: KindByteArray,
		size: objectHeader + len(buf),
		data: buf,
	})
}

// AllocString allocates a String object with the given fields. value may be
// null; otherwise the string retains it.
func (h *Heap) AllocString(length int32, value Ref) (Ref, *Fault) {
	if length < 0 {
		integrityf("allocString", "negative length %d", length)
	}
	if !value.IsNull() {
		if obj := h.mustResolve(value, "allocString"); obj.kind != KindByteArray {
			integrityf("allocString", "value %s is a %s, not byte[]", value, obj.kind)
		}
	}
	ref, fault := h.alloc(&Object{
		kind:   KindString,
		size:   objectHeader + stringPayload,
		length: length,
		value:  value,
	})
	if fault == nil {
		h.Retain(value)
	}
	return ref, fault
}

// NewString allocates a byte array and a String over it. The array's only
// reference belongs to the string, so releasing the string frees both.
func (h *Heap) NewString(s string) (Ref, *Fault) {
	arr, fault := h.AllocByteArray([]byte(s))
	if fault != nil {
		return NullRef, fault
	}
	ref, fault := h.AllocString(int32(len(s)), arr)
	h.Release(arr)
	if fault != nil {
		return NullRef, fault
	}
	return ref, nil
}

func (h *Heap) allocFault(f *Fault) (Ref, *Fault) {
	return h.alloc(&Object{
		kind:  KindFault,
		size:  objectHeader + faultPayload,
		fault: f,
	})
}

// SetStringValue replaces a String's value field, retaining the new array
// and releasing the old one. Loaders use it to build partially constructed
// strings; natives never call it.
func (h *Heap) SetStringValue(ref, value Ref) {
	obj := h.mustResolveKind(ref, KindString, "setStringValue")
	if !value.IsNull() {
		h.mustResolveKind(value, KindByteArray, "setStringValue")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !value.IsNull() {
		h.lookup(value, "setStringValue").refs++
	}
	old := obj.value
	obj.value = value
	if !old.IsNull() {
		h.releaseLocked(old, "setStringValue")
	}
}

// ---------------------------------------------------------------------------
// Reference counting
// ---------------------------------------------------------------------------

// Retain increments the reference count of ref. Null is ignored.
func (h *Heap) Retain(ref Ref) {
	if ref.IsNull() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lookup(ref, "retain").refs++
}

// Release decrements the reference count of ref and frees the object when it
// reaches zero. Freeing a string releases its value array. Null is ignored.
func (h *Heap) Release(ref Ref) {
	if ref.IsNull() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseLocked(ref, "release")
}

// releaseLive releases ref unless it is null or no longer names a live
// object. It reports whether a reference was dropped.
func (h *Heap) releaseLive(ref Ref) bool {
	if ref.IsNull() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := ref.index()
	if idx < 0 || idx >= len(h.entries) {
		return false
	}
	if e := h.entries[idx]; e.obj == nil || e.gen != ref.generation() {
		return false
	}
	h.releaseLocked(ref, "release")
	return true
}

// releaseLocked drops one reference; callers hold mu.
func (h *Heap) releaseLocked(ref Ref, op string) {
	for !ref.IsNull() {
		obj := h.lookup(ref, op)
		obj.refs--
		if obj.refs > 0 {
			return
		}
		h.free(ref.index(), obj)

		ref = NullRef
		if obj.kind == KindString {
			ref = obj.value
		}
	}
}

func (h *Heap) free(idx int, obj *Object) {
	h.used -= obj.size
	h.live--
	e := &h.entries[idx]
	e.obj = nil
	if e.gen == maxGeneration {
		// Retired: no later handle can match an old one.
		return
	}
	e.gen++
	h.freeList = append(h.freeList, idx)
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// lookup resolves a non-null handle; callers hold mu.
func (h *Heap) lookup(ref Ref, op string) *Object {
	idx := ref.index()
	if idx < 0 || idx >= len(h.entries) {
		integrityf(op, "unknown handle %s", ref)
	}
	e := h.entries[idx]
	if e.obj == nil || e.gen != ref.generation() {
		integrityf(op, "stale handle %s", ref)
	}
	return e.obj
}

func (h *Heap) mustResolve(ref Ref, op string) *Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookup(ref, op)
}

func (h *Heap) mustResolveKind(ref Ref, kind ObjectKind, op string) *Object {
	if ref.IsNull() {
		integrityf(op, "null %s", kind)
	}
	obj := h.mustResolve(ref, op)
	if obj.kind != kind {
		integrityf(op, "%s is a %s, not %s", ref, obj.kind, kind)
	}
	return obj
}

// Resolve returns the object named by ref. It reports false for null and
// never panics on it; the caller decides which fault to raise.
func (h *Heap) Resolve(ref Ref) (*Object, bool) {
	if ref.IsNull() {
		return nil, false
	}
	return h.mustResolve(ref, "resolve"), true
}

// String resolves ref as a String object.
func (h *Heap) String(ref Ref) (StringView, bool) {
	if ref.IsNull() {
		return StringView{}, false
	}
	obj := h.mustResolveKind(ref, KindString, "string")
	h.mu.Lock()
	defer h.mu.Unlock()
	return StringView{Length: obj.length, Value: obj.value}, true
}

// ByteArray resolves ref as a byte array.
func (h *Heap) ByteArray(ref Ref) (ByteArrayView, bool) {
	if ref.IsNull() {
		return ByteArrayView{}, false
	}
	obj := h.mustResolveKind(ref, KindByteArray, "byteArray")
	return ByteArrayView{Data: obj.data}, true
}

// FaultObject resolves ref as a caught fault.
func (h *Heap) FaultObject(ref Ref) (*Fault, bool) {
	if ref.IsNull() {
		return nil, false
	}
	return h.mustResolveKind(ref, KindFault, "fault").fault, true
}
