package vm

import "testing"

func TestHeapAccounting(t *testing.T) {
	h := NewHeap(100)

	if h.Free() != 100 {
		t.Fatalf("free = %d, want 100", h.Free())
	}

	arr, fault := h.AllocByteArray([]byte("hello"))
	if fault != nil {
		t.Fatalf("AllocByteArray: %v", fault)
	}
	if got, want := h.Used(), objectHeader+5; got != want {
		t.Errorf("used = %d, want %d", got, want)
	}

	str, fault := h.AllocString(5, arr)
	if fault != nil {
		t.Fatalf("AllocString: %v", fault)
	}
	if got, want := h.Used(), 2*objectHeader+5+stringPayload; got != want {
		t.Errorf("used = %d, want %d", got, want)
	}
	if h.Live() != 2 {
		t.Errorf("live = %d, want 2", h.Live())
	}

	h.Release(str)
	h.Release(arr)
	if h.Used() != 0 || h.Free() != 100 || h.Live() != 0 {
		t.Errorf("after release: used=%d free=%d live=%d", h.Used(), h.Free(), h.Live())
	}
}

func TestHeapOutOfMemory(t *testing.T) {
	h := NewHeap(objectHeader + 3)

	if _, fault := h.AllocByteArray([]byte("abcd")); fault == nil || fault.Kind != OutOfMemory {
		t.Fatalf("fault = %v, want OutOfMemory", fault)
	}
	if h.Used() != 0 {
		t.Errorf("failed allocation charged %d units", h.Used())
	}
	if _, fault := h.AllocByteArray([]byte("abc")); fault != nil {
		t.Errorf("exact fit failed: %v", fault)
	}
}

func TestHeapNewStringRollsBackOnFailure(t *testing.T) {
	// Room for the byte array but not the string object.
	h := NewHeap(objectHeader + 5 + objectHeader)

	if _, fault := h.NewString("hello"); fault == nil || fault.Kind != OutOfMemory {
		t.Fatalf("fault = %v, want OutOfMemory", fault)
	}
	if h.Used() != 0 || h.Live() != 0 {
		t.Errorf("partial string leaked: used=%d live=%d", h.Used(), h.Live())
	}
}

func TestHeapRetainRelease(t *testing.T) {
	h := NewHeap(64)
	ref, _ := h.AllocByteArray([]byte("x"))

	h.Retain(ref)
	h.Release(ref)
	if _, ok := h.Resolve(ref); !ok {
		t.Fatal("object freed while still retained")
	}

	h.Release(ref)
	if h.Live() != 0 {
		t.Errorf("live = %d, want 0", h.Live())
	}

	// Null is ignored
	h.Retain(NullRef)
	h.Release(NullRef)
}

func TestHeapReleaseStringFreesValue(t *testing.T) {
	h := NewHeap(100)
	ref, fault := h.NewString("hello")
	if fault != nil {
		t.Fatal(fault)
	}
	if h.Live() != 2 {
		t.Fatalf("live = %d, want 2", h.Live())
	}

	h.Release(ref)
	if h.Used() != 0 || h.Live() != 0 {
		t.Errorf("after release: used=%d live=%d", h.Used(), h.Live())
	}
}

func TestHeapSharedValueOutlivesString(t *testing.T) {
	h := NewHeap(100)
	arr, _ := h.AllocByteArray([]byte("abc"))
	str, _ := h.AllocString(3, arr)

	h.Release(str)
	view, ok := h.ByteArray(arr)
	if !ok || string(view.Data) != "abc" {
		t.Fatalf("array freed while caller still holds it: %q", view.Data)
	}
	h.Release(arr)
	if h.Live() != 0 {
		t.Errorf("live = %d, want 0", h.Live())
	}
}

func TestHeapSetStringValueSwapsReferences(t *testing.T) {
	h := NewHeap(100)
	ref, _ := h.NewString("old")
	sv, _ := h.String(ref)
	oldArr := sv.Value

	newArr, _ := h.AllocByteArray([]byte("new"))
	h.SetStringValue(ref, newArr)
	h.Release(newArr)

	expectIntegrity(t, func() { h.ByteArray(oldArr) })
	sv, _ = h.String(ref)
	if view, _ := h.ByteArray(sv.Value); string(view.Data) != "new" {
		t.Errorf("value = %q, want new", view.Data)
	}

	h.Release(ref)
	if h.Live() != 0 {
		t.Errorf("live = %d, want 0", h.Live())
	}
}

func TestHeapStaleHandle(t *testing.T) {
	h := NewHeap(64)
	old, _ := h.AllocByteArray([]byte("a"))
	h.Release(old)

	// The entry is reused with a new generation.
	fresh, _ := h.AllocByteArray([]byte("b"))
	if fresh.index() != old.index() {
		t.Fatalf("entry not reused: old=%s fresh=%s", old, fresh)
	}
	if fresh == old {
		t.Fatal("reused entry kept the same handle")
	}

	expectIntegrity(t, func() { h.Resolve(old) })
	expectIntegrity(t, func() { h.Release(old) })
	expectIntegrity(t, func() { h.Resolve(makeRef(99, 0)) })
}

func TestHeapStaleHandleAfterManyReuses(t *testing.T) {
	h := NewHeap(64)
	stale, _ := h.AllocByteArray([]byte("old"))
	h.Release(stale)

	seen := map[Ref]bool{stale: true}
	for i := 0; i < 300; i++ {
		ref, _ := h.AllocByteArray([]byte("x"))
		if seen[ref] {
			t.Fatalf("cycle %d: handle %s issued twice", i, ref)
		}
		seen[ref] = true
		h.Release(ref)
	}

	fresh, _ := h.AllocByteArray([]byte("new"))
	if fresh.index() != stale.index() {
		t.Fatalf("entry not reused: stale=%s fresh=%s", stale, fresh)
	}
	expectIntegrity(t, func() { h.ByteArray(stale) })
}

func TestHeapRetiresExhaustedEntry(t *testing.T) {
	h := NewHeap(64)
	first, _ := h.AllocByteArray([]byte("a"))
	h.Release(first)
	h.entries[first.index()].gen = maxGeneration

	last, _ := h.AllocByteArray([]byte("b"))
	if last.index() != first.index() || last.generation() != maxGeneration {
		t.Fatalf("last = %s, want entry %d at final generation", last, first.index())
	}
	h.Release(last)

	next, _ := h.AllocByteArray([]byte("c"))
	if next.index() == last.index() {
		t.Fatalf("retired entry reused: %s", next)
	}
	expectIntegrity(t, func() { h.Resolve(last) })
	expectIntegrity(t, func() { h.Resolve(first) })
}

func TestHeapResolveNull(t *testing.T) {
	h := NewHeap(64)

	if _, ok := h.Resolve(NullRef); ok {
		t.Error("Resolve(null) reported an object")
	}
	if _, ok := h.String(NullRef); ok {
		t.Error("String(null) reported an object")
	}
	if _, ok := h.ByteArray(NullRef); ok {
		t.Error("ByteArray(null) reported an object")
	}
}

func TestHeapViewKindMismatch(t *testing.T) {
	h := NewHeap(64)
	arr, _ := h.AllocByteArray([]byte("abc"))
	str, _ := h.AllocString(3, arr)

	expectIntegrity(t, func() { h.String(arr) })
	expectIntegrity(t, func() { h.ByteArray(str) })
	expectIntegrity(t, func() { h.AllocString(3, str) })
	expectIntegrity(t, func() { h.AllocString(-1, arr) })
}

func TestHeapStringView(t *testing.T) {
	h := NewHeap(64)
	ref, fault := h.NewString("tea")
	if fault != nil {
		t.Fatal(fault)
	}

	sv, ok := h.String(ref)
	if !ok {
		t.Fatal("String reported null")
	}
	if sv.Length != 3 {
		t.Errorf("length = %d, want 3", sv.Length)
	}
	arr, ok := h.ByteArray(sv.Value)
	if !ok || string(arr.Data) != "tea" {
		t.Errorf("value = %q, want tea", arr.Data)
	}

	h.SetStringValue(ref, NullRef)
	if sv, _ := h.String(ref); !sv.Value.IsNull() {
		t.Errorf("value after SetStringValue(null) = %s", sv.Value)
	}
}

func TestHeapAllocCopiesData(t *testing.T) {
	h := NewHeap(64)
	src := []byte("abc")
	ref, _ := h.AllocByteArray(src)
	src[0] = 'z'

	arr, _ := h.ByteArray(ref)
	if string(arr.Data) != "abc" {
		t.Errorf("byte array aliases caller buffer: %q", arr.Data)
	}
}
