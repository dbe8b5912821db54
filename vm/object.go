package vm

// ObjectKind is the fixed layout of a heap object.
type ObjectKind uint8

const (
	KindByteArray ObjectKind = iota + 1
	KindString
	KindFault
)

func (k ObjectKind) String() string {
	switch k {
	case KindByteArray:
		return "byte[]"
	case KindString:
		return "String"
	case KindFault:
		return "Fault"
	default:
		return "?"
	}
}

// Header and payload sizes in heap units.
const (
	objectHeader  = 8
	stringPayload = 8 // length (4) + value ref (4)
	faultPayload  = 4
)

// Object is a heap-resident value. Only the heap creates or mutates objects;
// everything else reads them through views.
type Object struct {
	kind ObjectKind
	refs int32 // reference count; freed at zero
	size int   // units charged against the heap

	// KindString
	length int32
	value  Ref

	// KindByteArray
	data []byte

	// KindFault
	fault *Fault
}

// Kind returns the object's layout.
func (o *Object) Kind() ObjectKind {
	return o.kind
}

// Size returns the number of heap units the object occupies.
func (o *Object) Size() int {
	return o.size
}

// StringView is a read-only view of a String object's fields.
type StringView struct {
	Length int32 // byte count
	Value  Ref   // byte array holding the characters; may be null
}

// ByteArrayView borrows a byte array's storage for the duration of a call.
// Callers must not retain Data.
type ByteArrayView struct {
	Data []byte
}

// Len returns the array length.
func (b ByteArrayView) Len() int {
	return len(b.Data)
}
