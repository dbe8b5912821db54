package vm

// Signatures of the javax/kettle/Kettle natives.
const (
	SigPrint      = "javax/kettle/Kettle.print(Ljava/lang/String;)V"
	SigGetMemFree = "javax/kettle/Kettle.getMemFree()I"
)

// RegisterKettleNatives installs the javax/kettle/Kettle routines.
func RegisterKettleNatives(t *NativeTable) {
	t.MustRegister(SigPrint, nativePrint)
	t.MustRegister(SigGetMemFree, nativeGetMemFree)
}

// void javax.kettle.Kettle.print(String)
//
// Writes string.length bytes of the string's byte array to stdout. The
// recorded length is trusted; the array is only sliced to its own size so a
// bad length cannot read past the arena.
func nativePrint(ctx *Context) *Fault {
	str, ok := ctx.Heap.String(ctx.Stack.PopRef())
	if !ok {
		return ctx.Raise(NullReference, "string is null")
	}

	arr, ok := ctx.Heap.ByteArray(str.Value)
	if !ok {
		return ctx.Raise(NullReference, "string value is null")
	}

	n := int(str.Length)
	if n > arr.Len() {
		n = arr.Len()
	}
	if n > 0 {
		ctx.Write(ChannelStdout, arr.Data[:n])
	}
	return nil
}

// int javax.kettle.Kettle.getMemFree()
func nativeGetMemFree(ctx *Context) *Fault {
	ctx.Stack.PushInt(ctx.Heap.free32())
	return nil
}
