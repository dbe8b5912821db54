package image

import (
	"path/filepath"
	"testing"

	"github.com/chazu/kettle/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloImage() *Image {
	b := NewBuilder("hello").Entry("main")
	b.Method("main", 2).
		LdcString("hello, kettle\n").
		InvokeNative(vm.SigPrint).
		InvokeNative(vm.SigGetMemFree).
		IReturn()
	return b.Build()
}

func TestEncodeDecode(t *testing.T) {
	img := helloImage()

	data, err := Encode(img)
	require.NoError(t, err)

	again, err := Encode(img)
	require.NoError(t, err)
	assert.Equal(t, data, again, "canonical encoding should be deterministic")

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, img, decoded)
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	img := helloImage()
	img.Magic = "NOPE"
	data, err := Encode(img)
	require.NoError(t, err)
	_, err = Decode(data)
	assert.ErrorContains(t, err, "bad magic")

	img = helloImage()
	img.Version = Version + 1
	data, err = Encode(img)
	require.NoError(t, err)
	_, err = Decode(data)
	assert.ErrorContains(t, err, "unsupported version")

	_, err = Decode([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestReadWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.kti")
	require.NoError(t, WriteFile(path, helloImage()))

	img, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", img.Name)
	assert.Equal(t, []string{vm.SigPrint, vm.SigGetMemFree}, img.Natives)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.kti"))
	assert.Error(t, err)
}

func TestBuilderDeduplicates(t *testing.T) {
	b := NewBuilder("dup")
	b.Method("main", 1).
		LdcString("a").InvokeNative(vm.SigPrint).
		LdcString("a").InvokeNative(vm.SigPrint).
		Return()
	img := b.Build()

	assert.Equal(t, []string{"a"}, img.Strings)
	assert.Equal(t, []string{vm.SigPrint}, img.Natives)
}

func TestBuilderForwardGoto(t *testing.T) {
	b := NewBuilder("jump")
	mb := b.Method("main", 1)
	j := mb.Goto()
	mb.IConst(1).IReturn()
	mb.PatchHere(j).IConst(2).IReturn()

	p, err := Link(b.Build(), newTable())
	require.NoError(t, err)

	machine := vm.New(vm.Config{IO: vm.NewBufferIO()})
	result, err := machine.Run(p, "main")
	require.NoError(t, err)
	assert.Equal(t, vm.IntSlot(2), result)
}
