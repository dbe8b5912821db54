package transcript

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/kettle/vm"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRecorder(t *testing.T, next vm.HostIO) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "sub", "transcript.db"), uuid.New(), next)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

type brokenIO struct{}

func (brokenIO) WriteBytes(channel int, buf []byte) (int, error) {
	return 2, errors.New("pipe closed")
}

func TestRecorderForwardsAndRecords(t *testing.T) {
	host := vm.NewBufferIO()
	r := openTestRecorder(t, host)

	n, err := r.WriteBytes(vm.ChannelStdout, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, err = r.WriteBytes(vm.ChannelStderr, []byte("oops"))
	require.NoError(t, err)

	assert.Equal(t, "hello", host.String(vm.ChannelStdout))

	entries, err := r.Entries(r.Session())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, vm.ChannelStdout, entries[0].Channel)
	assert.Equal(t, 5, entries[0].Requested)
	assert.Equal(t, 5, entries[0].Written)
	assert.Equal(t, []byte("hello"), entries[0].Data)
	assert.Equal(t, r.Session(), entries[0].Session)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	assert.Equal(t, vm.ChannelStderr, entries[1].Channel)

	out, err := r.Output(r.Session(), vm.ChannelStdout)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestRecorderShortWrite(t *testing.T) {
	host := vm.NewBufferIO()
	host.MaxChunk = 3
	r := openTestRecorder(t, host)

	n, err := r.WriteBytes(vm.ChannelStdout, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := r.Entries(r.Session())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Requested)
	assert.Equal(t, 3, entries[0].Written)
	assert.Equal(t, []byte("hel"), entries[0].Data)
}

func TestRecorderHostError(t *testing.T) {
	r := openTestRecorder(t, brokenIO{})

	n, err := r.WriteBytes(vm.ChannelStdout, []byte("hello"))
	assert.Equal(t, 2, n)
	assert.EqualError(t, err, "pipe closed")

	entries, err := r.Entries(r.Session())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pipe closed", entries[0].Error)
	assert.Equal(t, []byte("he"), entries[0].Data)
}

func TestRecorderSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	host := vm.NewBufferIO()

	first, err := Open(path, uuid.New(), host)
	require.NoError(t, err)
	_, _ = first.WriteBytes(vm.ChannelStdout, []byte("one"))
	require.NoError(t, first.Close())

	second, err := Open(path, uuid.New(), host)
	require.NoError(t, err)
	defer second.Close()
	_, _ = second.WriteBytes(vm.ChannelStdout, []byte("two"))

	sessions, err := second.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.Session(), second.Session()}, sessions)

	out, err := second.Output(first.Session(), vm.ChannelStdout)
	require.NoError(t, err)
	assert.Equal(t, "one", string(out))
}

func TestRecorderClosed(t *testing.T) {
	host := vm.NewBufferIO()
	r := openTestRecorder(t, host)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	n, err := r.WriteBytes(vm.ChannelStdout, []byte("late"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "late", host.String(vm.ChannelStdout))

	_, err = r.Entries(r.Session())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecorderUnderVM(t *testing.T) {
	host := vm.NewBufferIO()
	r := openTestRecorder(t, host)
	machine := vm.New(vm.Config{HeapCapacity: 256, IO: r})

	hello := &vm.Method{Name: "main", MaxStack: 2}
	idx, err := machine.Natives.Lookup(vm.SigPrint)
	require.NoError(t, err)
	hello.Code = append(hello.Code, byte(vm.OpLdcStr))
	hello.Code = vm.AppendUint16(hello.Code, 0)
	hello.Code = append(hello.Code, byte(vm.OpInvokeNative))
	hello.Code = vm.AppendUint16(hello.Code, uint16(idx))
	hello.Code = append(hello.Code, byte(vm.OpReturn))

	_, err = machine.Run(&vm.Program{Name: "t", Strings: []string{"hi"}, Methods: []*vm.Method{hello}}, "main")
	require.NoError(t, err)

	out, err := r.Output(r.Session(), vm.ChannelStdout)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(out))
	assert.Equal(t, "hi", host.String(vm.ChannelStdout))
}
