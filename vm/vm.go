package vm

import (
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// VM: The Kettle Virtual Machine
// ---------------------------------------------------------------------------

// Config sizes a VM and picks its host collaborators.
type Config struct {
	HeapCapacity int         // heap units
	MaxStack     int         // operand stack slots per thread
	Policy       WritePolicy // short-write handling for natives
	IO           HostIO      // nil selects StdIO
}

// DefaultConfig returns the settings used when no kettle.toml is present.
func DefaultConfig() Config {
	return Config{
		HeapCapacity: 4096,
		MaxStack:     64,
		Policy:       WriteBestEffort,
	}
}

// VM holds the state shared by all threads: the heap, the native table and
// the host I/O surface.
type VM struct {
	ID       uuid.UUID
	Heap     *Heap
	Natives  *NativeTable
	IO       HostIO
	Policy   WritePolicy
	MaxStack int

	// Trace logs every executed instruction at debug level.
	Trace bool
}

// New creates a VM with the Kettle natives registered.
func New(cfg Config) *VM {
	def := DefaultConfig()
	if cfg.HeapCapacity <= 0 {
		cfg.HeapCapacity = def.HeapCapacity
	}
	if cfg.MaxStack <= 0 {
		cfg.MaxStack = def.MaxStack
	}
	if cfg.IO == nil {
		cfg.IO = NewStdIO()
	}

	vm := &VM{
		ID:       uuid.New(),
		Heap:     NewHeap(cfg.HeapCapacity),
		Natives:  NewNativeTable(),
		IO:       cfg.IO,
		Policy:   cfg.Policy,
		MaxStack: cfg.MaxStack,
	}
	RegisterKettleNatives(vm.Natives)
	vmLog.Debugf("vm %s: heap=%d stack=%d policy=%s", vm.ID, cfg.HeapCapacity, cfg.MaxStack, cfg.Policy)
	return vm
}

// NewThread creates a thread with its own operand stack.
func (vm *VM) NewThread() *Thread {
	stack := NewOperandStack(vm.MaxStack)
	return &Thread{
		vm:    vm,
		stack: stack,
		ctx:   NewContext(vm.Heap, stack, vm.IO, vm.Policy),
	}
}

// Run executes entry on a fresh thread.
func (vm *VM) Run(p *Program, entry string) (Slot, error) {
	return vm.NewThread().Run(p, entry)
}
