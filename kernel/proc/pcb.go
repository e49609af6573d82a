package proc

import (
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	ksync "github.com/ogurioguri/cradles-os/kernel/sync"
)

// Status is a task's scheduling state.
type Status int

const (
	Ready Status = iota
	Running
	Zombie
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	default:
		return fmt.Sprintf("proc.Status(%d)", int(s))
	}
}

// Inner holds everything about a process that changes over its
// lifetime. It lives behind a PCB's UPCell so callers borrow it
// exclusively and explicitly, the same discipline the rest of this
// kernel's globals use.
type Inner struct {
	MemorySet      *memset.MemorySet
	TrapContextPPN mem.PhysPageNum
	BaseSize       uint64
	ProgramBrk     uint64
	HeapBottom     uint64
	TaskCx         TaskContext
	Status         Status
	ExitCode       int32

	// Parent is a plain, non-owning pointer — Go has no weak references,
	// so the back-reference from child to parent is never itself the
	// thing keeping the parent alive. Children is the owning direction:
	// a parent's Children slice is what keeps a child reachable until
	// it is reaped.
	Parent   *PCB
	Children []*PCB
}

// PCB is a process control block: an immutable identity (PID, kernel
// stack) plus a mutable Inner guarded by exclusive access.
type PCB struct {
	pid    PIDHandle
	kstack *KernelStack
	inner  *ksync.UPCell[Inner]
}

// Access borrows the process's mutable state exclusively. The returned
// guard must be released before anything else (including this same
// goroutine, reentrantly) may access it again.
func (p *PCB) Access() *ksync.Guard[Inner] { return p.inner.Access() }

// PID returns the process's identifier.
func (p *PCB) PID() PID { return p.pid.PID() }

// KernelStackTop returns the kernel virtual address one past the top of
// the process's kernel stack, the KernelSP a rewritten TrapContext needs
// on exec.
func (p *PCB) KernelStackTop() uint64 { return p.kstack.Top() }

// NewPCB builds a process from a parsed ELF image: a fresh memory set,
// a PID-indexed kernel stack in kernelMS, and an Inner seeded with the
// image's initial break. trapReturnAddr is the trampoline-relative
// kernel virtual address of trap_return, computed once by the trap
// subsystem and threaded in here rather than imported, so this package
// never needs to know the trampoline's internal layout. It returns the
// new PCB along with the entry point and initial user stack pointer,
// which the caller uses to populate the process's TrapContext page (a
// layout this package doesn't know about either).
func NewPCB(arena *pmm.Arena, kernelMS *memset.MemorySet, elfData []byte, trapReturnAddr uint64) (pcb *PCB, entry, userSP uint64) {
	ms, sp, entryPoint := memset.FromELF(arena, elfData)
	trapContextPPN := mustTrapContextPPN(ms)

	pid := AllocPID()
	kstack := NewKernelStack(pid.PID(), kernelMS)

	pcb = &PCB{
		pid:    pid,
		kstack: kstack,
		inner: ksync.NewUPCell(Inner{
			MemorySet:      ms,
			TrapContextPPN: trapContextPPN,
			BaseSize:       sp,
			ProgramBrk:     sp,
			HeapBottom:     sp,
			TaskCx:         GotoTrapReturn(kstack.Top(), trapReturnAddr),
			Status:         Ready,
		}),
	}
	return pcb, entryPoint, sp
}

// Fork clones the calling process's address space into a brand new
// process with its own PID and kernel stack, per from_existing_user
// semantics: the two memory sets are independent from the moment this
// returns. The caller is responsible for wiring up the child's
// relationship to the parent (AddChild) and for zeroing the child's a0
// in its TrapContext (fork returns 0 to the child), since this package
// doesn't own the TrapContext layout.
func (p *PCB) Fork(arena *pmm.Arena, kernelMS *memset.MemorySet, trapReturnAddr uint64) *PCB {
	g := p.Access()
	parentMS := g.Get().MemorySet
	baseSize := g.Get().BaseSize
	g.Release()

	childMS := memset.FromExistingUser(arena, parentMS)
	trapContextPPN := mustTrapContextPPN(childMS)

	pid := AllocPID()
	kstack := NewKernelStack(pid.PID(), kernelMS)

	return &PCB{
		pid:    pid,
		kstack: kstack,
		inner: ksync.NewUPCell(Inner{
			MemorySet:      childMS,
			TrapContextPPN: trapContextPPN,
			BaseSize:       baseSize,
			ProgramBrk:     baseSize,
			HeapBottom:     baseSize,
			TaskCx:         GotoTrapReturn(kstack.Top(), trapReturnAddr),
			Status:         Ready,
		}),
	}
}

// Exec replaces the process's memory set in place from a new ELF image,
// keeping its PID and kernel stack. It returns the new entry point and
// user stack pointer for the caller to rewrite the TrapContext with. The
// outgoing memory set is destroyed here — Go has no Drop to do it for
// us, and leaving it for the garbage collector would leak its frames
// back to pmm without ever releasing them.
func (p *PCB) Exec(arena *pmm.Arena, elfData []byte) (entry, userSP uint64) {
	ms, sp, entryPoint := memset.FromELF(arena, elfData)
	trapContextPPN := mustTrapContextPPN(ms)

	g := p.Access()
	oldMS := g.Get().MemorySet
	g.Get().MemorySet = ms
	g.Get().TrapContextPPN = trapContextPPN
	g.Get().BaseSize = sp
	g.Get().ProgramBrk = sp
	g.Get().HeapBottom = sp
	g.Release()

	oldMS.Destroy()

	return entryPoint, sp
}

// AddChild records child as one of p's children and points child back
// at p. Both halves of the relationship are set here so callers can't
// accidentally create a one-directional link.
func (p *PCB) AddChild(child *PCB) {
	g := p.Access()
	g.Get().Children = append(g.Get().Children, child)
	g.Release()

	cg := child.Access()
	cg.Get().Parent = p
	cg.Release()
}

// Release tears a reaped process down completely: its memory set
// (frames and page table), its kernel stack, and its PID. Callers must
// only call this once a parent has collected the process via waitpid —
// Go has no destructor to do this on drop, so it must be explicit,
// unlike the original's Drop impls on PidHandle and KernelStack.
func (p *PCB) Release() {
	g := p.Access()
	ms := g.Get().MemorySet
	g.Get().MemorySet = nil
	g.Release()

	if ms != nil {
		ms.Destroy()
	}
	p.kstack.Release()
	p.pid.Release()
}

func mustTrapContextPPN(ms *memset.MemorySet) mem.PhysPageNum {
	vpn := mem.NewVirtAddr(config.TrapContext).ToVirtPageNum()
	pte, ok := ms.Translate(vpn)
	if !ok {
		panic("proc: trap context page missing from a freshly built memory set")
	}
	return pte.PPN()
}
