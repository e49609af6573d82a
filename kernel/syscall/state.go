package syscall

import (
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
)

// arena and kernelMS are bound once at boot, the same process-wide
// singleton-binding idiom kernel/hal uses for its console and timer:
// Dispatch's signature is fixed by trap.Dispatcher (id, args) -> (int64,
// error), so there is no parameter slot for them to travel through on
// every call.
var (
	arena    *pmm.Arena
	kernelMS *memset.MemorySet
)

// Init binds the physical arena and the shared kernel memory set that
// fork and exec need to build a child's (or a replacement) kernel
// stack. Boot code calls this once, after kernel/memset.NewKernel.
func Init(a *pmm.Arena, kms *memset.MemorySet) {
	arena = a
	kernelMS = kms
}
