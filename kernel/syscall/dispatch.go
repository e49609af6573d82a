package syscall

import "fmt"

// Dispatch decodes id and args the way trap_handler's match on a7 does,
// and calls the matching sys_* implementation. kernel/trap.Handler calls
// it as its Dispatcher callback rather than importing this package
// directly, since this package imports kernel/trap to rewrite a task's
// TrapContext on fork and exec. Unknown syscall numbers are a fatal
// kernel bug, not a recoverable per-task error, matching the original's
// panic! on an unsupported id.
func Dispatch(id uint64, args [3]uint64) (int64, error) {
	switch id {
	case SysRead:
		return sysRead(args[0], args[1], args[2]), nil
	case SysWrite:
		return sysWrite(args[0], args[1], args[2]), nil
	case SysExit:
		return sysExit(int32(args[0]))
	case SysYield:
		return sysYield(), nil
	case SysGetTime:
		return sysGetTime(), nil
	case SysGetPID:
		return sysGetPID(), nil
	case SysSbrk:
		return sysSbrk(int32(args[0])), nil
	case SysFork:
		return sysFork(), nil
	case SysExec:
		return sysExec(args[0]), nil
	case SysWaitpid:
		return sysWaitpid(int32(args[0]), args[1]), nil
	default:
		panic(fmt.Sprintf("syscall: unsupported syscall id %d", id))
	}
}
