package syscall

import "sync"

// apps is the process-wide table sys_exec looks programs up in by name.
// The original loader module that built this table at link time from
// embedded app images didn't survive retrieval; RegisterApp lets boot
// code (or a test) populate the same lookup explicitly instead.
var (
	appsMu sync.Mutex
	apps   = map[string][]byte{}
)

// RegisterApp makes data available to sys_exec under name.
func RegisterApp(name string, data []byte) {
	appsMu.Lock()
	defer appsMu.Unlock()
	apps[name] = data
}

// lookupApp returns the registered bytes for name, if any.
func lookupApp(name string) ([]byte, bool) {
	appsMu.Lock()
	defer appsMu.Unlock()
	data, ok := apps[name]
	return data, ok
}
