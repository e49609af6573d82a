package sched

import (
	"github.com/ogurioguri/cradles-os/kernel/proc"
	ksync "github.com/ogurioguri/cradles-os/kernel/sync"
)

// Manager is a FIFO queue of ready tasks.
type Manager struct {
	ready []*proc.PCB
}

func (m *Manager) add(pcb *proc.PCB) {
	m.ready = append(m.ready, pcb)
}

func (m *Manager) fetch() *proc.PCB {
	if len(m.ready) == 0 {
		return nil
	}
	pcb := m.ready[0]
	m.ready = m.ready[1:]
	return pcb
}

var globalManager = ksync.NewUPCell(Manager{})

// AddTask appends pcb to the ready queue.
func AddTask(pcb *proc.PCB) {
	g := globalManager.Access()
	defer g.Release()
	g.Get().add(pcb)
}

// FetchTask pops and returns the oldest ready task, or nil if the queue
// is empty.
func FetchTask() *proc.PCB {
	g := globalManager.Access()
	defer g.Release()
	return g.Get().fetch()
}
