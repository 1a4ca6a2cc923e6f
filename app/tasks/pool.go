package tasks

import (
	"sync"
)

// admissionPool is a fixed arena of worker slots. A source occupies at
// most one slot at a time.
type admissionPool struct {
	mu    sync.Mutex
	slots []string
	busy  map[string]int
}

func newAdmissionPool(size int) *admissionPool {
	return &admissionPool{
		slots: make([]string, size),
		busy:  make(map[string]int, size),
	}
}

// admit reserves a free slot for sourceID. It fails when every slot is
// taken or the source already holds one.
func (p *admissionPool) admit(sourceID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.busy[sourceID]; ok {
		return -1, false
	}

	for i, holder := range p.slots {
		if holder == "" {
			p.slots[i] = sourceID
			p.busy[sourceID] = i
			return i, true
		}
	}
	return -1, false
}

func (p *admissionPool) release(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= len(p.slots) {
		return
	}
	delete(p.busy, p.slots[slot])
	p.slots[slot] = ""
}

func (p *admissionPool) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.busy)
}

func (p *admissionPool) size() int {
	return len(p.slots)
}
