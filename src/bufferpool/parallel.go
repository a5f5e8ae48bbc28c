package bufferpool

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/relstore/relstore/src/pkg/common"
)

// ParallelManager stripes pages over several instances so unrelated
// requests stop contending on one latch. Page p is owned by instance
// p mod numInstances, which matches the ids each instance allocates.
type ParallelManager struct {
	instances []*Manager
	next      atomic.Uint64
}

var _ BufferPool = &ParallelManager{}

func NewParallel(numInstances uint32, poolSize uint64, disk DiskManager) *ParallelManager {
	instances := make([]*Manager, numInstances)
	for i := range instances {
		instances[i] = NewInstance(poolSize, numInstances, uint32(i), NewLRUReplacer(), disk)
	}

	return &ParallelManager{instances: instances}
}

func (p *ParallelManager) instanceFor(pageID common.PageID) *Manager {
	return p.instances[uint64(pageID)%uint64(len(p.instances))]
}

// NewPage probes each instance once, starting after the previously
// chosen one so allocation spreads evenly.
func (p *ParallelManager) NewPage() (*Frame, error) {
	start := p.next.Add(1)

	for i := range p.instances {
		idx := (start + uint64(i)) % uint64(len(p.instances))

		frame, err := p.instances[idx].NewPage()
		if err == nil {
			return frame, nil
		}
	}

	return nil, ErrBufferPoolExhausted
}

func (p *ParallelManager) FetchPage(pageID common.PageID) (*Frame, error) {
	return p.instanceFor(pageID).FetchPage(pageID)
}

func (p *ParallelManager) UnpinPage(pageID common.PageID, isDirty bool) bool {
	return p.instanceFor(pageID).UnpinPage(pageID, isDirty)
}

func (p *ParallelManager) FlushPage(pageID common.PageID) error {
	return p.instanceFor(pageID).FlushPage(pageID)
}

func (p *ParallelManager) FlushAllPages() error {
	var g errgroup.Group

	for _, instance := range p.instances {
		g.Go(instance.FlushAllPages)
	}

	return g.Wait()
}

func (p *ParallelManager) DeletePage(pageID common.PageID) (bool, error) {
	return p.instanceFor(pageID).DeletePage(pageID)
}
