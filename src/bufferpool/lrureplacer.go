package bufferpool

import (
	"container/list"
	"errors"
	"sync"

	"github.com/relstore/relstore/src/pkg/common"
)

var ErrNoVictim = errors.New("no victim available")

// Replacer picks eviction victims among unpinned frames.
type Replacer interface {
	Pin(frameID common.FrameID)
	Unpin(frameID common.FrameID)
	ChooseVictim() (common.FrameID, error)
	GetSize() uint64
}

// LRUReplacer evicts the least-recently-unpinned frame.
type LRUReplacer struct {
	mu     sync.Mutex
	lru    *list.List
	frames map[common.FrameID]*list.Element
}

var _ Replacer = &LRUReplacer{}

func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{
		lru:    list.New(),
		frames: make(map[common.FrameID]*list.Element),
	}
}

func (l *LRUReplacer) Pin(frameID common.FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.frames[frameID]; ok {
		l.lru.Remove(elem)
		delete(l.frames, frameID)
	}
}

// Unpin makes the frame a candidate, refreshing it as the
// most-recently-unpinned one.
func (l *LRUReplacer) Unpin(frameID common.FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.frames[frameID]; ok {
		l.lru.MoveToFront(elem)
		return
	}

	l.frames[frameID] = l.lru.PushFront(frameID)
}

func (l *LRUReplacer) ChooseVictim() (common.FrameID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem := l.lru.Back()
	if elem == nil {
		return 0, ErrNoVictim
	}

	frameID := elem.Value.(common.FrameID)

	l.lru.Remove(elem)
	delete(l.frames, frameID)

	return frameID, nil
}

func (l *LRUReplacer) GetSize() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return uint64(len(l.frames))
}
