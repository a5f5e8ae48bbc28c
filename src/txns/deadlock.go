package txns

import (
	"slices"
	"time"

	"github.com/relstore/relstore/src/pkg/common"
)

type visitState int

const (
	notVisited visitState = iota
	inStack
	visited
)

// AddEdge records that t1 waits for t2. Adjacency lists stay sorted by
// ascending txn id so detection is deterministic.
func (lm *LockManager) AddEdge(t1, t2 common.TxnID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.addEdgeLocked(t1, t2)
}

func (lm *LockManager) addEdgeLocked(t1, t2 common.TxnID) {
	neighbors := lm.waitsFor[t1]

	idx, found := slices.BinarySearch(neighbors, t2)
	if found {
		return
	}

	lm.waitsFor[t1] = slices.Insert(neighbors, idx, t2)
}

func (lm *LockManager) RemoveEdge(t1, t2 common.TxnID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	neighbors := lm.waitsFor[t1]

	idx, found := slices.BinarySearch(neighbors, t2)
	if !found {
		return
	}

	lm.waitsFor[t1] = slices.Delete(neighbors, idx, idx+1)
}

// GetEdgeList returns every edge of the waits-for graph, sorted.
func (lm *LockManager) GetEdgeList() [][2]common.TxnID {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	vertices := make([]common.TxnID, 0, len(lm.waitsFor))
	for v := range lm.waitsFor {
		vertices = append(vertices, v)
	}
	slices.Sort(vertices)

	var edges [][2]common.TxnID
	for _, from := range vertices {
		for _, to := range lm.waitsFor[from] {
			edges = append(edges, [2]common.TxnID{from, to})
		}
	}

	return edges
}

// HasCycle reports whether the waits-for graph has a cycle, writing the
// youngest (largest-id) transaction on the found cycle into victim.
func (lm *LockManager) HasCycle(victim *common.TxnID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	return lm.hasCycleLocked(victim)
}

func (lm *LockManager) hasCycleLocked(victim *common.TxnID) bool {
	states := make(map[common.TxnID]visitState, len(lm.waitsFor))

	vertices := make([]common.TxnID, 0, len(lm.waitsFor))
	for v := range lm.waitsFor {
		vertices = append(vertices, v)
	}
	slices.Sort(vertices)

	// Repeated DFS, oldest roots first.
	for _, v := range vertices {
		if states[v] != notVisited {
			continue
		}

		var stack []common.TxnID
		if lm.processDFSTree(v, &stack, states, victim) {
			return true
		}
	}

	return false
}

func (lm *LockManager) processDFSTree(
	v common.TxnID,
	stack *[]common.TxnID,
	states map[common.TxnID]visitState,
	victim *common.TxnID,
) bool {
	states[v] = inStack
	*stack = append(*stack, v)

	for _, next := range lm.waitsFor[v] {
		switch states[next] {
		case notVisited:
			if lm.processDFSTree(next, stack, states, victim) {
				return true
			}
		case inStack:
			*victim = youngestInCycle(*stack, next)
			return true
		case visited:
		}
	}

	states[v] = visited
	*stack = (*stack)[:len(*stack)-1]

	return false
}

// youngestInCycle walks the DFS stack from the closing edge's target up
// to the top and takes the maximum id.
func youngestInCycle(stack []common.TxnID, entry common.TxnID) common.TxnID {
	youngest := entry
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] > youngest {
			youngest = stack[i]
		}
		if stack[i] == entry {
			break
		}
	}

	return youngest
}

// buildWaitsForGraphLocked rebuilds the graph from the current queues:
// each ungranted request waits for every granted request on the same
// queue. Caller holds the manager latch.
func (lm *LockManager) buildWaitsForGraphLocked() {
	lm.waitsFor = make(map[common.TxnID][]common.TxnID)

	for _, q := range lm.lockTable {
		q.mu.Lock()
		for _, waiter := range q.requests {
			if waiter.granted {
				continue
			}
			for _, holder := range q.requests {
				if holder.granted && holder.txnID != waiter.txnID {
					lm.addEdgeLocked(waiter.txnID, holder.txnID)
				}
			}
		}
		q.mu.Unlock()
	}
}

func (lm *LockManager) runCycleDetection() {
	defer lm.wg.Done()

	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-lm.done:
			return
		case <-ticker.C:
			lm.detectOnce()
		}
	}
}

// detectOnce rebuilds the graph and aborts victims until it is acyclic.
func (lm *LockManager) detectOnce() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.buildWaitsForGraphLocked()

	var victim common.TxnID
	for lm.hasCycleLocked(&victim) {
		lm.log.Infof(
			"deadlock detected, aborting youngest transaction %d: %s",
			victim, AbortReasonDeadlock,
		)
		lm.abortVictimLocked(victim)
		lm.buildWaitsForGraphLocked()
	}
}

// abortVictimLocked marks the victim aborted before touching its queue
// entries; waiters that wake on the broadcasts observe the aborted
// state and clean up. Caller holds the manager latch.
func (lm *LockManager) abortVictimLocked(id common.TxnID) {
	if lm.registry != nil {
		if txn := lm.registry.GetTransaction(id); txn != nil {
			txn.SetState(TxnAborted)
		}
	}

	for _, q := range lm.lockTable {
		q.mu.Lock()
		if q.remove(id) {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}
}
