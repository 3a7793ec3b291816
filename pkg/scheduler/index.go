// pkg/scheduler/index.go
package scheduler

import (
	"github.com/dhconnelly/rtreego"

	"github.com/opd-ai/go-lakefleet/pkg/vessel"
)

const (
	// indexPadding grows every box so that touching footprints still overlap
	// in the tree and rounding at the edges never prunes a real crossing.
	indexPadding = 1e-6

	indexMinChildren = 4
	indexMaxChildren = 16
)

// indexEntry places an agent's swept footprint in the r-tree. The footprint
// never changes over the agent's lifetime, so the box is computed once.
type indexEntry struct {
	agent *vessel.Agent
	rect  rtreego.Rect
}

// Bounds implements rtreego.Spatial
func (e *indexEntry) Bounds() rtreego.Rect {
	return e.rect
}

func newIndexEntry(a *vessel.Agent) *indexEntry {
	b := a.SweptBounds().Expand(indexPadding)
	// The padding keeps both lengths positive, which NewRect requires.
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min.X, b.Min.Y}, []float64{b.Width(), b.Height()})
	return &indexEntry{agent: a, rect: rect}
}

// broadPhase keeps live agents in a 2D r-tree keyed by swept bounds
type broadPhase struct {
	tree    *rtreego.Rtree
	entries map[uint64]*indexEntry
}

func newBroadPhase() *broadPhase {
	return &broadPhase{
		tree:    rtreego.NewTree(2, indexMinChildren, indexMaxChildren),
		entries: make(map[uint64]*indexEntry),
	}
}

func (bp *broadPhase) insert(a *vessel.Agent) {
	e := newIndexEntry(a)
	bp.entries[a.ID()] = e
	bp.tree.Insert(e)
}

func (bp *broadPhase) remove(id uint64) {
	e, ok := bp.entries[id]
	if !ok {
		return
	}
	delete(bp.entries, id)
	bp.tree.Delete(e)
}

// neighbours returns the IDs of agents whose boxes overlap a's box, a included.
func (bp *broadPhase) neighbours(a *vessel.Agent) map[uint64]struct{} {
	e, ok := bp.entries[a.ID()]
	if !ok {
		e = newIndexEntry(a)
	}
	hits := bp.tree.SearchIntersect(e.rect)
	out := make(map[uint64]struct{}, len(hits))
	for _, hit := range hits {
		out[hit.(*indexEntry).agent.ID()] = struct{}{}
	}
	return out
}

func (bp *broadPhase) size() int {
	return bp.tree.Size()
}
