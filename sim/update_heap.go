package sim

import "container/heap"

// updateHeap implements a priority queue of objects awaiting an update within
// one timestep. Ordering: rank → registry index. Each object appears at most once.
type updateHeap struct {
	objects []Object
	queued  map[int]bool
}

func newUpdateHeap() *updateHeap {
	h := &updateHeap{
		objects: make([]Object, 0),
		queued:  make(map[int]bool),
	}
	heap.Init(h)
	return h
}

// Len implements heap.Interface
func (h *updateHeap) Len() int {
	return len(h.objects)
}

// Less implements heap.Interface with deterministic ordering
func (h *updateHeap) Less(i, j int) bool {
	ci, cj := h.objects[i].component(), h.objects[j].component()
	if ci.rank != cj.rank {
		return ci.rank < cj.rank
	}
	return ci.index < cj.index
}

// Swap implements heap.Interface
func (h *updateHeap) Swap(i, j int) {
	h.objects[i], h.objects[j] = h.objects[j], h.objects[i]
}

// Push implements heap.Interface
func (h *updateHeap) Push(x any) {
	h.objects = append(h.objects, x.(Object))
}

// Pop implements heap.Interface
func (h *updateHeap) Pop() any {
	old := h.objects
	n := len(old)
	item := old[n-1]
	h.objects = old[0 : n-1]
	return item
}

// Schedule queues obj unless it is already queued.
func (h *updateHeap) Schedule(obj Object) {
	idx := obj.component().index
	if h.queued[idx] {
		return
	}
	h.queued[idx] = true
	heap.Push(h, obj)
}

// PopRank removes and returns every queued object sharing the lowest rank.
func (h *updateHeap) PopRank() []Object {
	if h.Len() == 0 {
		return nil
	}
	rank := h.objects[0].component().rank
	var out []Object
	for h.Len() > 0 && h.objects[0].component().rank == rank {
		obj := heap.Pop(h).(Object)
		delete(h.queued, obj.component().index)
		out = append(out, obj)
	}
	return out
}
