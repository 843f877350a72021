package absint

import "golang.org/x/exp/slices"

// worklist is a queue of instruction offsets to (re)process, deduplicated so
// that an offset reachable from several already-processed predecessors in
// the same round is not enqueued more than once — the classic worklist
// dataflow optimization.
type worklist struct {
	pending []uint32
}

func (w *worklist) push(offset uint32) {
	if slices.Contains(w.pending, offset) {
		return
	}
	w.pending = append(w.pending, offset)
}

func (w *worklist) pop() (uint32, bool) {
	if len(w.pending) == 0 {
		return 0, false
	}
	offset := w.pending[0]
	w.pending = w.pending[1:]
	return offset, true
}

func (w *worklist) empty() bool { return len(w.pending) == 0 }
