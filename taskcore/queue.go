package taskcore

import "container/heap"

// queueItem is one entry in a shared ready queue: the lower key sorts
// first, ties are broken by the lower enqueue sequence (FIFO within a
// band).
type queueItem struct {
	key  int
	seq  uint64
	task *Task
}

// priorityHeap implements container/heap.Interface over queueItem,
// backing the FIFO, PRIORITY and DEPENDENCY execution strategies, which
// differ only in how key is computed at enqueue time.
type priorityHeap []*queueItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(*queueItem))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// popReady pops ready items off the heap, skipping any whose task has
// already reached a terminal state (tombstones left behind by Cancel or
// Stop), until it finds one still eligible to run or the heap empties.
func popReady(h *priorityHeap) *Task {
	for h.Len() > 0 {
		item := heap.Pop(h).(*queueItem)
		if item.task.Status().IsTerminal() {
			continue
		}
		return item.task
	}
	return nil
}

// workerDeque is a simple FIFO deque backing one worker's local queue
// under the WORK_STEALING strategy.
type workerDeque struct {
	items []*Task
}

func (d *workerDeque) pushBack(t *Task) {
	d.items = append(d.items, t)
}

func (d *workerDeque) popFront() *Task {
	for len(d.items) > 0 {
		t := d.items[0]
		d.items = d.items[1:]
		if t.Status().IsTerminal() {
			continue
		}
		return t
	}
	return nil
}

// popBack removes the most recently pushed item, used by a peer stealing
// from the busiest queue's tail so the victim's own popFront order is
// undisturbed.
func (d *workerDeque) popBack() *Task {
	for len(d.items) > 0 {
		n := len(d.items) - 1
		t := d.items[n]
		d.items = d.items[:n]
		if t.Status().IsTerminal() {
			continue
		}
		return t
	}
	return nil
}

func (d *workerDeque) len() int { return len(d.items) }
