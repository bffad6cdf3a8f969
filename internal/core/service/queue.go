package service

import (
	"github.com/taskpilot/taskpilot/internal/core/domain"
)

// queueSet maps each priority level to a FIFO of task records. A task is a
// member of at most one queue; the dispatch loop pops the head and, when no
// worker qualifies, returns it to the head rather than the tail.
type queueSet struct {
	queues map[domain.Priority][]*domain.Task
}

func newQueueSet() *queueSet {
	q := &queueSet{queues: make(map[domain.Priority][]*domain.Task, len(domain.PriorityOrder))}
	for _, p := range domain.PriorityOrder {
		q.queues[p] = nil
	}
	return q
}

// push appends the task to the tail of its priority's queue.
func (q *queueSet) push(t *domain.Task) {
	q.queues[t.Priority] = append(q.queues[t.Priority], t)
}

// pop removes and returns the head of the level's queue, or nil when empty.
func (q *queueSet) pop(level domain.Priority) *domain.Task {
	items := q.queues[level]
	if len(items) == 0 {
		return nil
	}
	head := items[0]
	q.queues[level] = items[1:]
	return head
}

// pushFront returns a popped task to the head of its queue, preserving FIFO
// order for the rest of the level.
func (q *queueSet) pushFront(t *domain.Task) {
	q.queues[t.Priority] = append([]*domain.Task{t}, q.queues[t.Priority]...)
}

// remove deletes the task with the given id from whichever queue holds it.
func (q *queueSet) remove(taskID string) *domain.Task {
	for level, items := range q.queues {
		for i, t := range items {
			if t.ID == taskID {
				q.queues[level] = append(items[:i:i], items[i+1:]...)
				return t
			}
		}
	}
	return nil
}

// depth returns the number of queued tasks at one level.
func (q *queueSet) depth(level domain.Priority) int {
	return len(q.queues[level])
}

// depths returns a per-level count, so starvation stays observable.
func (q *queueSet) depths() map[domain.Priority]int {
	out := make(map[domain.Priority]int, len(domain.PriorityOrder))
	for _, p := range domain.PriorityOrder {
		out[p] = len(q.queues[p])
	}
	return out
}

// total returns the number of queued tasks across all levels.
func (q *queueSet) total() int {
	n := 0
	for _, items := range q.queues {
		n += len(items)
	}
	return n
}
