package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpilot/taskpilot/internal/core/domain"
)

func queuedTask(id string, p domain.Priority) *domain.Task {
	return &domain.Task{ID: id, Priority: p, Status: domain.TaskStatusQueued}
}

func TestQueueSetFIFO(t *testing.T) {
	q := newQueueSet()
	q.push(queuedTask("a", domain.PriorityHigh))
	q.push(queuedTask("b", domain.PriorityHigh))
	q.push(queuedTask("c", domain.PriorityHigh))

	assert.Equal(t, "a", q.pop(domain.PriorityHigh).ID)
	assert.Equal(t, "b", q.pop(domain.PriorityHigh).ID)
	assert.Equal(t, "c", q.pop(domain.PriorityHigh).ID)
	assert.Nil(t, q.pop(domain.PriorityHigh))
}

func TestQueueSetPushFront(t *testing.T) {
	q := newQueueSet()
	q.push(queuedTask("a", domain.PriorityLow))
	q.push(queuedTask("b", domain.PriorityLow))

	head := q.pop(domain.PriorityLow)
	require.Equal(t, "a", head.ID)
	q.pushFront(head)

	assert.Equal(t, "a", q.pop(domain.PriorityLow).ID)
	assert.Equal(t, "b", q.pop(domain.PriorityLow).ID)
}

func TestQueueSetRemove(t *testing.T) {
	q := newQueueSet()
	q.push(queuedTask("a", domain.PriorityMedium))
	q.push(queuedTask("b", domain.PriorityMedium))
	q.push(queuedTask("c", domain.PriorityMedium))

	removed := q.remove("b")
	require.NotNil(t, removed)
	assert.Equal(t, "b", removed.ID)
	assert.Nil(t, q.remove("b"))
	assert.Nil(t, q.remove("missing"))

	assert.Equal(t, "a", q.pop(domain.PriorityMedium).ID)
	assert.Equal(t, "c", q.pop(domain.PriorityMedium).ID)
}

func TestQueueSetDepths(t *testing.T) {
	q := newQueueSet()
	q.push(queuedTask("a", domain.PriorityCritical))
	q.push(queuedTask("b", domain.PriorityCritical))
	q.push(queuedTask("c", domain.PriorityLow))

	assert.Equal(t, 2, q.depth(domain.PriorityCritical))
	assert.Equal(t, 0, q.depth(domain.PriorityMedium))
	assert.Equal(t, 3, q.total())

	depths := q.depths()
	assert.Len(t, depths, len(domain.PriorityOrder))
	assert.Equal(t, 2, depths[domain.PriorityCritical])
	assert.Equal(t, 1, depths[domain.PriorityLow])
	assert.Equal(t, 0, depths[domain.PriorityHigh])
}
