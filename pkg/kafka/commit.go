package kafka

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// commitTracker releases offsets for commit in fetch order. Kafka commits
// are positional, so committing offset n would also acknowledge every
// earlier offset on the partition; the tracker holds a finished message back
// until everything fetched before it on the same partition has finished too.
type commitTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionQueue
}

type partitionKey struct {
	topic     string
	partition int
}

type partitionQueue struct {
	pending []kafka.Message
	done    map[int64]bool
}

func newCommitTracker() *commitTracker {
	return &commitTracker{partitions: make(map[partitionKey]*partitionQueue)}
}

// track registers a fetched message. Messages must be tracked in fetch order.
func (t *commitTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := partitionKey{msg.Topic, msg.Partition}
	q, ok := t.partitions[key]
	if !ok {
		q = &partitionQueue{done: make(map[int64]bool)}
		t.partitions[key] = q
	}
	q.pending = append(q.pending, msg)
}

// finish marks msg settled and returns the highest message that can now be
// committed, if any.
func (t *commitTracker) finish(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.partitions[partitionKey{msg.Topic, msg.Partition}]
	if !ok {
		return kafka.Message{}, false
	}
	q.done[msg.Offset] = true

	var last kafka.Message
	released := false
	for len(q.pending) > 0 && q.done[q.pending[0].Offset] {
		last = q.pending[0]
		delete(q.done, last.Offset)
		q.pending = q.pending[1:]
		released = true
	}
	return last, released
}

// inFlight returns the number of tracked messages not yet released.
func (t *commitTracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, q := range t.partitions {
		n += len(q.pending)
	}
	return n
}
