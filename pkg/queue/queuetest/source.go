// Package queuetest provides an in-memory queue.Source for tests.
package queuetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fiscal-credits/creditledger/pkg/queue"
)

// Source is a channel-fed queue.Source. Pushed items are received in order.
type Source struct {
	items  chan item
	mu     sync.Mutex
	seq    int
	closed bool
}

type item struct {
	delivery *Delivery
	err      error
}

// NewSource creates a Source with room for buffer unreceived items.
func NewSource(buffer int) *Source {
	return &Source{items: make(chan item, buffer)}
}

// Push enqueues body and returns its delivery for later inspection.
func (s *Source) Push(body []byte) *Delivery {
	s.mu.Lock()
	s.seq++
	d := &Delivery{id: fmt.Sprintf("msg-%d", s.seq), body: body, settled: make(chan struct{})}
	s.mu.Unlock()
	s.items <- item{delivery: d}
	return d
}

// PushError makes the next Receive fail with err.
func (s *Source) PushError(err error) {
	s.items <- item{err: err}
}

func (s *Source) Receive(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case it := <-s.items:
		if it.err != nil {
			return nil, it.err
		}
		return it.delivery, nil
	}
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Delivery records how it was settled.
type Delivery struct {
	id      string
	body    []byte
	mu      sync.Mutex
	state   string
	reason  string
	settles int
	settled chan struct{}

	// SettleErr, when set before the delivery is received, is returned from
	// Complete and DeadLetter.
	SettleErr error
}

func (d *Delivery) ID() string   { return d.id }
func (d *Delivery) Body() []byte { return d.body }

func (d *Delivery) Complete(context.Context) error {
	d.record("completed", "")
	return d.SettleErr
}

func (d *Delivery) DeadLetter(_ context.Context, reason string) error {
	d.record("dead_lettered", reason)
	return d.SettleErr
}

func (d *Delivery) record(state, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settles++
	d.state = state
	d.reason = reason
	if d.settles == 1 {
		close(d.settled)
	}
}

// Settled is closed once the delivery has been completed or dead-lettered.
func (d *Delivery) Settled() <-chan struct{} { return d.settled }

// State returns "completed", "dead_lettered" or "" when unsettled.
func (d *Delivery) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reason returns the dead-letter reason.
func (d *Delivery) Reason() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// Settles returns how many times the delivery was settled.
func (d *Delivery) Settles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settles
}
