package presence

import (
	"sync"

	"chatrelay/pkg/models"
)

// Notifier receives stanzas addressed to the caller of the current
// invocation. They are never persisted.
type Notifier interface {
	Deliver(m *models.Message)
}

// Outbox is a Notifier that buffers stanzas until drained.
type Outbox struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func (o *Outbox) Deliver(m *models.Message) {
	o.mu.Lock()
	o.msgs = append(o.msgs, m)
	o.mu.Unlock()
}

// Drain returns the buffered stanzas in delivery order and empties the box.
func (o *Outbox) Drain() []*models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.msgs
	o.msgs = nil
	return out
}

// Invocation carries the state scoped to one request or one scheduled
// run: the caller id, the sweep flag and the connected users snapshot.
// Invocations must not be shared across requests.
type Invocation struct {
	Self     string
	notifier Notifier

	mu        sync.Mutex
	swept     bool
	fetched   bool
	connected []string
}

// NewInvocation starts an invocation for self. A nil notifier gets a
// fresh Outbox, reachable through Outbox().
func NewInvocation(self string, n Notifier) *Invocation {
	if n == nil {
		n = &Outbox{}
	}
	return &Invocation{Self: self, notifier: n}
}

// Outbox returns the invocation's notifier when it is an *Outbox.
func (inv *Invocation) Outbox() *Outbox {
	o, _ := inv.notifier.(*Outbox)
	return o
}

// Notify hands m to the invocation's notifier.
func (inv *Invocation) Notify(m *models.Message) {
	inv.notifier.Deliver(m)
}

// Swept reports whether a sweep already ran in this invocation.
func (inv *Invocation) Swept() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.swept
}

// claimSweep sets the sweep flag and reports whether the caller won it.
func (inv *Invocation) claimSweep() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.swept {
		return false
	}
	inv.swept = true
	return true
}
