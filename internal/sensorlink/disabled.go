package sensorlink

import (
	"context"
	"sync"
)

// DisabledLink is a no-op link used when no sensor board is attached, so
// the admin routes and API can run without a device. Subscriber channels are
// tracked so they close predictably on Unsubscribe or Close.
type DisabledLink struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

var _ LinkInterface = (*DisabledLink)(nil)

func NewDisabledLink() *DisabledLink {
	return &DisabledLink{subscribers: make(map[string]chan string)}
}

func (d *DisabledLink) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledLink) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledLink) SendCommand(string) error { return nil }

func (d *DisabledLink) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledLink) Stats() LinkStats { return LinkStats{} }

func (d *DisabledLink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}
