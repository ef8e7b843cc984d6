// Package bridge implements a correlation-id request/response protocol
// between two execution contexts connected by a message port. A fetch issued
// in a restricted context (a worker) is serviced by a privileged one (the
// host), unless the URL's scheme is trusted for direct network access.
package bridge

import (
	"errors"
	"sync"
	"time"
)

// ErrPortClosed reports a send on a closed port.
var ErrPortClosed = errors.New("bridge: port closed")

// Message is the single wire shape crossing the context boundary. A request
// carries ID and URL; a response carries ID plus either Payload and cache
// metadata or Err. Payload crosses by reference, never copied.
type Message struct {
	ID           string    `json:"id"`
	URL          string    `json:"url,omitempty"`
	Payload      []byte    `json:"payload,omitempty"`
	Err          string    `json:"err,omitempty"`
	CacheControl string    `json:"cacheControl,omitempty"`
	Expires      time.Time `json:"expires,omitempty"`
}

// Port is one endpoint of a message channel between two contexts.
type Port interface {
	// Send delivers a message to the opposite endpoint.
	Send(Message) error
	// Recv exposes messages sent by the opposite endpoint. The channel is
	// closed when the peer closes its end.
	Recv() <-chan Message
	// Close shuts down this endpoint's outgoing direction.
	Close() error
}

type chanPort struct {
	out chan<- Message
	in  <-chan Message

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	senders sync.WaitGroup
}

// Pipe returns two connected in-process port endpoints. Each side's Send
// appears on the other side's Recv, preserving order.
func Pipe() (Port, Port) {
	ab := make(chan Message, 16)
	ba := make(chan Message, 16)
	a := &chanPort{out: ab, in: ba, done: make(chan struct{})}
	b := &chanPort{out: ba, in: ab, done: make(chan struct{})}
	return a, b
}

func (p *chanPort) Send(m Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	select {
	case p.out <- m:
		return nil
	case <-p.done:
		return ErrPortClosed
	}
}

func (p *chanPort) Recv() <-chan Message {
	return p.in
}

func (p *chanPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	// In-flight sends unblock via done; out must stay open until the last
	// one has left its select.
	p.senders.Wait()
	close(p.out)
	return nil
}
