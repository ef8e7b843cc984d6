package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/reliefmaps/slopetiles/internal/fetch"
	"github.com/reliefmaps/slopetiles/internal/monitoring"
)

// idPrefix namespaces this protocol's correlation ids so unrelated traffic
// on a shared port is ignored by both sides.
const idPrefix = "slope-rpc:"

// DirectFetcher performs a network fetch without crossing the boundary.
// fetch.Source.GetData satisfies it.
type DirectFetcher func(ctx context.Context, url string) (fetch.Result, error)

// Bridge is the requesting side of the protocol. Correlation ids come from a
// monotonically increasing counter and are never reused; each pending entry
// is resolved at most once.
type Bridge struct {
	port   Port
	direct DirectFetcher
	seq    atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan Message
}

// NewBridge creates the requesting endpoint over port. direct may be nil to
// force every fetch through delegation.
func NewBridge(port Port, direct DirectFetcher) *Bridge {
	return &Bridge{port: port, direct: direct, pending: make(map[string]chan Message)}
}

// Run dispatches incoming responses to their pending resolvers until ctx is
// done or the port closes. Call it from one goroutine per bridge.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-b.port.Recv():
			if !ok {
				return
			}
			b.resolve(m)
		}
	}
}

// resolve delivers a response to its pending entry exactly once. Unmatched
// or duplicate ids are dropped silently, making duplicate delivery harmless.
func (b *Bridge) resolve(m Message) {
	b.mu.Lock()
	ch, ok := b.pending[m.ID]
	if ok {
		delete(b.pending, m.ID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	ch <- m
}

// Call fetches url. Trusted network schemes (http, https) go through the
// direct fetcher when one is configured; everything else is delegated across
// the port and awaited with no internal timeout. Abandonment is entirely the
// caller's business via ctx.
func (b *Bridge) Call(ctx context.Context, url string) (fetch.Result, error) {
	if b.direct != nil {
		if s := schemeOf(url); s == "http" || s == "https" {
			return b.direct(ctx, url)
		}
	}

	id := idPrefix + strconv.FormatUint(b.seq.Add(1), 10)
	ch := make(chan Message, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	if err := b.port.Send(Message{ID: id, URL: url}); err != nil {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return fetch.Result{}, fmt.Errorf("bridge send: %w", err)
	}

	select {
	case <-ctx.Done():
		// The pending entry stays behind; a late response resolves into
		// nothing and is dropped.
		return fetch.Result{}, ctx.Err()
	case m := <-ch:
		if m.Err != "" {
			return fetch.Result{}, errors.New(m.Err)
		}
		return fetch.Result{Bytes: m.Payload, CacheControl: m.CacheControl, Expires: m.Expires}, nil
	}
}

// Pending reports the number of unresolved entries. Test hook.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Handler services one delegated URL on the responding side.
type Handler func(ctx context.Context, url string) (fetch.Result, error)

// Responder is the responding side of the protocol: it watches the port for
// requests in the known id namespace and dispatches them by URL scheme.
type Responder struct {
	port Port

	mu       sync.Mutex
	handlers map[string]Handler
}

// NewResponder creates the responding endpoint over port.
func NewResponder(port Port) *Responder {
	return &Responder{port: port, handlers: make(map[string]Handler)}
}

// Handle registers a handler for a URL scheme ("dem", "https", ...).
func (r *Responder) Handle(scheme string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[scheme] = h
}

// Run services requests until ctx is done or the port closes. Each request
// is handled on its own goroutine so a slow fetch never blocks the port.
func (r *Responder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-r.port.Recv():
			if !ok {
				return
			}
			if !strings.HasPrefix(m.ID, idPrefix) {
				continue
			}
			go r.serve(ctx, m)
		}
	}
}

func (r *Responder) serve(ctx context.Context, m Message) {
	reply := Message{ID: m.ID}

	r.mu.Lock()
	h := r.handlers[schemeOf(m.URL)]
	r.mu.Unlock()

	if h == nil {
		reply.Err = fmt.Sprintf("no handler for scheme of %q", m.URL)
	} else if res, err := h(ctx, m.URL); err != nil {
		reply.Err = err.Error()
	} else {
		reply.Payload = res.Bytes
		reply.CacheControl = res.CacheControl
		reply.Expires = res.Expires
	}

	if err := r.port.Send(reply); err != nil {
		monitoring.Logf("bridge: reply %s dropped: %v", m.ID, err)
	}
}

func schemeOf(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		return url[:i]
	}
	return ""
}
