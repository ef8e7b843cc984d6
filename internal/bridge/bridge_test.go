package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/reliefmaps/slopetiles/internal/fetch"
)

// startPair wires a bridge and responder over an in-process pipe and runs
// both loops for the duration of the test.
func startPair(t *testing.T) (*Bridge, *Responder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	workerEnd, hostEnd := Pipe()
	b := NewBridge(workerEnd, nil)
	r := NewResponder(hostEnd)
	go b.Run(ctx)
	go r.Run(ctx)
	return b, r
}

func TestCall_DelegatesAndResolves(t *testing.T) {
	b, r := startPair(t)
	r.Handle("dem", func(ctx context.Context, url string) (fetch.Result, error) {
		return fetch.Result{Bytes: []byte(url), CacheControl: "public, max-age=60"}, nil
	})

	res, err := b.Call(context.Background(), "dem://5/10/10")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(res.Bytes) != "dem://5/10/10" {
		t.Errorf("payload = %q", res.Bytes)
	}
	if res.CacheControl != "public, max-age=60" {
		t.Errorf("cache-control = %q", res.CacheControl)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d after resolution, want 0", b.Pending())
	}
}

func TestCall_HandlerError(t *testing.T) {
	b, r := startPair(t)
	r.Handle("dem", func(ctx context.Context, url string) (fetch.Result, error) {
		return fetch.Result{}, errors.New("tile not found")
	})

	_, err := b.Call(context.Background(), "dem://5/0/0")
	if err == nil || err.Error() != "tile not found" {
		t.Errorf("err = %v, want 'tile not found'", err)
	}
}

func TestCall_UnknownScheme(t *testing.T) {
	b, _ := startPair(t)
	if _, err := b.Call(context.Background(), "gopher://x"); err == nil {
		t.Error("expected an error for an unhandled scheme")
	}
}

func TestCall_ConcurrentResolutionByCorrelationID(t *testing.T) {
	b, r := startPair(t)

	// Replies arrive in reverse request order; correlation ids must still
	// route each response to its own caller.
	var mu sync.Mutex
	blocked := make(map[string]chan struct{})
	release := func(url string) {
		mu.Lock()
		ch := blocked[url]
		mu.Unlock()
		close(ch)
	}
	r.Handle("dem", func(ctx context.Context, url string) (fetch.Result, error) {
		ch := make(chan struct{})
		mu.Lock()
		blocked[url] = ch
		mu.Unlock()
		<-ch
		return fetch.Result{Bytes: []byte(url)}, nil
	})

	urls := []string{"dem://1/0/0", "dem://2/0/0", "dem://3/0/0"}
	results := make([]fetch.Result, len(urls))
	errs := make([]error, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i], errs[i] = b.Call(context.Background(), u)
		}(i, u)
	}

	// Wait until all three handlers are parked, then release in reverse.
	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(blocked)
		mu.Unlock()
		if n == len(urls) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("handlers never started")
		case <-time.After(time.Millisecond):
		}
	}
	for i := len(urls) - 1; i >= 0; i-- {
		release(urls[i])
	}
	wg.Wait()

	for i, u := range urls {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		if string(results[i].Bytes) != u {
			t.Errorf("call %d resolved with %q, want %q", i, results[i].Bytes, u)
		}
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d, want 0", b.Pending())
	}
}

func TestResolve_DuplicateAndUnmatchedIgnored(t *testing.T) {
	workerEnd, hostEnd := Pipe()
	b := NewBridge(workerEnd, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := b.Call(context.Background(), "dem://1/1/1")
		if err != nil {
			t.Errorf("Call failed: %v", err)
			return
		}
		if string(res.Bytes) != "first" {
			t.Errorf("resolved with %q, want the first reply", res.Bytes)
		}
	}()

	req, ok := <-hostEnd.Recv()
	if !ok {
		t.Fatal("no request arrived")
	}
	// Unmatched id first, then the real reply twice: only the first
	// matching delivery may win, and nothing may panic.
	_ = hostEnd.Send(Message{ID: idPrefix + "99999", Payload: []byte("ghost")})
	_ = hostEnd.Send(Message{ID: req.ID, Payload: []byte("first")})
	_ = hostEnd.Send(Message{ID: req.ID, Payload: []byte("second")})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("call never resolved")
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d, want 0", b.Pending())
	}
}

func TestCall_DirectPathBypassesPort(t *testing.T) {
	workerEnd, _ := Pipe()
	direct := func(ctx context.Context, url string) (fetch.Result, error) {
		return fetch.Result{Bytes: []byte("direct:" + url)}, nil
	}
	b := NewBridge(workerEnd, direct)
	// No Run loop and no responder: a delegated call could never resolve,
	// so success proves the trusted scheme skipped the port.
	res, err := b.Call(context.Background(), "https://dem.test/5/1/1.png")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(res.Bytes) != "direct:https://dem.test/5/1/1.png" {
		t.Errorf("payload = %q", res.Bytes)
	}
}

func TestCall_CancellationAbandonsDelegation(t *testing.T) {
	workerEnd, hostEnd := Pipe()
	_ = hostEnd // nobody answers
	b := NewBridge(workerEnd, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := b.Call(ctx, "dem://5/1/1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCall_IDsNeverReused(t *testing.T) {
	workerEnd, hostEnd := Pipe()
	b := NewBridge(workerEnd, nil)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			_, _ = b.Call(ctx, fmt.Sprintf("dem://1/0/%d", i))
		}()
		req := <-hostEnd.Recv()
		if seen[req.ID] {
			t.Fatalf("correlation id %q reused", req.ID)
		}
		seen[req.ID] = true
		cancel()
	}
}

func TestPort_SendAfterClose(t *testing.T) {
	a, _ := Pipe()
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Send(Message{ID: "x"}); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Send after Close = %v, want ErrPortClosed", err)
	}
}

func TestPort_ConcurrentSendAndClose(t *testing.T) {
	// Sends racing a Close must either deliver or return ErrPortClosed;
	// never panic on a closed channel. Run many short-lived pipes to give
	// the race detector something to catch.
	for i := 0; i < 500; i++ {
		a, _ := Pipe()

		var wg sync.WaitGroup
		for s := 0; s < 2; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 32; j++ {
					if err := a.Send(Message{ID: "m"}); err != nil {
						if !errors.Is(err, ErrPortClosed) {
							t.Errorf("Send = %v, want nil or ErrPortClosed", err)
						}
						return
					}
				}
			}()
		}

		if err := a.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		wg.Wait()
	}
}

func TestPort_CloseDrainsBlockedSender(t *testing.T) {
	a, _ := Pipe()

	// Fill the pipe's buffer so the next Send blocks in its select.
	for i := 0; i < 16; i++ {
		if err := a.Send(Message{ID: "fill"}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- a.Send(Message{ID: "blocked"})
	}()

	// Give the sender time to park before closing under it.
	time.Sleep(10 * time.Millisecond)
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrPortClosed) {
			t.Errorf("blocked Send = %v, want ErrPortClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked sender never released by Close")
	}
}
