package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/metarender/pkg/observability"
)

// syncBuffer guards a buffer written by the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startSpinner(ctx context.Context, message string) (*Spinner, *syncBuffer) {
	var out syncBuffer
	s := newSpinner(ctx, message)
	s.out = &out
	s.Start()
	return s, &out
}

func TestSpinnerStop(t *testing.T) {
	s, out := startSpinner(context.Background(), "Rendering recipe...")
	time.Sleep(200 * time.Millisecond)
	s.Stop()
	s.Stop()

	if !strings.Contains(out.String(), "Rendering recipe...") {
		t.Errorf("spinner output = %q, want the message", out.String())
	}
	if s.Cancelled() {
		t.Error("Stop() is not a cancellation")
	}
}

func TestSpinnerCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s, _ := startSpinner(ctx, "Rendering recipe...")
	<-ctx.Done()
	s.Stop()
	if !s.Cancelled() {
		t.Error("spinner should report cancellation of its parent context")
	}
}

func TestSpinnerSetMessage(t *testing.T) {
	s, out := startSpinner(context.Background(), "Rendering recipe...")
	s.SetMessage("Finalizing")
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if !strings.Contains(out.String(), "Finalizing") {
		t.Errorf("spinner output = %q, want the updated message", out.String())
	}
}

type countingRenderHooks struct {
	observability.NoopRenderHooks
	mu     sync.Mutex
	passes []int
}

func (h *countingRenderHooks) OnFinalizePass(_ context.Context, pass, _ int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passes = append(h.passes, pass)
}

func TestRenderProgress(t *testing.T) {
	inner := &countingRenderHooks{}
	observability.SetRenderHooks(inner)
	t.Cleanup(observability.Reset)

	s := newSpinner(context.Background(), "Rendering recipe...")
	p := newRenderProgress(s, "recipes/zlib")
	ctx := context.Background()

	p.OnRenderStart(ctx, "recipes/zlib", 2)
	p.OnVariantResolved(ctx, "python=3.6", 1, time.Millisecond, nil)
	if s.message != "Resolved 1/2 variants of recipes/zlib..." {
		t.Errorf("message = %q", s.message)
	}
	p.OnFinalizePass(ctx, 1, 0)
	if s.message != "Finalizing recipes/zlib (pass 1)..." {
		t.Errorf("message = %q", s.message)
	}
	if len(inner.passes) != 1 {
		t.Errorf("registered hooks saw %d passes, want 1", len(inner.passes))
	}
}
