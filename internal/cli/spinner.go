package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matzehuels/metarender/pkg/observability"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a status line on stderr while a render runs. It stops
// on its own when the parent context ends.
type Spinner struct {
	out     io.Writer
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	stop    sync.Once

	mu      sync.Mutex
	message string
	width   int
}

func newSpinner(ctx context.Context, message string) *Spinner {
	sctx, cancel := context.WithCancel(ctx)
	return &Spinner{
		out:     os.Stderr,
		parent:  ctx,
		ctx:     sctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		message: message,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-ticker.C:
				s.draw(spinnerFrames[i%len(spinnerFrames)])
			}
		}
	}()
}

// SetMessage replaces the text shown next to the spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop ends the animation started by Start and clears the line. It may be
// called more than once.
func (s *Spinner) Stop() {
	s.stop.Do(s.cancel)
	<-s.stopped
}

// Cancelled reports whether the spinner stopped because its parent context
// ended.
func (s *Spinner) Cancelled() bool {
	return s.parent.Err() != nil
}

func (s *Spinner) draw(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := styleIconSpinner.Render(frame) + " " + StyleDim.Render(s.message)
	// pad over a longer previous message
	pad := max(s.width-len(s.message), 0)
	s.width = max(s.width, len(s.message))
	fmt.Fprintf(s.out, "\r%s%s", line, strings.Repeat(" ", pad))
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", max(s.width, len(s.message))+4))
}

// renderProgress forwards render events to the registered hooks and shows
// them on a spinner.
type renderProgress struct {
	observability.RenderHooks
	spinner  *Spinner
	recipe   string
	variants atomic.Int32
	resolved atomic.Int32
}

func newRenderProgress(s *Spinner, recipe string) *renderProgress {
	return &renderProgress{RenderHooks: observability.Render(), spinner: s, recipe: recipe}
}

func (p *renderProgress) OnRenderStart(ctx context.Context, recipe string, variants int) {
	p.RenderHooks.OnRenderStart(ctx, recipe, variants)
	p.variants.Store(int32(variants))
}

func (p *renderProgress) OnVariantResolved(ctx context.Context, variant string, outputs int, d time.Duration, err error) {
	p.RenderHooks.OnVariantResolved(ctx, variant, outputs, d, err)
	n := p.resolved.Add(1)
	p.spinner.SetMessage(fmt.Sprintf("Resolved %d/%d variants of %s...", n, p.variants.Load(), p.recipe))
}

func (p *renderProgress) OnFinalizePass(ctx context.Context, pass, changed int) {
	p.RenderHooks.OnFinalizePass(ctx, pass, changed)
	p.spinner.SetMessage(fmt.Sprintf("Finalizing %s (pass %d)...", p.recipe, pass))
}
