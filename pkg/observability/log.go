package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks writes render and cache events to a logger at debug level and
// served requests at info level. Failures are logged as warnings.
type LogHooks struct {
	Logger *log.Logger
}

// NewLogHooks returns hooks logging to logger, or to log.Default() when nil.
func NewLogHooks(logger *log.Logger) *LogHooks {
	if logger == nil {
		logger = log.Default()
	}
	return &LogHooks{Logger: logger}
}

func (h *LogHooks) with(ctx context.Context) *log.Logger {
	if id := RunID(ctx); id != "" {
		return h.Logger.With("run", id)
	}
	return h.Logger
}

func (h *LogHooks) OnRenderStart(ctx context.Context, recipe string, variants int) {
	h.with(ctx).Debug("render started", "recipe", recipe, "variants", variants)
}

func (h *LogHooks) OnRenderComplete(ctx context.Context, recipe string, outputs int, d time.Duration, err error) {
	if err != nil {
		h.with(ctx).Warn("render failed", "recipe", recipe, "duration", d, "err", err)
		return
	}
	h.with(ctx).Debug("render finished", "recipe", recipe, "outputs", outputs, "duration", d)
}

func (h *LogHooks) OnVariantResolved(ctx context.Context, variant string, outputs int, d time.Duration, err error) {
	if err != nil {
		h.with(ctx).Warn("variant failed", "variant", variant, "err", err)
		return
	}
	h.with(ctx).Debug("variant resolved", "variant", variant, "outputs", outputs, "duration", d)
}

func (h *LogHooks) OnFinalizePass(ctx context.Context, pass, changed int) {
	h.with(ctx).Debug("finalize pass", "pass", pass, "changed", changed)
}

func (h *LogHooks) OnCacheHit(ctx context.Context, keyType string) {
	h.with(ctx).Debug("cache hit", "type", keyType)
}

func (h *LogHooks) OnCacheMiss(ctx context.Context, keyType string) {
	h.with(ctx).Debug("cache miss", "type", keyType)
}

func (h *LogHooks) OnCacheSet(ctx context.Context, keyType string, size int) {
	h.with(ctx).Debug("cache set", "type", keyType, "bytes", size)
}

func (h *LogHooks) OnRequest(ctx context.Context, method, path string, status int, d time.Duration) {
	l := h.with(ctx)
	if status >= 500 {
		l.Warn("request", "method", method, "path", path, "status", status, "duration", d)
		return
	}
	l.Info("request", "method", method, "path", path, "status", status, "duration", d)
}

var (
	_ RenderHooks = (*LogHooks)(nil)
	_ CacheHooks  = (*LogHooks)(nil)
	_ ServerHooks = (*LogHooks)(nil)
)
