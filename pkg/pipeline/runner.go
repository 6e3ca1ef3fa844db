package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zeebo/blake3"

	"github.com/matzehuels/metarender/pkg/cache"
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/observability"
	"github.com/matzehuels/metarender/pkg/outputs"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// The Runner is stateless except for its collaborators; it doesn't store
// render results. Multiple goroutines can safely use the same Runner with
// different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Hooks receives pipeline events. Nil uses the registered hooks.
	Hooks observability.RenderHooks

	// Finalizer checks dependencies during finalization. Nil uses an
	// IndexFinalizer over the configuration's available index.
	Finalizer Finalizer
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Render runs the complete pipeline: conda outputs come first in build
// dependency order, followed by outputs of other types in recipe order.
func (r *Runner) Render(ctx context.Context, opts Options) ([]Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if observability.RunID(ctx) == "" {
		ctx = observability.WithRunID(ctx, observability.NewRunID())
	}

	start := time.Now()
	r.hooks().OnRenderStart(ctx, opts.Recipe, len(opts.Variants))
	results, err := r.render(ctx, opts)
	r.hooks().OnRenderComplete(ctx, opts.Recipe, len(results), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("rendered recipe",
		"recipe", opts.Recipe,
		"variants", len(opts.Variants),
		"outputs", len(results),
		"duration", time.Since(start))
	return results, nil
}

func (r *Runner) render(ctx context.Context, opts Options) ([]Result, error) {
	resolved, err := r.resolveVariants(ctx, opts)
	if err != nil {
		return nil, err
	}

	bases := make(map[string]*metadata.Draft, len(resolved))
	set := metadata.NewOutputSet()
	for _, res := range resolved {
		bases[res.base.Variant().Key()] = res.base
		for _, e := range res.entries {
			set.Put(e)
		}
	}
	ordered, err := outputs.Toposort(set.Entries(), metadata.PhaseBuild)
	if err != nil {
		return nil, err
	}
	if opts.NoFinalize {
		return ordered, nil
	}
	return r.finalize(ctx, opts, bases, ordered)
}

// RenderRecords renders the recipe and returns the info records of its
// outputs. Records are cached under a key covering the recipe files, the
// configuration, the variants and the environment.
func (r *Runner) RenderRecords(ctx context.Context, opts Options) ([]metadata.InfoRecord, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, false, fmt.Errorf("invalid options: %w", err)
	}

	key, err := r.recordsKey(opts)
	if err != nil {
		return nil, false, err
	}
	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			var records []metadata.InfoRecord
			if err := json.Unmarshal(data, &records); err == nil {
				observability.Cache().OnCacheHit(ctx, "render")
				return records, true, nil
			}
			// If deserialization fails, fall through to re-render
		} else if err != nil {
			r.Logger.Warn("cache read failed", "err", err)
		}
		observability.Cache().OnCacheMiss(ctx, "render")
	}

	results, err := r.Render(ctx, opts)
	if err != nil {
		return nil, false, err
	}
	records, err := Records(results)
	if err != nil {
		return nil, false, err
	}

	if data, err := json.Marshal(records); err == nil {
		if err := r.Cache.Set(ctx, key, data, cache.TTLRender); err != nil {
			r.Logger.Warn("cache write failed", "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "render", len(data))
		}
	}
	return records, false, nil
}

// Records returns the info records of rendered results.
func Records(results []Result) ([]metadata.InfoRecord, error) {
	records := make([]metadata.InfoRecord, 0, len(results))
	for _, res := range results {
		rec, err := res.Meta.InfoIndex()
		if err != nil {
			return nil, fmt.Errorf("info record of %s: %w", res.Meta.Dist(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Runner) recordsKey(opts Options) (string, error) {
	digest, err := RecipeDigest(opts.Recipe)
	if err != nil {
		return "", err
	}
	cfg, err := json.Marshal(opts.Config)
	if err != nil {
		return "", err
	}
	return r.Keyer.RenderKey(digest, cache.RenderKeyOpts{
		Config:   cfg,
		Variants: opts.VariantKeys(),
		Env:      opts.Env.Map(),
		Flags:    opts.flags(),
	}), nil
}

// RecipeDigest hashes every file of a recipe directory, or the recipe file
// itself, together with its relative path.
func RecipeDigest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	root := path
	if !info.IsDir() {
		root = filepath.Dir(path)
	}

	h := blake3.New()
	add := func(p string) error {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		_, err = io.Copy(h, f)
		return err
	}
	if !info.IsDir() {
		if err := add(path); err != nil {
			return "", err
		}
		return fmt.Sprintf("%x", h.Sum(nil)), nil
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		return add(p)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) hooks() observability.RenderHooks {
	if r.Hooks != nil {
		return r.Hooks
	}
	return observability.Render()
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
