package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/outputs"
	"github.com/matzehuels/metarender/pkg/recipe"
)

// variantResult is the outcome of resolving one variant.
type variantResult struct {
	base    *metadata.Draft
	entries []metadata.Entry
}

// resolveVariants renders every variant to its output entries. Variants are
// resolved in parallel, bounded by the configured worker count; results
// keep the variant order.
func (r *Runner) resolveVariants(ctx context.Context, opts Options) ([]variantResult, error) {
	results := make([]variantResult, len(opts.Variants))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Config.MaxWorkers)
	for i, v := range opts.Variants {
		g.Go(func() error {
			start := time.Now()
			res, err := r.resolveVariant(ctx, opts, i)
			r.hooks().OnVariantResolved(ctx, v.Key(), len(res.entries), time.Since(start), err)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveVariant parses the recipe for one variant until its template
// references settle and derives the metadata of every output.
func (r *Runner) resolveVariant(ctx context.Context, opts Options, i int) (variantResult, error) {
	v := opts.Variants[i]
	logger := opts.Logger.With("variant", v.String())

	base, err := metadata.Load(ctx, opts.Recipe, opts.Config, v, opts.Env, logger)
	if err != nil {
		return variantResult{}, err
	}
	// Sibling outputs and channel lookups are settled during finalization.
	parse := metadata.Options{AllowNoOtherOutputs: true, BypassEnvCheck: true}
	if err := base.ParseUntilResolved(ctx, parse); err != nil {
		return variantResult{}, err
	}

	descs, err := outputs.Extract(base)
	if err != nil {
		return variantResult{}, err
	}
	res := variantResult{base: base}
	for _, desc := range descs {
		om, err := base.OutputMetadata(desc)
		if err != nil {
			return variantResult{}, err
		}
		m, err := om.Resolve()
		if err != nil {
			return variantResult{}, err
		}
		if m.Skip() {
			logger.Info("skipping output", "output", m.Name())
			continue
		}
		res.entries = append(res.entries, metadata.Entry{Output: desc, Meta: m})
	}
	logger.Debug("resolved variant", "outputs", len(res.entries))
	return res, nil
}

// finalize re-renders every entry in order, FinalizePasses times. Each
// pass sees the entries finalized so far through the output set, so exact
// pins on earlier outputs pick up their final build ids. Pass 2 must not
// change any dist; if it does the render is NON_CONVERGENT.
func (r *Runner) finalize(ctx context.Context, opts Options, bases map[string]*metadata.Draft, ordered []metadata.Entry) ([]metadata.Entry, error) {
	set := metadata.NewOutputSet()
	siblings := make(map[string]bool)
	for _, e := range ordered {
		set.Put(e)
		siblings[e.Meta.Name()] = true
	}
	finalizer := r.Finalizer
	if finalizer == nil {
		finalizer = IndexFinalizer{Config: opts.Config, Siblings: siblings}
	}

	for pass := 0; pass < FinalizePasses; pass++ {
		changed := 0
		for _, k := range set.Keys() {
			old, _ := set.Get(k)
			base, ok := bases[old.Meta.Variant().Key()]
			if !ok {
				return nil, errors.New(errors.ErrCodeInternal, "no recipe rendered for variant %s", old.Meta.Variant())
			}
			next, err := r.finalizeEntry(ctx, opts, base, set, old, finalizer)
			if errors.Recoverable(err) && opts.Config.PermitUnsatisfiable() {
				opts.Logger.Warn("keeping unfinalized metadata", "output", old.Meta.Name(), "variant", old.Meta.Variant().String(), "err", err)
				continue
			}
			if err != nil {
				return nil, err
			}
			if next.Meta.Dist() != old.Meta.Dist() {
				changed++
			}
			set.Put(next)
		}
		r.hooks().OnFinalizePass(ctx, pass, changed)
		opts.Logger.Debug("finalize pass", "pass", pass, "changed", changed)

		if pass == 0 {
			if err := outputs.ExactPinCycle(set.Entries()); err != nil {
				return nil, err
			}
		}
		if pass == FinalizePasses-1 && changed > 0 {
			return nil, errors.New(errors.ErrCodeNonConvergent,
				"%d output(s) still changed in the last of %d finalization passes", changed, FinalizePasses)
		}
	}
	return set.Entries(), nil
}

// finalizeEntry re-renders the recipe of e against the current output set
// and re-derives the metadata of its output.
func (r *Runner) finalizeEntry(ctx context.Context, opts Options, base *metadata.Draft, set *metadata.OutputSet, e metadata.Entry, f Finalizer) (metadata.Entry, error) {
	d := base.WithVariant(e.Meta.Variant())
	d.SetOtherOutputs(set)
	if err := d.ParseUntilResolved(ctx, opts.parseOptions()); err != nil {
		return metadata.Entry{}, err
	}
	top, err := d.Name()
	if err != nil {
		return metadata.Entry{}, err
	}
	descs, err := outputs.Extract(d)
	if err != nil {
		return metadata.Entry{}, err
	}

	want := outputName(e.Output, top)
	for _, desc := range descs {
		if outputName(desc, top) != want || desc.Type() != e.Output.Type() {
			continue
		}
		om, err := d.OutputMetadata(desc)
		if err != nil {
			return metadata.Entry{}, err
		}
		m, err := om.Resolve()
		if err != nil {
			return metadata.Entry{}, err
		}
		if m, err = f.Finalize(ctx, m); err != nil {
			return metadata.Entry{}, err
		}
		return metadata.Entry{Output: desc, Meta: m}, nil
	}
	return metadata.Entry{}, errors.New(errors.ErrCodeInternal, "output %s disappeared while finalizing", want)
}

func outputName(o recipe.Output, top string) string {
	if name, ok := o.Name(); ok {
		return name
	}
	return top
}
