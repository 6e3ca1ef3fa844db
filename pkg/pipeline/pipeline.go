// Package pipeline renders a recipe into the finalized metadata of all of
// its outputs.
//
// This package implements the fixed-point resolution pipeline used by the
// CLI and the HTTP server. By centralizing this logic, every entry point
// renders recipes the same way.
//
// # Stages
//
//  1. Resolve: for every variant, parse the recipe until its template
//     references settle, then once more strictly (run in parallel)
//  2. Expand: extract the outputs of every variant and toposort them
//     against the build phase
//  3. Finalize: re-render every output in dependency order, three times,
//     so that exact pins on sibling outputs see their final build ids
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	results, err := runner.Render(ctx, pipeline.Options{
//	    Recipe: "recipes/libfoo",
//	    Config: cfg,
//	    Env:    namespace.EnvFromOS(),
//	})
//	for _, r := range results {
//	    fmt.Println(r.Meta.Dist())
//	}
package pipeline

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/namespace"
	"github.com/matzehuels/metarender/pkg/variant"
)

// FinalizePasses is the number of finalization passes. Pass 0 settles
// build-time exact pins, pass 1 run-time pins, pass 2 must change nothing.
const FinalizePasses = 3

// Result pairs an output descriptor with its finalized metadata.
type Result = metadata.Entry

// ValidPhases is the set of dependency phases outputs can be ordered by.
var ValidPhases = map[string]bool{
	metadata.PhaseBuild: true,
	metadata.PhaseRun:   true,
}

// ValidatePhase checks that phase is a phase outputs can be ordered by.
func ValidatePhase(phase string) error {
	if !ValidPhases[phase] {
		return fmt.Errorf("invalid phase: %q (must be one of: build, run)", phase)
	}
	return nil
}

// Options contains the configuration of one render.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Recipe is a recipe directory or a meta.yaml file.
	Recipe string `json:"recipe"`

	// Config is the build configuration. Defaults are applied on validation.
	Config config.Config `json:"config"`

	// Variants overrides the variant set of Config when non-empty.
	Variants []variant.Variant `json:"variants,omitempty"`

	// NoFinalize stops after output expansion. Exact pins on sibling
	// outputs are left as bare names.
	NoFinalize bool `json:"no_finalize,omitempty"`

	// BypassEnvCheck skips the channel lookups of pin_compatible.
	BypassEnvCheck bool `json:"bypass_env_check,omitempty"`

	// Refresh ignores cached results.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Env    namespace.Env `json:"-"`
	Logger *log.Logger   `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Recipe == "" {
		return errors.New(errors.ErrCodeInvalidInput, "recipe is required")
	}
	if err := o.Config.ValidateAndSetDefaults(); err != nil {
		return err
	}
	if len(o.Variants) == 0 {
		o.Variants = o.Config.Variants()
	}
	o.Variants = variant.Dedupe(o.Variants)
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// VariantKeys returns the canonical keys of the rendered variants.
func (o *Options) VariantKeys() []string {
	keys := make([]string, len(o.Variants))
	for i, v := range o.Variants {
		keys[i] = v.Key()
	}
	return keys
}

func (o *Options) parseOptions() metadata.Options {
	return metadata.Options{BypassEnvCheck: o.BypassEnvCheck}
}

// flags lists the switches that change a render result.
func (o Options) flags() []string {
	var flags []string
	if o.NoFinalize {
		flags = append(flags, "no-finalize")
	}
	if o.BypassEnvCheck {
		flags = append(flags, "bypass-env-check")
	}
	return flags
}
