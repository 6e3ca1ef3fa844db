package cache

// Keyer derives cache keys.
type Keyer interface {
	// RenderKey returns the key of a render result for the given recipe
	// digest and render options.
	RenderKey(recipeDigest string, opts RenderKeyOpts) string
}

// RenderKeyOpts are the inputs besides the recipe files that change a
// render result.
type RenderKeyOpts struct {
	// Config is the canonical encoding of the build configuration.
	Config []byte
	// Variants are the canonical keys of the rendered variants, in order.
	Variants []string
	// Env is the environment snapshot the recipe was rendered against.
	Env map[string]string
	// Flags are the render switches that change the result, such as
	// "no-finalize".
	Flags []string
}

// DefaultKeyer produces "render:<hash>" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// RenderKey implements Keyer.
func (DefaultKeyer) RenderKey(recipeDigest string, opts RenderKeyOpts) string {
	return hashKey("render", recipeDigest, opts.Config, opts.Variants, opts.Env, opts.Flags)
}
