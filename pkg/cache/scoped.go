package cache

// ScopedKeyer wraps a Keyer with a prefix so that several tenants, for
// instance different channels served by one server, share a backend
// without sharing entries.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "channel:conda-forge:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// RenderKey generates a prefixed render key.
func (k *ScopedKeyer) RenderKey(recipeDigest string, opts RenderKeyOpts) string {
	return k.prefix + k.inner.RenderKey(recipeDigest, opts)
}
