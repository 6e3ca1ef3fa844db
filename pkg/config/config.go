// Package config holds the build configuration consumed by the renderer.
//
// A configuration describes the target platform, the hashing policy and the
// variant matrix a recipe is rendered against. It is read from a TOML file:
//
//	build_subdir = "linux-64"
//	hash_length = 7
//	ignore_version = ["numpy"]
//
//	[matrix]
//	python = ["2.7", "3.6"]
//
//	[[variants]]
//	python = "3.6"
//	numpy = "1.15"
//
// The configuration is a value: renderers copy it per recipe and per variant
// and never write back into the caller's instance.
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/variant"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultBuildSubdir is the platform rendered for when none is configured.
	DefaultBuildSubdir = "linux-64"

	// DefaultHashLength is the number of hex digits in a build hash.
	DefaultHashLength = 7

	// MaxHashLength bounds hash_length to the digest size in hex digits.
	MaxHashLength = 64

	// DefaultMaxWorkers bounds parallel variant resolution.
	DefaultMaxWorkers = 4
)

// archMap maps subdir architecture suffixes onto info-record arch names.
var archMap = map[string]string{
	"32": "x86",
	"64": "x86_64",
}

// Config is the build configuration snapshot.
type Config struct {
	// BuildSubdir is the "<os>-<arch>" platform the recipe is rendered for.
	BuildSubdir string `toml:"build_subdir" json:"build_subdir"`

	// HostSubdir is the subdir recorded in the info record (defaults to BuildSubdir).
	HostSubdir string `toml:"host_subdir" json:"host_subdir"`

	// HostArch overrides the arch recorded in the info record.
	HostArch string `toml:"host_arch" json:"host_arch,omitempty"`

	// Platform is the OS family ("linux", "osx", "win", "noarch").
	// Derived from BuildSubdir when empty.
	Platform string `toml:"platform" json:"platform"`

	// HashLength is the number of hex digits in the build hash segment.
	HashLength int `toml:"hash_length" json:"hash_length"`

	// FilenameHashing stamps a content hash into build identifiers.
	FilenameHashing *bool `toml:"filename_hashing" json:"filename_hashing,omitempty"`

	// IncludeRecipe folds recipe files into the content hash.
	IncludeRecipe *bool `toml:"include_recipe" json:"include_recipe,omitempty"`

	// DisablePip marks rendered recipes as pip-free.
	DisablePip bool `toml:"disable_pip" json:"disable_pip,omitempty"`

	// IgnoreVersion lists dependency-name patterns excluded from the hash.
	IgnoreVersion []string `toml:"ignore_version" json:"ignore_version,omitempty"`

	// PermitUnsatisfiableVariants keeps best-effort metadata when a
	// variant's dependencies cannot be satisfied.
	PermitUnsatisfiableVariants *bool `toml:"permit_unsatisfiable_variants" json:"permit_unsatisfiable_variants,omitempty"`

	// MaxWorkers bounds parallel variant resolution.
	MaxWorkers int `toml:"max_workers" json:"max_workers,omitempty"`

	// ExplicitVariants are rendered as given.
	ExplicitVariants []map[string]string `toml:"variants" json:"variants,omitempty"`

	// Matrix is expanded into the cartesian product of its values.
	Matrix map[string][]string `toml:"matrix" json:"matrix,omitempty"`

	// AppendSectionsFile is merged into every parsed recipe.
	AppendSectionsFile string `toml:"append_sections_file" json:"append_sections_file,omitempty"`

	// ClobberSectionsFile replaces sections of every parsed recipe.
	ClobberSectionsFile string `toml:"clobber_sections_file" json:"clobber_sections_file,omitempty"`

	// Available is the channel index: package name to "version build" entries.
	Available map[string][]string `toml:"available" json:"available,omitempty"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	_ = c.ValidateAndSetDefaults()
	return c
}

// Load reads a TOML configuration file and applies defaults.
func Load(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s", path)
		}
		return c, err
	}
	return Decode(string(data))
}

// Decode parses TOML text and applies defaults.
func Decode(text string) (Config, error) {
	var c Config
	md, err := toml.Decode(text, &c)
	if err != nil {
		return c, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return c, errors.New(errors.ErrCodeInvalidInput, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := c.ValidateAndSetDefaults(); err != nil {
		return c, err
	}
	return c, nil
}

// ValidateAndSetDefaults checks field values and fills in defaults.
// This method is idempotent.
func (c *Config) ValidateAndSetDefaults() error {
	if c.validated {
		return nil
	}
	if c.BuildSubdir == "" {
		c.BuildSubdir = DefaultBuildSubdir
	}
	if !strings.Contains(c.BuildSubdir, "-") && c.BuildSubdir != "noarch" {
		return errors.New(errors.ErrCodeInvalidInput, "build_subdir must look like <os>-<arch>, got %q", c.BuildSubdir)
	}
	if c.HostSubdir == "" {
		c.HostSubdir = c.BuildSubdir
	}
	if c.Platform == "" {
		c.Platform, _, _ = strings.Cut(c.BuildSubdir, "-")
	}
	if c.HashLength == 0 {
		c.HashLength = DefaultHashLength
	}
	if c.HashLength < 1 || c.HashLength > MaxHashLength {
		return errors.New(errors.ErrCodeInvalidInput, "hash_length must be between 1 and %d, got %d", MaxHashLength, c.HashLength)
	}
	if c.FilenameHashing == nil {
		c.FilenameHashing = boolPtr(true)
	}
	if c.IncludeRecipe == nil {
		c.IncludeRecipe = boolPtr(true)
	}
	if c.PermitUnsatisfiableVariants == nil {
		c.PermitUnsatisfiableVariants = boolPtr(true)
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	c.validated = true
	return nil
}

// Hashing reports whether build identifiers carry a content hash.
func (c Config) Hashing() bool { return c.FilenameHashing == nil || *c.FilenameHashing }

// RecipeIncluded reports whether recipe files are folded into the hash.
func (c Config) RecipeIncluded() bool { return c.IncludeRecipe == nil || *c.IncludeRecipe }

// PermitUnsatisfiable reports whether unsatisfiable variants are tolerated.
func (c Config) PermitUnsatisfiable() bool {
	return c.PermitUnsatisfiableVariants == nil || *c.PermitUnsatisfiableVariants
}

// Arch returns the architecture part of the host subdir, or HostArch when set.
func (c Config) Arch() string {
	if c.HostArch != "" {
		return c.HostArch
	}
	_, arch, _ := strings.Cut(c.HostSubdir, "-")
	return arch
}

// InfoArch maps Arch onto the name recorded in info records.
func (c Config) InfoArch() string {
	arch := c.Arch()
	if mapped, ok := archMap[arch]; ok {
		return mapped
	}
	return arch
}

// Variants returns the expanded variant set: explicit entries first, then
// the matrix product. Duplicates are dropped. An empty configuration yields
// a single empty variant so every recipe renders at least once.
func (c Config) Variants() []variant.Variant {
	var out []variant.Variant
	for _, v := range c.ExplicitVariants {
		out = append(out, variant.Variant(v).Clone())
	}
	out = append(out, variant.Product(c.Matrix)...)
	out = variant.Dedupe(out)
	if len(out) == 0 {
		out = []variant.Variant{{}}
	}
	return out
}

// WithPlatform returns a copy targeting a different subdir. Platform and host
// subdir are re-derived.
func (c Config) WithPlatform(subdir string) Config {
	c.BuildSubdir = subdir
	c.HostSubdir = subdir
	c.Platform = ""
	c.validated = false
	_ = c.ValidateAndSetDefaults()
	return c
}

func boolPtr(b bool) *bool { return &b }
