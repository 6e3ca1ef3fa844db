// Package metadata derives the concrete facts of one rendered recipe.
//
// # Overview
//
// A recipe is rendered once per variant. Rendering is iterative: the first
// parse runs with undefined template references tolerated, later parses see
// what earlier ones learned (the package version, the other outputs of the
// recipe) until nothing changes. Two types model this:
//
//   - [Draft] is the mutable working copy. It can be parsed again, copied,
//     re-targeted at another variant and turned into per-output drafts.
//   - [Resolved] is the immutable result of [Draft.Resolve]. Its identity
//     (name, version, build identifier) is validated and computed once;
//     nothing can change it afterwards.
//
// # Derived Fields
//
// The build string is synthesized from the short tags of pinned
// interpreters (py36, np115, ...), the build features and the build number.
// The build identifier stamps a content hash (see package contenthash)
// into it:
//
//	py36_0       -> py36h1a2b3c4_0
//	h0000000_1   -> h1a2b3c4_1
//
// The dist name is name-version-build_identifier.
//
// # Template Helpers
//
// Every parse evaluates the recipe as an HCL template. Besides the
// namespace values the template sees these functions:
//
//	pin_subpackage(name, min_pin, max_pin, exact)
//	pin_compatible(name, lower, upper, min_pin, max_pin, exact)
//	compiler(language)
//	load_file_regex(file, pattern)
//	env(name, default)
//
// Trailing arguments are optional. pin_subpackage consults the other outputs
// rendered so far (see [OutputSet]); exact pins refer to the full
// "name version build" of the other output.
package metadata
