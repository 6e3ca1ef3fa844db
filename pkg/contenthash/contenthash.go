// Package contenthash computes the short content hash stamped into build
// identifiers.
//
// The hash covers a projection of the recipe (requirements, build section
// without its self-referential keys, source) plus the bytes of the recipe
// directory's files. Two recipes with byte-identical projections always
// hash the same, on any platform and in any process.
package contenthash

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/tree"
)

// HashInputFiles, when present next to the recipe directory, lists the
// files to hash instead of walking the directory.
const HashInputFiles = "hash_input_files"

// mutableBuildKeys change without changing what gets built.
var mutableBuildKeys = []string{"number", "string", "noarch", "noarch_python"}

// excludedFiles are never hashed, relative to the recipe directory.
var excludedFiles = []*regexp.Regexp{
	regexp.MustCompile(`^(.*/)?\.git/.*`),
	regexp.MustCompile(`^(.*/)?\.git$`),
	regexp.MustCompile(`^(.*)?\.DS_Store.*`),
	regexp.MustCompile(`^.*\.la$`),
	regexp.MustCompile(`^conda-meta.*`),
}

// HashInputSet is the exact input of [Compute].
type HashInputSet struct {
	// Composite is the filtered document projection.
	Composite *tree.Mapping
	// Dir is the recipe directory the file paths are relative to.
	Dir string
	// Files are slash-separated paths, sorted.
	Files []string
}

// Options controls which inputs are collected.
type Options struct {
	// RecipeDir is walked for files. Empty means no files are hashed.
	RecipeDir string
	// RecipeFile is the recipe document's own name, never hashed.
	RecipeFile string
	// IncludeRecipe folds recipe files into the hash.
	IncludeRecipe bool
	// IgnoreVersion lists patterns of build requirements left out.
	IgnoreVersion []string
}

// Inputs projects doc into a HashInputSet.
func Inputs(doc *tree.Mapping, opts Options) (HashInputSet, error) {
	composite := tree.NewMapping()

	reqs := tree.NewMapping()
	if m, ok := doc.Mapping("requirements"); ok {
		reqs = m.Clone()
	}
	build := tree.NewMapping()
	if m, ok := doc.Mapping("build"); ok {
		build = m.Clone()
	}
	composite.Set("requirements", reqs)
	composite.Set("build", build)
	if src, ok := doc.Get("source"); ok && !tree.IsEmpty(src) {
		composite.Set("source", tree.Clone(src))
	}

	buildReqs, _ := reqs.Get("build")
	kept, err := filterIgnored(tree.Strings(buildReqs), opts.IgnoreVersion)
	if err != nil {
		return HashInputSet{}, err
	}
	reqs.Set("build", tree.StringSeq(kept...))

	for _, k := range mutableBuildKeys {
		build.Delete(k)
	}
	if build.Len() == 0 {
		composite.Delete("build")
	}
	for _, k := range []string{"build", "run"} {
		if v, ok := reqs.Get(k); ok && tree.IsEmpty(v) {
			reqs.Delete(k)
		}
	}

	var files []string
	if opts.RecipeDir != "" && opts.IncludeRecipe {
		files, err = recipeFiles(opts.RecipeDir, opts.RecipeFile)
		if err != nil {
			return HashInputSet{}, err
		}
	}
	tree.TrimEmpty(composite)
	sort.Strings(files)
	return HashInputSet{Composite: composite, Dir: opts.RecipeDir, Files: files}, nil
}

// filterIgnored drops requirements whose text starts with one of patterns.
func filterIgnored(reqs, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return reqs, nil
	}
	alts := make([]string, len(patterns))
	for i, p := range patterns {
		alts[i] = p + `[\s$]?.*`
	}
	re, err := regexp.Compile(`^(?:` + strings.Join(alts, "|") + `)`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid ignore_version pattern")
	}
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if !re.MatchString(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// recipeFiles lists the hashable files under dir.
func recipeFiles(dir, recipeFile string) ([]string, error) {
	listing := filepath.Join(dir, "..", HashInputFiles)
	if data, err := os.ReadFile(listing); err == nil {
		var files []string
		sc := bufio.NewScanner(strings.NewReader(string(data)))
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				files = append(files, line)
			}
		}
		return files, nil
	}

	if recipeFile == "" {
		recipeFile = "meta.yaml"
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == recipeFile || strings.HasPrefix(rel, "run_test") {
			return nil
		}
		for _, re := range excludedFiles {
			if re.MatchString(rel) {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk recipe dir: %w", err)
	}
	return files, nil
}

// Compute hashes set and formats the digest as "h" followed by hashLength
// lowercase hex digits.
func Compute(set HashInputSet, hashLength int) (string, error) {
	h := blake3.New()
	data, err := tree.MarshalCanonical(set.Composite)
	if err != nil {
		return "", err
	}
	h.Write(data)

	files := append([]string(nil), set.Files...)
	sort.Strings(files)
	for _, rel := range files {
		if err := hashFile(h, filepath.Join(set.Dir, filepath.FromSlash(rel))); err != nil {
			return "", err
		}
	}

	digest := "h" + hex.EncodeToString(h.Sum(nil))
	if n := hashLength + 1; n < len(digest) {
		digest = digest[:n]
	}
	return digest, nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeFileNotFound, err, "hash input %s", path)
		}
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	return nil
}
