package metadata

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/matchspec"
	"github.com/matzehuels/metarender/pkg/namespace"
	"github.com/matzehuels/metarender/pkg/recipe"
	"github.com/matzehuels/metarender/pkg/selector"
	"github.com/matzehuels/metarender/pkg/template"
	"github.com/matzehuels/metarender/pkg/tree"
	"github.com/matzehuels/metarender/pkg/variant"
)

const (
	// RecipeFile is the recipe document looked up in a recipe directory.
	RecipeFile = "meta.yaml"

	// AppendSectionsFile and ClobberSectionsFile are merged into the parsed
	// recipe when present in the recipe directory.
	AppendSectionsFile  = "recipe_append.yaml"
	ClobberSectionsFile = "recipe_clobber.yaml"

	// MaxResolveIterations bounds the permissive re-parse loop of
	// ParseUntilResolved.
	MaxResolveIterations = 10
)

// pipDictFields may not hold mappings.
var pipDictFields = []string{"requirements/build", "requirements/run", "test/requires"}

// requirementsSection extracts the raw requirements block of a recipe.
var requirementsSection = regexp.MustCompile(`(?ms)(^requirements:.*?)(^test:|^extra:|^about:|^outputs:|\z)`)

// subpackagePin detects a pin_subpackage call in raw recipe text.
var subpackagePin = regexp.MustCompile(`\$\{\s*pin_subpackage\(`)

// Options controls one parse.
type Options struct {
	// Permissive tolerates undefined template references.
	Permissive bool
	// AllowNoOtherOutputs lets pin_subpackage fall back to the bare name
	// before the other outputs of the recipe are known.
	AllowNoOtherOutputs bool
	// BypassEnvCheck skips compatibility lookups in pin_compatible.
	BypassEnvCheck bool
}

// Draft is the mutable working copy of a recipe rendered for one variant.
// A Draft is not safe for concurrent use; copy it instead.
type Draft struct {
	view
	env          namespace.Env
	undefined    []string
	otherOutputs *OutputSet
}

// Load reads the recipe at path (a recipe file or a directory holding
// meta.yaml) and performs the first, permissive parse.
func Load(ctx context.Context, path string, cfg config.Config, v variant.Variant, env namespace.Env, logger *log.Logger) (*Draft, error) {
	metaPath, err := findRecipe(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &Draft{
		view: view{
			doc:      tree.NewMapping(),
			cfg:      cfg,
			variant:  v.Clone(),
			path:     filepath.Dir(metaPath),
			metaPath: metaPath,
			logger:   logger,
		},
		env: env,
	}
	if err := d.ParseAgain(ctx, Options{Permissive: true, AllowNoOtherOutputs: true}); err != nil {
		return nil, err
	}
	return d, nil
}

// FromDocument wraps an already-parsed document. The result has no recipe
// directory: nothing is re-read and no recipe files are hashed.
func FromDocument(doc *tree.Mapping, cfg config.Config, v variant.Variant, logger *log.Logger) (*Draft, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &Draft{view: view{doc: doc.Clone(), cfg: cfg, variant: v.Clone(), logger: logger}}
	if err := recipe.Sanitize(d.doc); err != nil {
		return nil, err
	}
	return d, nil
}

func findRecipe(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "no recipe at %s", path)
		}
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	metaPath := filepath.Join(path, RecipeFile)
	if _, err := os.Stat(metaPath); err != nil {
		return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "no %s found in %s", RecipeFile, path)
	}
	return metaPath, nil
}

// Copy returns an independent copy sharing only the other-outputs set.
func (d *Draft) Copy() *Draft {
	c := *d
	c.view = d.view.clone()
	c.undefined = slices.Clone(d.undefined)
	return &c
}

// WithVariant returns a copy rendered for v. The document is not re-parsed.
func (d *Draft) WithVariant(v variant.Variant) *Draft {
	c := d.Copy()
	c.variant = v.Clone()
	return c
}

// SetOtherOutputs makes the outputs rendered so far visible to
// pin_subpackage.
func (d *Draft) SetOtherOutputs(s *OutputSet) { d.otherOutputs = s }

// OtherOutputs returns the set given to SetOtherOutputs, or nil.
func (d *Draft) OtherOutputs() *OutputSet { return d.otherOutputs }

// Undefined returns the template references left undefined by the last
// permissive parse.
func (d *Draft) Undefined() []string { return slices.Clone(d.undefined) }

// Name returns the validated package name.
func (d *Draft) Name() (string, error) { return d.name() }

// Version returns the validated package version.
func (d *Draft) Version() (string, error) { return d.version() }

// BuildNumber returns build/number and whether it is set to an integer.
func (d *Draft) BuildNumber() (int, bool) { return d.buildNumber() }

// Dependencies parses the requirements of phase.
func (d *Draft) Dependencies(phase string) ([]matchspec.MatchSpec, error) {
	return d.dependencies(phase)
}

// BuildString returns build/string, or the synthesized build string.
func (d *Draft) BuildString() (string, error) { return d.buildString() }

// BuildID returns the hash-stamped build identifier.
func (d *Draft) BuildID() (string, error) { return d.buildID() }

// Dist returns name-version-build_identifier.
func (d *Draft) Dist() (string, error) { return d.dist() }

// ParseAgain re-reads and re-renders the recipe document with everything
// the draft knows so far. Drafts without a recipe file only re-apply the
// configured section files and the validation steps.
func (d *Draft) ParseAgain(ctx context.Context, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ns, err := namespace.Build(d.cfg, d.variant, d.env)
	if err != nil {
		return err
	}

	appendFile, clobberFile := d.cfg.AppendSectionsFile, d.cfg.ClobberSectionsFile
	if d.metaPath != "" {
		if err := d.parseFile(ns, opts); err != nil {
			return err
		}
		if appendFile == "" {
			appendFile = filepath.Join(d.path, AppendSectionsFile)
		}
		if clobberFile == "" {
			clobberFile = filepath.Join(d.path, ClobberSectionsFile)
		}
	}
	if err := d.mergeSections(appendFile, ns, false); err != nil {
		return err
	}
	if err := d.mergeSections(clobberFile, ns, true); err != nil {
		return err
	}

	if err := d.validateFeatures(); err != nil {
		return err
	}
	if err := d.ensureNoPipRequirements(); err != nil {
		return err
	}
	d.appendRequirements()
	return nil
}

func (d *Draft) parseFile(ns *namespace.Namespace, opts Options) error {
	raw, err := os.ReadFile(d.metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeFileNotFound, err, "recipe %s", d.metaPath)
		}
		return err
	}
	filtered, err := selector.Filter(string(raw), ns, d.logger)
	if err != nil {
		return err
	}

	mode := template.Strict
	if opts.Permissive {
		mode = template.Permissive
	}
	res, err := template.Render(filtered, d.metaPath, d.templateContext(ns, opts), mode)
	if err != nil {
		return err
	}
	d.undefined = res.Undefined

	doc, err := recipe.ParseFiltered(res.Text, d.metaPath)
	if err != nil {
		return err
	}
	d.doc = doc

	if len(recipe.Strings(d.doc, "requirements/run")) == 0 {
		reqPath := filepath.Join(d.path, recipe.RequirementsFile)
		if _, err := os.Stat(reqPath); err == nil {
			specs, err := recipe.ReadRequirementsTxt(reqPath)
			if err != nil {
				return err
			}
			d.doc.Ensure("requirements").Set("run", tree.StringSeq(specs...))
		}
	}
	return nil
}

// mergeSections merges the recipe fragment at path into the document.
// A missing file is skipped.
func (d *Draft) mergeSections(path string, ns *namespace.Namespace, clobber bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Debug("section file does not exist", "path", path)
			return nil
		}
		return err
	}
	fragment, err := recipe.Parse(string(data), ns, path, d.logger)
	if err != nil {
		return err
	}
	tree.Merge(d.doc, fragment, clobber)
	return nil
}

func (d *Draft) validateFeatures() error {
	for _, f := range recipe.Strings(d.doc, "build/features") {
		if strings.Contains(f, "-") {
			return errors.New(errors.ErrCodeSemantic,
				"- is a disallowed character in features.  Please change this character in your recipe.")
		}
	}
	return nil
}

func (d *Draft) ensureNoPipRequirements() error {
	for _, field := range pipDictFields {
		val, _ := recipe.GetValue(d.doc, field)
		seq, _ := val.(tree.Sequence)
		for _, item := range seq {
			if item.Kind() == tree.KindMapping {
				return errors.New(errors.ErrCodeSemantic,
					"Dictionaries are not supported as values in requirements sections.  "+
						"Note that pip requirements as used in conda-env environment.yml files are not supported.")
			}
		}
	}
	return nil
}

// appendRequirements adds requirements implied by the configuration.
func (d *Draft) appendRequirements() {
	if !recipe.Bool(d.doc, "build/osx_is_app", false) || d.cfg.Platform != "osx" {
		return
	}
	run := recipe.Strings(d.doc, "requirements/run")
	if slices.Contains(run, "python.app") {
		return
	}
	d.doc.Ensure("requirements").Set("run", tree.StringSeq(append(run, "python.app")...))
}

// ParseUntilResolved re-parses permissively until the set of undefined
// template references stops changing, then parses once more in strict
// mode. A stable non-empty set is an UNRESOLVED_REFERENCE error.
func (d *Draft) ParseUntilResolved(ctx context.Context, opts Options) error {
	permissive := opts
	permissive.Permissive = true
	if err := d.ParseAgain(ctx, permissive); err != nil {
		return err
	}

	var prev []string
	for i := 0; !slices.Equal(prev, d.undefined); i++ {
		if i >= MaxResolveIterations {
			return errors.New(errors.ErrCodeUnresolvedReference,
				"template references did not settle after %d passes (%s)", MaxResolveIterations, strings.Join(d.undefined, ", "))
		}
		prev = d.undefined
		if err := d.ParseAgain(ctx, permissive); err != nil {
			return err
		}
	}
	if len(prev) > 0 {
		return errors.New(errors.ErrCodeUnresolvedReference,
			"Undefined template variables remain (%s).  Please enable source downloading and try again.",
			strings.Join(prev, ", "))
	}

	strict := opts
	strict.Permissive = false
	return d.ParseAgain(ctx, strict)
}

// UsesSubpackage reports whether the top-level requirements refer to one of
// the declared outputs, directly or through pin_subpackage.
func (d *Draft) UsesSubpackage() bool {
	run := recipe.Strings(d.doc, "requirements/run")
	for _, out := range recipe.Outputs(d.doc) {
		name, ok := out.Name()
		if !ok {
			continue
		}
		re := regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `(\s|$)`)
		for _, req := range run {
			if re.MatchString(req) {
				return true
			}
		}
	}
	if d.metaPath == "" {
		return false
	}
	raw, err := os.ReadFile(d.metaPath)
	if err != nil {
		return false
	}
	m := requirementsSection.FindSubmatch(raw)
	return m != nil && subpackagePin.Match(m[1])
}

// OutputMetadata derives the draft of one output descriptor. The receiver
// is not modified.
func (d *Draft) OutputMetadata(out recipe.Output) (*Draft, error) {
	name, err := d.Name()
	if err != nil {
		return nil, err
	}
	version, err := d.Version()
	if err != nil {
		return nil, err
	}

	om := d.Copy()
	om.final = false
	outName, named := out.Name()
	if !named {
		outName = name
	}
	pkg := om.doc.Ensure("package")
	if outName != name {
		pkg.Set("name", tree.Scalar(outName))
		if test, ok := om.doc.Mapping("test"); ok {
			test.Delete("commands")
			test.Delete("imports")
		}
		build := om.doc.Ensure("build")
		if ep, ok := out.Get("entry_points"); ok {
			build.Set("entry_points", tree.Clone(ep))
		} else {
			build.Delete("entry_points")
		}
		om.path, om.metaPath = "", ""
	}
	if !out.IsConda() {
		pkg.Set("name", tree.Scalar(outName+"_"+out.Type()))
	}

	buildReqs, runReqs, constrained := out.Requirements()
	hostReqs := out.HostRequirements()
	if named {
		self := regexp.MustCompile(`^` + regexp.QuoteMeta(outName) + `(\s|$)`)
		buildReqs = slices.DeleteFunc(buildReqs, self.MatchString)
		hostReqs = slices.DeleteFunc(hostReqs, self.MatchString)
		runReqs = slices.DeleteFunc(runReqs, self.MatchString)
	}
	if about, ok := out.Get("about"); ok {
		om.doc.Set("about", tree.Clone(about))
	}
	reqs := tree.NewMapping()
	reqs.Set("build", tree.StringSeq(buildReqs...))
	if len(hostReqs) > 0 {
		reqs.Set("host", tree.StringSeq(hostReqs...))
	}
	reqs.Set("run", tree.StringSeq(runReqs...))
	if len(constrained) > 0 {
		reqs.Set("run_constrained", tree.StringSeq(constrained...))
	}
	om.doc.Set("requirements", reqs)

	if v := out.String("version"); v != "" {
		pkg.Set("version", tree.Scalar(v))
	} else {
		pkg.Set("version", tree.Scalar(version))
	}

	if pkg.String("name") != name {
		parent := tree.NewMapping()
		parent.Set("path", tree.Scalar(d.path))
		parent.Set("name", tree.Scalar(name))
		parent.Set("version", tree.Scalar(version))
		om.doc.Ensure(recipe.SectionExtra).Set("parent_recipe", parent)
	}

	build := om.doc.Ensure("build")
	for _, key := range []string{"noarch", "noarch_python"} {
		if v, ok := out.Get(key); ok && recipe.Truthy(v) {
			build.Set(key, tree.Clone(v))
		} else {
			build.Delete(key)
		}
	}
	if re, ok := out.Get("run_exports"); ok && !tree.IsEmpty(re) {
		build.Set("run_exports", tree.Clone(re))
	}
	if build.Len() == 0 {
		om.doc.Delete("build")
	}
	return om, nil
}

// Resolve validates the draft and freezes it.
func (d *Draft) Resolve() (*Resolved, error) {
	v := d.view.clone()
	v.final = true
	return newResolved(v)
}
