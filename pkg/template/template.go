// Package template renders recipe text through HCL string templates.
//
// Recipes interpolate values with ${name} and branch with %{ if cond } ...
// %{ endif }. A literal "${" is written "$${". Functions come from the
// caller (recipe helpers such as pin_subpackage) plus a small set of string
// functions from the cty standard library.
//
// Rendering has two modes. [Permissive] tolerates references to unknown
// variables and functions: they evaluate to unknown values, so arithmetic,
// calls and indexing on them stay unknown, an interpolation of an unknown
// value renders empty and an if directive on one takes its else branch.
// Their names are reported in [Result.Undefined] so the caller can
// re-render once more information is known. [Strict] fails on the first
// such reference.
package template

import (
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/matzehuels/metarender/pkg/errors"
)

// Mode is the undefined-reference policy.
type Mode int

const (
	// Permissive renders undefined references as empty values and records them.
	Permissive Mode = iota
	// Strict rejects undefined references.
	Strict
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}

// Context holds the variables and functions visible to a template.
type Context struct {
	Variables map[string]cty.Value
	Functions map[string]function.Function
}

// Result is the outcome of a render.
type Result struct {
	Text string
	// Undefined lists undefined references, sorted, in dotted form
	// ("name" or "name.attr"). Always empty in Strict mode.
	Undefined []string
}

// StdlibFunctions are available to every template unless the caller
// overrides them.
func StdlibFunctions() map[string]function.Function {
	return map[string]function.Function{
		"upper":     stdlib.UpperFunc,
		"lower":     stdlib.LowerFunc,
		"replace":   stdlib.ReplaceFunc,
		"split":     stdlib.SplitFunc,
		"join":      stdlib.JoinFunc,
		"length":    stdlib.LengthFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"format":    stdlib.FormatFunc,
		"coalesce":  stdlib.CoalesceFunc,
		"element":   stdlib.ElementFunc,
		"regex":     stdlib.RegexFunc,
		"substr":    stdlib.SubstrFunc,
	}
}

// Render evaluates src as a template. filename is used in diagnostics.
func Render(src, filename string, ctx Context, mode Mode) (Result, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return Result{}, errors.New(errors.ErrCodeSyntax, "Failed to render template in %s:\n%s", filename, diags.Error())
	}

	vars := make(map[string]cty.Value, len(ctx.Variables))
	for k, v := range ctx.Variables {
		vars[k] = v
	}
	funcs := StdlibFunctions()
	for k, f := range ctx.Functions {
		funcs[k] = f
	}

	undefined := make(map[string]bool)
	var roots []string
	for _, trav := range expr.Variables() {
		if _, ok := vars[trav.RootName()]; !ok {
			undefined[dottedName(trav)] = true
			roots = append(roots, trav.RootName())
		}
	}
	for name := range undefinedFunctions(expr, funcs) {
		undefined[name] = true
		funcs[name] = unknownFunction
	}

	if mode == Strict && len(undefined) > 0 {
		return Result{}, errors.New(errors.ErrCodeUnresolvedReference,
			"undefined template references in %s: %s", filename, strings.Join(sortedNames(undefined), ", "))
	}
	for _, root := range roots {
		vars[root] = cty.DynamicVal
	}

	r := &renderer{
		ctx:       &hcl.EvalContext{Variables: vars, Functions: funcs},
		filename:  filename,
		mode:      mode,
		undefined: undefined,
	}
	text, err := r.text(expr)
	if err != nil {
		return Result{}, err
	}
	if mode == Strict {
		return Result{Text: text}, nil
	}
	return Result{Text: text, Undefined: sortedNames(undefined)}, nil
}

// renderer evaluates a template one part at a time, so a part that is
// not known yet renders empty without blanking the rest of the document.
type renderer struct {
	ctx       *hcl.EvalContext
	filename  string
	mode      Mode
	undefined map[string]bool
}

func (r *renderer) text(expr hclsyntax.Expression) (string, error) {
	switch e := expr.(type) {
	case *hclsyntax.TemplateExpr:
		var b strings.Builder
		for _, part := range e.Parts {
			s, err := r.text(part)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case *hclsyntax.TemplateWrapExpr:
		return r.text(e.Wrapped)
	case *hclsyntax.ConditionalExpr:
		cond, err := r.condition(e.Condition)
		if err != nil {
			return "", err
		}
		if cond {
			return r.text(e.TrueResult)
		}
		return r.text(e.FalseResult)
	}

	val, err := r.value(expr)
	if err != nil {
		return "", err
	}
	if !val.IsWhollyKnown() {
		return "", r.unknown(expr)
	}
	if val.IsNull() {
		return "", nil
	}
	s, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSyntax, err, "Failed to render template in %s at %s", r.filename, expr.Range())
	}
	return s.AsString(), nil
}

// condition evaluates an if directive. Unknown and null conditions are
// false.
func (r *renderer) condition(expr hclsyntax.Expression) (bool, error) {
	val, err := r.value(expr)
	if err != nil {
		return false, err
	}
	if !val.IsWhollyKnown() {
		return false, r.unknown(expr)
	}
	if val.IsNull() {
		return false, nil
	}
	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeSyntax, err, "Failed to render template in %s: condition at %s", r.filename, expr.Range())
	}
	return b.True(), nil
}

func (r *renderer) value(expr hclsyntax.Expression) (cty.Value, error) {
	val, diags := expr.Value(r.ctx)
	if diags.HasErrors() {
		if err := functionError(diags); err != nil {
			return cty.NilVal, err
		}
		return cty.NilVal, errors.New(errors.ErrCodeSyntax, "Failed to render template in %s:\n%s", r.filename, diags.Error())
	}
	return val, nil
}

// unknown handles a value that cannot be computed yet. Permissive
// renders it empty and makes sure the render reports something undefined.
func (r *renderer) unknown(expr hclsyntax.Expression) error {
	if r.mode == Strict {
		return errors.New(errors.ErrCodeSyntax, "Failed to render template in %s: value at %s is not known", r.filename, expr.Range())
	}
	if len(r.undefined) == 0 {
		r.undefined[expr.Range().String()] = true
	}
	return nil
}

// dottedName is the root of trav plus its leading attribute steps.
func dottedName(trav hcl.Traversal) string {
	parts := []string{trav.RootName()}
	for _, step := range trav[1:] {
		attr, ok := step.(hcl.TraverseAttr)
		if !ok {
			break
		}
		parts = append(parts, attr.Name)
	}
	return strings.Join(parts, ".")
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// functionError returns the coded error a helper function failed with, if
// any, so helper failures keep their classification.
func functionError(diags hcl.Diagnostics) error {
	for _, d := range diags {
		extra, ok := hcl.DiagnosticExtra[hclsyntax.FunctionCallDiagExtra](d)
		if !ok {
			continue
		}
		if err := extra.FunctionCallError(); err != nil && errors.GetCode(err) != "" {
			return err
		}
	}
	return nil
}

// undefinedFunctions collects the names of called functions missing from funcs.
func undefinedFunctions(expr hclsyntax.Expression, funcs map[string]function.Function) map[string]bool {
	missing := make(map[string]bool)
	hclsyntax.VisitAll(expr, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			if _, ok := funcs[call.Name]; !ok {
				missing[call.Name] = true
			}
		}
		return nil
	})
	return missing
}

// unknownFunction stands in for an undefined function in permissive mode.
var unknownFunction = function.New(&function.Spec{
	VarParam: &function.Parameter{Name: "args", Type: cty.DynamicPseudoType, AllowNull: true, AllowUnknown: true, AllowDynamicType: true},
	Type:     function.StaticReturnType(cty.DynamicPseudoType),
	Impl: func([]cty.Value, cty.Type) (cty.Value, error) {
		return cty.DynamicVal, nil
	},
})
