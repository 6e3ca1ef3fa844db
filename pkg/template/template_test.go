package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/matzehuels/metarender/pkg/errors"
)

func TestRenderInterpolation(t *testing.T) {
	ctx := Context{Variables: map[string]cty.Value{
		"name":   cty.StringVal("foo"),
		"number": cty.NumberIntVal(3),
		"py3k":   cty.True,
	}}
	src := "package:\n  name: ${upper(name)}\nbuild:\n  number: ${number}\n%{ if py3k }python: 3%{ endif }\n"

	res, err := Render(src, "meta.yaml", ctx, Strict)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	want := "package:\n  name: FOO\nbuild:\n  number: 3\npython: 3\n"
	if res.Text != want {
		t.Errorf("Render() = %q, want %q", res.Text, want)
	}
	if len(res.Undefined) != 0 {
		t.Errorf("Undefined = %v, want none", res.Undefined)
	}
}

func TestRenderEscape(t *testing.T) {
	res, err := Render("echo $${HOME}", "meta.yaml", Context{}, Strict)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if res.Text != "echo ${HOME}" {
		t.Errorf("Render() = %q, want %q", res.Text, "echo ${HOME}")
	}
}

func TestRenderPermissiveUndefined(t *testing.T) {
	src := "a: ${missing}\nb: ${data.version.major}\nc: ${nofunc(\"x\")}\nd: ok\n"

	res, err := Render(src, "meta.yaml", Context{}, Permissive)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if want := "a: \nb: \nc: \nd: ok\n"; res.Text != want {
		t.Errorf("Render() = %q, want %q", res.Text, want)
	}
	want := []string{"data.version.major", "missing", "nofunc"}
	if diff := cmp.Diff(want, res.Undefined); diff != "" {
		t.Errorf("Undefined mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderStrictUndefined(t *testing.T) {
	_, err := Render("a: ${missing}", "meta.yaml", Context{}, Strict)
	if err == nil {
		t.Fatal("Render() error = nil, want error")
	}
	if !errors.Is(err, errors.ErrCodeUnresolvedReference) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeUnresolvedReference)
	}
}

func TestRenderSyntaxError(t *testing.T) {
	_, err := Render("a: ${name", "meta.yaml", Context{}, Permissive)
	if err == nil {
		t.Fatal("Render() error = nil, want error")
	}
	if !errors.Is(err, errors.ErrCodeSyntax) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeSyntax)
	}
}

func TestRenderKeepsFunctionErrorCode(t *testing.T) {
	failing := function.New(&function.Spec{
		Params: []function.Parameter{{Name: "name", Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.NilVal, errors.New(errors.ErrCodeUnsatisfiableVariant, "no version for %s", args[0].AsString())
		},
	})
	ctx := Context{Functions: map[string]function.Function{"pin": failing}}

	_, err := Render(`run: ${pin("numpy")}`, "meta.yaml", ctx, Permissive)
	if err == nil {
		t.Fatal("Render() error = nil, want error")
	}
	if !errors.Is(err, errors.ErrCodeUnsatisfiableVariant) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeUnsatisfiableVariant)
	}
}

func TestModeString(t *testing.T) {
	if Permissive.String() != "permissive" || Strict.String() != "strict" {
		t.Errorf("Mode strings = %q, %q", Permissive, Strict)
	}
}

func TestRenderPermissiveUnknownOperands(t *testing.T) {
	ctx := Context{Variables: map[string]cty.Value{"py": cty.NumberIntVal(36)}}
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"condition", "string: %{ if with_debug }dbg%{ else }rel%{ endif }\n", "string: rel\n"},
		{"arithmetic", "number: ${py + offset}\nname: foo\n", "number: \nname: foo\n"},
		{"call", "name: ${upper(prefix)}-x\n", "name: -x\n"},
		{"index", "version: ${parts[1]}\n", "version: \n"},
		{"conditional expression", "v: ${flag ? \"a\" : \"b\"}\n", "v: b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Render(tt.src, "meta.yaml", ctx, Permissive)
			if err != nil {
				t.Fatalf("Render() error: %v", err)
			}
			if res.Text != tt.want {
				t.Errorf("Render() = %q, want %q", res.Text, tt.want)
			}
			if len(res.Undefined) != 1 {
				t.Errorf("Undefined = %v, want the one missing variable", res.Undefined)
			}
		})
	}
}

func TestRenderUnknownResult(t *testing.T) {
	// a null argument to a parameter without AllowDynamicType makes cty
	// skip the call and return an unknown result
	pin := function.New(&function.Spec{
		Params:   []function.Parameter{{Name: "name", Type: cty.String}},
		VarParam: &function.Parameter{Name: "args", Type: cty.DynamicPseudoType, AllowNull: true},
		Type:     function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return args[0], nil
		},
	})
	ctx := Context{Functions: map[string]function.Function{"pin": pin}}
	src := "package:\n  name: foo\nrun:\n  - ${pin(\"numpy\", null)}\n"

	_, err := Render(src, "meta.yaml", ctx, Strict)
	if !errors.Is(err, errors.ErrCodeSyntax) {
		t.Fatalf("strict: Render() error = %v, want %v", err, errors.ErrCodeSyntax)
	}

	res, err := Render(src, "meta.yaml", ctx, Permissive)
	if err != nil {
		t.Fatalf("permissive: Render() error: %v", err)
	}
	if want := "package:\n  name: foo\nrun:\n  - \n"; res.Text != want {
		t.Errorf("permissive: Render() = %q, want %q", res.Text, want)
	}
	if len(res.Undefined) != 1 {
		t.Errorf("permissive: Undefined = %v, want the unknown value's location", res.Undefined)
	}
}

func TestRenderPartsIndependently(t *testing.T) {
	ctx := Context{Variables: map[string]cty.Value{"name": cty.StringVal("foo")}}
	res, err := Render("name: ${name}\nversion: ${version}\n", "meta.yaml", ctx, Permissive)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if want := "name: foo\nversion: \n"; res.Text != want {
		t.Errorf("Render() = %q, want %q", res.Text, want)
	}
}
