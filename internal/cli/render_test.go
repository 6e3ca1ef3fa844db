package cli

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	rio "github.com/matzehuels/metarender/pkg/io"
	"github.com/matzehuels/metarender/pkg/metadata"
)

func names(records []metadata.InfoRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestRenderJSON(t *testing.T) {
	dir := writeRecipe(t, chainRecipe)

	out, err := runCLI(t, "render", "--json", dir)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	records, err := rio.ReadRecords(strings.NewReader(out))
	if err != nil {
		t.Fatalf("render --json is not JSON lines: %v\n%s", err, out)
	}
	if got, want := names(records), []string{"libb", "liba"}; !cmp.Equal(got, want) {
		t.Errorf("records = %q, want build order %q", got, want)
	}
	if records[0].Build != "0" || records[0].Subdir != "linux-64" {
		t.Errorf("libb = %+v, want build 0 in linux-64", records[0])
	}
}

func TestRenderOutputFile(t *testing.T) {
	dir := writeRecipe(t, chainRecipe)
	path := filepath.Join(t.TempDir(), "index.jsonl")

	out, err := runCLI(t, "render", "-o", path, dir)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if !strings.Contains(out, "liba") || !strings.Contains(out, "Version") {
		t.Errorf("render should print a table of outputs:\n%s", out)
	}

	records, err := rio.ImportRecords(path)
	if err != nil {
		t.Fatalf("ImportRecords() error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("index.jsonl holds %d records, want 2", len(records))
	}
}

func TestRenderVariantFlag(t *testing.T) {
	dir := writeRecipe(t, `package:
  name: foo
  version: "1.0"
requirements:
  run:
    - six  # [py2k]
    - zlib
`)

	depends := func(args ...string) []string {
		t.Helper()
		out, err := runCLI(t, append([]string{"render", "--json"}, args...)...)
		if err != nil {
			t.Fatalf("render error: %v", err)
		}
		records, err := rio.ReadRecords(strings.NewReader(out))
		if err != nil || len(records) != 1 {
			t.Fatalf("want one record, got %d (%v)", len(records), err)
		}
		return records[0].Depends
	}

	if got := depends(dir); slices.Contains(got, "six") {
		t.Errorf("default python 3 should drop six, depends = %q", got)
	}
	if got := depends("--variant", "python=2.7", dir); !slices.Contains(got, "six") {
		t.Errorf("python=2.7 should keep six, depends = %q", got)
	}
}

func TestRenderErrors(t *testing.T) {
	dir := writeRecipe(t, chainRecipe)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing recipe", []string{"render", filepath.Join(t.TempDir(), "nope")}, ""},
		{"bad variant", []string{"render", "--variant", "python", dir}, "key=value"},
		{"json and interactive", []string{"render", "--json", "-i", dir}, "mutually exclusive"},
		{"no recipe argument", []string{"render"}, "accepts 1 arg"},
		{"schema error", []string{"render", writeRecipe(t, "package: {name: foo, version: '1'}\nbogus: {}\n")}, "SCHEMA_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if err == nil {
				t.Fatal("render should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
