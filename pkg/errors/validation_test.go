package errors

import (
	"strings"
	"testing"
)

func TestCheckBadChars(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		field   string
		wantErr bool
	}{
		{"plain name", "numpy", FieldPackageName, false},
		{"name with dash", "r-base", FieldPackageName, false},
		{"name with dot", "python.app", FieldPackageName, false},
		{"name with space", "my pkg", FieldPackageName, true},
		{"name with bang", "foo!", FieldPackageName, true},
		{"name with slash", "foo/bar", FieldPackageName, true},
		{"name with equals", "foo=1", FieldPackageName, true},

		{"version plain", "1.2.3", FieldPackageVersion, false},
		{"version with epoch", "1!2.0", FieldPackageVersion, false},
		{"version with dash", "1.2-3", FieldPackageVersion, true},
		{"version with colon", "1:2", FieldPackageVersion, true},

		{"build string plain", "py36h1234567_0", FieldBuildString, false},
		{"build string dash", "py36-0", FieldBuildString, true},
		{"build string bang", "py36!0", FieldBuildString, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBadChars(tt.value, tt.field)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckBadChars(%q, %q) error = %v, wantErr %v", tt.value, tt.field, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeSemantic) {
				t.Errorf("CheckBadChars(%q) code = %v, want %v", tt.value, GetCode(err), ErrCodeSemantic)
			}
		})
	}
}

func TestCheckBadCharsMessage(t *testing.T) {
	err := CheckBadChars("1.0-1", FieldPackageVersion)
	if err == nil {
		t.Fatal("CheckBadChars() = nil, want error")
	}
	want := "bad character '-' in package/version: 1.0-1"
	if got := UserMessage(err); got != want {
		t.Errorf("UserMessage() = %q, want %q", got, want)
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "build.sh", false},
		{"valid nested", "patches/fix-build.patch", false},
		{"valid with dots", "v1.2.3/meta.yaml", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 600), true},
		{"absolute path", "/etc/passwd", true},
		{"path traversal", "../../../etc/passwd", true},
		{"path traversal middle", "foo/../bar", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPath) {
				t.Errorf("ValidatePath(%q) returned wrong error code: %v", tt.input, err)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeSyntax,
		ErrCodeSchema,
		ErrCodeSemantic,
		ErrCodeUnresolvedReference,
		ErrCodeUnsatisfiableVariant,
		ErrCodeCircularBuildDependency,
		ErrCodeCircularExactPin,
		ErrCodeNonConvergent,
		ErrCodeInvalidInput,
		ErrCodeInvalidPath,
		ErrCodeFileNotFound,
		ErrCodeInternal,
	}

	seen := make(map[Code]bool)
	for _, c := range codes {
		if seen[c] {
			t.Errorf("duplicate error code: %s", c)
		}
		seen[c] = true
	}
}
