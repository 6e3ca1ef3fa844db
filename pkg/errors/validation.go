package errors

import (
	"strings"
	"unicode"
)

// baseBadChars are rejected in every checked recipe field.
const baseBadChars = "=@#$%^&*:;\"'\\|<>?/ "

// Field names with extra character rules.
const (
	FieldPackageName    = "package/name"
	FieldPackageVersion = "package/version"
	FieldBuildString    = "build/string"
)

// CheckBadChars rejects values that cannot appear in a package filename.
//
// Every field rejects the characters in baseBadChars. package/version and
// build/string additionally reject '-', since it separates name, version and
// build in a dist name. Every field except package/version rejects '!'
// because version strings may carry an epoch marker.
func CheckBadChars(s, field string) error {
	bad := baseBadChars
	if field == FieldPackageVersion || field == FieldBuildString {
		bad += "-"
	}
	if field != FieldPackageVersion {
		bad += "!"
	}
	if i := strings.IndexAny(s, bad); i >= 0 {
		return New(ErrCodeSemantic, "bad character '%c' in %s: %s", s[i], field, s)
	}
	return nil
}

// ValidatePath validates a file path within a recipe directory for safety.
// It prevents path traversal when recipe files arrive over the network.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}
