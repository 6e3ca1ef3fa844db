package recipe

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/matzehuels/metarender/pkg/errors"
)

// RequirementsFile is read when a recipe declares no run requirements.
const RequirementsFile = "requirements.txt"

// specLine splits a requirement line into a name and the rest.
var specLine = regexp.MustCompile(`^([^=<>!\s]+)\s*(.*)$`)

// ReadRequirementsTxt reads a pip-style requirements file into dependency
// strings. Blank lines and comments are skipped.
func ReadRequirementsTxt(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "requirements file %s", path)
		}
		return nil, err
	}
	defer f.Close()

	var specs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		spec, ok := SpecFromLine(line)
		if !ok {
			return nil, errors.New(errors.ErrCodeSyntax, "could not parse '%s' in: %s", line, path)
		}
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return specs, nil
}

// SpecFromLine converts "numpy>=1.10" or "numpy =1.10=py27" into the
// space-separated dependency form.
func SpecFromLine(line string) (string, bool) {
	m := specLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	name, rest := strings.ToLower(m[1]), strings.TrimSpace(m[2])
	switch {
	case rest == "":
		return name, true
	case strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "=="):
		return name + strings.ReplaceAll(rest, "=", " "), true
	default:
		return name + " " + strings.ReplaceAll(rest, " ", ""), true
	}
}
