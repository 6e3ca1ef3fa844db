package selector

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/metarender/pkg/errors"
)

// selectorPattern matches a line carrying a trailing selector.
//
// Group 1 is the content. With a '#' comment (group 2) the selector is the
// last bracket pair inside the comment and trailing text is allowed (group 3);
// without one the bracket pair must end the line (group 4). The comment
// alternative is tried first, matching leftmost-first preference.
var selectorPattern = regexp.MustCompile(`^(.+?)\s*(?:(#.*)\[([^\[\]]+)\].*|\[([^\[\]]+)\])$`)

// Split returns the content and selector expression of a line, if it has one.
func Split(line string) (content, expr string, ok bool) {
	m := selectorPattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	if m[3] != "" {
		return m[1], m[3], true
	}
	return m[1], m[4], true
}

// Filter keeps the recipe lines whose selector holds in ns.
//
// Lines are right-trimmed. Comment-only lines are dropped. A line without a
// selector is kept verbatim; a line with one keeps only its content, and only
// when the selector is true. A line ending in a quote gets the quote
// re-appended after the selector is stripped. Output lines are joined by
// "\n" with a single trailing newline.
//
// Unknown identifiers are treated as False and logged at warn level on
// logger (log.Default() when nil). Any evaluation failure aborts the pass
// with a line-numbered SYNTAX_ERROR.
func Filter(text string, ns Namespace, logger *log.Logger) (string, error) {
	if logger == nil {
		logger = log.Default()
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimRight(line, " \t\r\f\v")

		trailingQuote := ""
		if n := len(line); n > 0 && (line[n-1] == '\'' || line[n-1] == '"') {
			trailingQuote = line[n-1:]
		}

		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			continue
		}

		content, expr, ok := Split(line)
		if !ok {
			kept = append(kept, line)
			continue
		}
		keep, missing, err := Evaluate(expr, ns)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeSyntax, err, "Invalid selector in meta.yaml line %d:\n%s", i+1, line)
		}
		for _, name := range missing {
			logger.Warnf("Treating unknown selector '%s' as if it was False.", name)
		}
		if keep {
			kept = append(kept, content+trailingQuote)
		}
	}
	return strings.Join(kept, "\n") + "\n", nil
}
