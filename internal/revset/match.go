package revset

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// A matcher reports whether a candidate string satisfies a user pattern.
type matcher func(string) bool

// splitPattern separates an explicit kind prefix (literal:, glob:, re:)
// from the pattern body. Unprefixed patterns get the caller's default.
func splitPattern(pat, defaultKind string) (kind, body string) {
	for _, k := range []string{"literal", "glob", "re"} {
		if strings.HasPrefix(pat, k+":") {
			return k, pat[len(k)+1:]
		}
	}
	return defaultKind, pat
}

// compilePattern builds a matcher for pat. defaultKind applies when the
// pattern carries no kind prefix; exact reports whether the resulting
// matcher is a plain literal comparison, which callers use to pick a
// cheaper lookup path.
func compilePattern(pat, defaultKind string) (m matcher, exact bool, err error) {
	kind, body := splitPattern(pat, defaultKind)
	switch kind {
	case "literal":
		return func(s string) bool { return s == body }, true, nil
	case "re":
		re, err := regexp.Compile(body)
		if err != nil {
			return nil, false, argErr("invalid match pattern: %s", err)
		}
		return re.MatchString, false, nil
	case "glob":
		if !doublestar.ValidatePattern(body) {
			return nil, false, argErr("invalid match pattern: syntax error in pattern %q", body)
		}
		return func(s string) bool {
			ok, _ := doublestar.Match(body, s)
			return ok
		}, false, nil
	}
	return nil, false, argErr("invalid match pattern: unknown kind %q", kind)
}

// compileNamePattern matches names such as branches, tags and bookmarks:
// unprefixed patterns are literals.
func compileNamePattern(pat string) (matcher, bool, error) {
	return compilePattern(pat, "literal")
}

// compileFilePattern matches repository paths: unprefixed patterns are
// globs, and a bare directory pattern matches everything below it.
func compileFilePattern(pat string) (matcher, error) {
	kind, body := splitPattern(pat, "glob")
	if kind == "glob" && body != "" && !strings.ContainsAny(body, "*?[{") {
		// A plain path names the file or the directory subtree.
		prefix := strings.TrimSuffix(body, "/") + "/"
		return func(s string) bool {
			return s == body || strings.HasPrefix(s, prefix)
		}, nil
	}
	m, _, err := compilePattern(pat, "glob")
	return m, err
}

// compileSubstringPattern matches free text such as descriptions and
// user names: unprefixed patterns are case-insensitive substrings.
func compileSubstringPattern(pat string) (matcher, error) {
	kind, body := splitPattern(pat, "")
	if kind == "" {
		needle := strings.ToLower(body)
		return func(s string) bool {
			return strings.Contains(strings.ToLower(s), needle)
		}, nil
	}
	m, _, err := compilePattern(pat, "")
	return m, err
}
