package revset

import "testing"

func TestSplitPattern(t *testing.T) {
	tests := []struct {
		pat, def   string
		kind, body string
	}{
		{"foo", "literal", "literal", "foo"},
		{"foo", "glob", "glob", "foo"},
		{"literal:a*b", "glob", "literal", "a*b"},
		{"glob:src/*.go", "literal", "glob", "src/*.go"},
		{"re:^v[0-9]+$", "literal", "re", "^v[0-9]+$"},
		{"relevant", "literal", "literal", "relevant"}, // no false prefix match
	}
	for _, tt := range tests {
		kind, body := splitPattern(tt.pat, tt.def)
		if kind != tt.kind || body != tt.body {
			t.Errorf("splitPattern(%q, %q) = %q, %q, expected %q, %q",
				tt.pat, tt.def, kind, body, tt.kind, tt.body)
		}
	}
}

func TestCompileNamePattern(t *testing.T) {
	tests := []struct {
		pat     string
		input   string
		matches bool
	}{
		{"stable", "stable", true},
		{"stable", "stable-1.0", false},
		{"glob:release-*", "release-1.0", true},
		{"glob:release-*", "hotfix-1.0", false},
		{"re:^v[0-9]", "v2", true},
		{"re:^v[0-9]", "rev2", false},
	}
	for _, tt := range tests {
		m, _, err := compileNamePattern(tt.pat)
		if err != nil {
			t.Fatalf("compileNamePattern(%q): %v", tt.pat, err)
		}
		if got := m(tt.input); got != tt.matches {
			t.Errorf("pattern %q on %q = %v, expected %v", tt.pat, tt.input, got, tt.matches)
		}
	}

	if _, exact, _ := compileNamePattern("stable"); !exact {
		t.Error("bare name should compile to an exact matcher")
	}
	if _, exact, _ := compileNamePattern("glob:s*"); exact {
		t.Error("glob must not report exact")
	}
}

func TestCompileFilePattern(t *testing.T) {
	tests := []struct {
		pat     string
		input   string
		matches bool
	}{
		// A bare path names the file or anything below it.
		{"src", "src", true},
		{"src", "src/main.go", true},
		{"src", "src/core/core.go", true},
		{"src", "srcx/main.go", false},
		{"docs/guide.md", "docs/guide.md", true},
		{"docs/guide.md", "docs/guide.md.bak", false},
		// Unprefixed patterns with metacharacters are globs.
		{"src/*.go", "src/main.go", true},
		{"src/*.go", "src/core/core.go", false},
		{"src/**", "src/core/core.go", true},
		{"**/*.md", "docs/guide.md", true},
		{"re:\\.go$", "src/main.go", true},
		{"literal:src/*.go", "src/main.go", false},
		{"literal:src/*.go", "src/*.go", true},
	}
	for _, tt := range tests {
		m, err := compileFilePattern(tt.pat)
		if err != nil {
			t.Fatalf("compileFilePattern(%q): %v", tt.pat, err)
		}
		if got := m(tt.input); got != tt.matches {
			t.Errorf("pattern %q on %q = %v, expected %v", tt.pat, tt.input, got, tt.matches)
		}
	}
}

func TestCompileSubstringPattern(t *testing.T) {
	tests := []struct {
		pat     string
		input   string
		matches bool
	}{
		{"bob", "Bob Smith <bob@example.com>", true},
		{"BOB", "bob", true},
		{"bob", "alice", false},
		{"literal:Bob", "Bob", true},
		{"literal:Bob", "bob", false},
		{"re:^fix", "fix parser", true},
		{"re:^fix", "bugfix", false},
	}
	for _, tt := range tests {
		m, err := compileSubstringPattern(tt.pat)
		if err != nil {
			t.Fatalf("compileSubstringPattern(%q): %v", tt.pat, err)
		}
		if got := m(tt.input); got != tt.matches {
			t.Errorf("pattern %q on %q = %v, expected %v", tt.pat, tt.input, got, tt.matches)
		}
	}
}

func TestCompilePattern_Errors(t *testing.T) {
	if _, _, err := compilePattern("re:(", "literal"); err == nil {
		t.Error("invalid regexp should not compile")
	}
	if _, err := compileFilePattern("re:("); err == nil {
		t.Error("invalid regexp file pattern should not compile")
	}
}
