package parser

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsTestFile reports whether a path follows a test file naming convention
func IsTestFile(filePath string) bool {
	base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	lower := strings.ToLower(base)
	ext := path.Ext(lower)
	stem := strings.TrimSuffix(lower, ext)

	switch {
	case strings.HasSuffix(stem, "_test"):
		return true
	case ext == ".py" && strings.HasPrefix(stem, "test_"):
		return true
	case strings.HasSuffix(stem, ".test"), strings.HasSuffix(stem, ".spec"):
		return true
	case ext == ".java" && (strings.HasSuffix(base, "Test.java") || strings.HasSuffix(base, "Tests.java")):
		return true
	}
	return strings.Contains(filePath, "/__tests__/")
}

// IsTestName reports whether a simple symbol name follows a test naming
// convention: TestX, Test_x, test_x, testX, XTest or XTests.
func IsTestName(name string) bool {
	return len(SubjectNames(name)) > 0
}

// SubjectNames derives candidate names of the symbol a test exercises, most
// specific first. It returns nil when name is not a test name.
//
//	TestUser_Save -> User.Save, User_Save, User
//	test_parse    -> parse
//	testParse     -> Parse, parse
//	UserTest      -> User
func SubjectNames(name string) []string {
	switch {
	case strings.HasPrefix(name, "Test") && len(name) > len("Test"):
		rest := strings.TrimPrefix(name[len("Test"):], "_")
		if rest == "" || !startsUpperOrUnderscore(name[len("Test"):]) {
			return nil
		}
		return splitSubject(rest)
	case strings.HasPrefix(name, "test_") && len(name) > len("test_"):
		return []string{name[len("test_"):]}
	case strings.HasPrefix(name, "test") && len(name) > len("test") && startsUpperOrUnderscore(name[len("test"):]):
		rest := name[len("test"):]
		return uniq([]string{rest, lowerFirst(rest)})
	case strings.HasSuffix(name, "Tests") && len(name) > len("Tests"):
		return []string{strings.TrimSuffix(name, "Tests")}
	case strings.HasSuffix(name, "Test") && len(name) > len("Test"):
		return []string{strings.TrimSuffix(name, "Test")}
	}
	return nil
}

// splitSubject expands Go style Type_Method subjects
func splitSubject(rest string) []string {
	typ, method, ok := strings.Cut(rest, "_")
	if !ok || typ == "" || method == "" {
		return []string{rest}
	}
	return uniq([]string{typ + "." + method, rest, typ})
}

func startsUpperOrUnderscore(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsUpper(r)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func uniq(names []string) []string {
	out := names[:0]
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
