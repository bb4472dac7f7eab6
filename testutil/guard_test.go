package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeT struct {
	msg string
}

func (f *fakeT) Fatalf(format string, args ...any) { f.msg = fmt.Sprintf(format, args...) }

func TestPrefixForbidden(t *testing.T) {
	forbidden := PrefixForbidden("mfestate/internal/core")
	cases := []struct {
		in   string
		want bool
	}{
		{"mfestate/internal/core", true},
		{"mfestate/internal/core/sub", true},
		{"mfestate/internal/corelike", false},
		{"mfestate/internal/extensions", false},
	}
	for _, c := range cases {
		if got := forbidden(c.in); got != c.want {
			t.Fatalf("PrefixForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"mfestate/internal/core", true},
		{"mfestate/internal", true},
		{"mfestate/pkg/domain", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestThirdPartyImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"github.com/golang/glog", true},
		{"gopkg.in/yaml.v3", true},
		{"encoding/json", false},
		{"mfestate/pkg/domain", false},
		{"mfestate", false},
	}
	for _, c := range cases {
		if got := ThirdPartyImportForbidden(c.in); got != c.want {
			t.Fatalf("ThirdPartyImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport \"fmt\"\nimport \"mfestate/internal/core\"\nfunc X(){fmt.Println(core.X)}\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"mfestate/internal/infra\"\n")
	writeFile(t, dir, "notes.txt", "import \"mfestate/internal/core\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"mfestate/internal/core\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "mfestate/internal/core (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package\n")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}\n")
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestFailureMessages(t *testing.T) {
	var f fakeT
	failIfDirectViolations(&f, "why", nil)
	if f.msg != "" {
		t.Fatalf("no violations should not fail")
	}
	failIfDirectViolations(&f, "why", []string{"a (in x.go)"})
	if !strings.Contains(f.msg, "why") || !strings.Contains(f.msg, "a (in x.go)") {
		t.Fatalf("unexpected message %q", f.msg)
	}
	f = fakeT{}
	failIfTransitiveViolations(&f, "deps", []string{"b", "c"})
	if !strings.Contains(f.msg, "b\nc") {
		t.Fatalf("unexpected message %q", f.msg)
	}
}

func TestDomainHasNoInternalDependencies(t *testing.T) {
	AssertNoTransitiveDependency(t, Module+"/pkg/domain", InternalImportForbidden, "pkg/domain is the shared contract")
}
