package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImportPredicates(t *testing.T) {
	module := ModuleImportOutside("labcore/pkg/domain")
	third := ThirdPartyImportOutside("github.com/shopspring/decimal")
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{InternalImportForbidden, "labcore/internal/core", true},
		{InternalImportForbidden, "example.com/mod/internal/x", true},
		{InternalImportForbidden, "labcore/pkg/domain", false},
		{module, "labcore/pkg/domain", false},
		{module, "labcore/internal/infra/blob", true},
		{module, "labcorex/other", false},
		{module, "fmt", false},
		{third, "github.com/shopspring/decimal", false},
		{third, "github.com/jackc/pgx/v5", true},
		{third, "encoding/json", false},
		{third, "labcore/pkg/domain", false},
		{AnyOf(module, third), "github.com/google/uuid", true},
		{AnyOf(), "anything", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Errorf("predicate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.go":      "package tmp\nimport (\n\t\"fmt\"\n\t\"labcore/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ core.Service\n",
		"b_test.go": "package tmp\nimport \"github.com/jackc/pgx/v5\"\n",
		"notes.txt": "import \"labcore/internal/x\"",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	viols, err := directImportViolations(dir, AnyOf(InternalImportForbidden, ThirdPartyImportOutside()))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "labcore/internal/core (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	var rec recordingFatal
	failIfDirectViolations(&rec, "boundary", viols)
	if rec.msg == "" {
		t.Fatalf("expected a failure to be reported")
	}
	rec.msg = ""
	failIfDirectViolations(&rec, "boundary", nil)
	if rec.msg != "" {
		t.Fatalf("expected no failure without violations")
	}

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}
