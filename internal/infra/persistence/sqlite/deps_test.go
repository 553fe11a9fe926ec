package sqlite

import (
	"testing"

	"labcore/testutil"
)

func TestImportsAreDomainOrStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.ModuleImportOutside("labcore/pkg/domain", "labcore/internal/infra/persistence/memory"),
		"the sqlite port depends only on the domain and the in-memory registry")
}
