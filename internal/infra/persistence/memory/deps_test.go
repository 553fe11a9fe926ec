package memory

import (
	"testing"

	"labcore/testutil"
)

func TestImportsAreDomainOrStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.ModuleImportOutside("labcore/pkg/domain", "labcore/internal/infra/persistence/records"),
		"the in-memory registry depends only on the domain and record codec")
}
