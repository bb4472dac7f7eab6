package sqlite

import (
	"strings"
	"testing"

	"mfestate/testutil"
)

func TestOnlyDomainFromModule(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(path string) bool {
		return strings.HasPrefix(path, testutil.Module+"/") && path != testutil.Module+"/pkg/domain"
	}, "sqlite persister may only depend on pkg/domain within the module")
}
