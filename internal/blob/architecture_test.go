package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Drivers are reached only through this package so that callers depend on
// the Store contract.
func TestOnlyBlobPackageImportsDrivers(t *testing.T) {
	const drivers = "mfestate/internal/infra/blob"
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "mfestate/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var viols []string
	for _, pkg := range pkgs {
		path := strings.TrimSuffix(pkg.PkgPath, "_test")
		if path == "mfestate/internal/blob" || strings.HasPrefix(path, drivers) {
			continue
		}
		for imp := range pkg.Imports {
			if imp == drivers || strings.HasPrefix(imp, drivers+"/") {
				viols = append(viols, pkg.PkgPath+" imports "+imp)
			}
		}
	}
	sort.Strings(viols)
	if len(viols) > 0 {
		t.Fatalf("driver packages imported outside internal/blob:\n%s", strings.Join(viols, "\n"))
	}
}
