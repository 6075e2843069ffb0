package blob

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"

	"itemcore/testutil"
)

const (
	blobPrefix  = "itemcore/internal/blob"
	infraPrefix = "itemcore/internal/infra/blob"
)

func hasPathPrefix(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}

func loadModule(t *testing.T, tests bool) []*packages.Package {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: tests}
	pkgs, err := packages.Load(cfg, "itemcore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	return pkgs
}

func reportImports(t *testing.T, what string, seen map[string]struct{}) {
	t.Helper()
	if len(seen) == 0 {
		return
	}
	violations := make([]string, 0, len(seen))
	for v := range seen {
		violations = append(violations, v)
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden import of %s: %s", what, v)
	}
	t.Fatalf("found %d forbidden imports of %s", len(violations), what)
}

// TestOnlyBlobPackageImportsInfra ensures that only the top-level blob
// package wraps the infra-backed implementations. Other packages must depend
// on the blob.Store interface instead of importing infra packages directly.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	seen := make(map[string]struct{})
	for _, pkg := range loadModule(t, true) {
		if hasPathPrefix(pkg.PkgPath, blobPrefix) || hasPathPrefix(pkg.PkgPath, infraPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if hasPathPrefix(importPath, infraPrefix) {
				seen[filepath.Join(pkg.PkgPath, "...")+": "+importPath] = struct{}{}
			}
		}
	}
	reportImports(t, "infra blob packages", seen)
}

// TestInfraBackendsStayOutOfTheItemDomain keeps the storage backends reusable:
// they implement the blob/core contract and know nothing about items.
func TestInfraBackendsStayOutOfTheItemDomain(t *testing.T) {
	domainPaths := []string{
		"itemcore/internal/core",
		"itemcore/internal/adapters",
		"itemcore/internal/infra/persistence",
		"itemcore/pkg/domain",
	}
	seen := make(map[string]struct{})
	for _, pkg := range loadModule(t, false) {
		if !hasPathPrefix(pkg.PkgPath, infraPrefix) && pkg.PkgPath != blobPrefix+"/core" {
			continue
		}
		for importPath := range pkg.Imports {
			for _, p := range domainPaths {
				if hasPathPrefix(importPath, p) {
					seen[pkg.PkgPath+": "+importPath] = struct{}{}
				}
			}
		}
	}
	reportImports(t, "item domain packages", seen)
}

// TestBlobAdaptersUseStoreInterface checks that the attachment and backup
// adapters reach blobs only through blob.Store, never a concrete backend or
// the AWS SDK.
func TestBlobAdaptersUseStoreInterface(t *testing.T) {
	backendImport := testutil.AnyOf(
		func(path string) bool { return hasPathPrefix(path, infraPrefix) },
		func(path string) bool { return strings.HasPrefix(path, "github.com/aws/") },
	)
	for _, dir := range []string{"../adapters/attachments", "../adapters/backup"} {
		testutil.AssertNoDirectImports(t, dir, backendImport, "adapters depend on blob.Store so the backend is chosen by configuration")
	}
}
