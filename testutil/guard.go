// Package testutil provides helpers for enforcing package boundary rules
// from within package tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// AnyOf combines predicates.
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// InternalImportForbidden matches any path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// InfraImportForbidden matches storage and blob backends.
func InfraImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/") || strings.HasSuffix(path, "/internal/infra")
}

// DriverImportForbidden matches database/sql and the SQL drivers in use.
// database/sql/driver is allowed: value types such as uuid.UUID implement it.
func DriverImportForbidden(path string) bool {
	switch {
	case path == "database/sql":
		return true
	case strings.HasPrefix(path, "modernc.org/sqlite"), strings.HasPrefix(path, "github.com/jackc/pgx"):
		return true
	}
	return false
}

// AssertNoDirectImports parses the non-test .go files of dir and fails if
// any import matches forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, "direct imports", reason, viols)
}

// AssertNoTransitiveDependency loads pattern with its dependency graph and
// fails if any reachable package matches forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := transitiveViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfViolations(t, "transitive dependency", reason, viols)
}

func directImportViolations(dir string, forbidden Predicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

var loadPackages = func(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	return packages.Load(cfg, pattern)
}

func transitiveViolations(pattern string, forbidden Predicate) ([]string, error) {
	roots, err := loadPackages(pattern)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var viols []string
	var walk func(pkg *packages.Package, via string)
	walk = func(pkg *packages.Package, via string) {
		if seen[pkg.PkgPath] {
			return
		}
		seen[pkg.PkgPath] = true
		if forbidden(pkg.PkgPath) {
			viols = append(viols, pkg.PkgPath+" (via "+via+")")
		}
		for _, imp := range pkg.Imports {
			walk(imp, pkg.PkgPath)
		}
	}
	for _, root := range roots {
		seen[root.PkgPath] = true
		for _, imp := range root.Imports {
			walk(imp, root.PkgPath)
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden %s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
