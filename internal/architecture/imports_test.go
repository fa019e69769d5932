package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importRef struct {
	file string // module-relative, slash separated
	imp  string
}

func TestLayerBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)

	var violations []string
	for _, ref := range collectImports(t, root) {
		layer := layerFor(ref.file)
		if layer == "" {
			continue
		}
		for _, bad := range disallowedImports(modulePath, layer) {
			if matchesPackage(ref.imp, bad) {
				violations = append(violations, fmt.Sprintf("- %s imports %q (layer %s may not import %q)", ref.file, ref.imp, layer, bad))
				break
			}
		}
	}
	if len(violations) > 0 {
		t.Fatal("import boundary violations:\n" + strings.Join(violations, "\n"))
	}
}

// Vendor SDKs stay behind the package that adapts them.
func TestVendorImportsStayInAdapters(t *testing.T) {
	root, _ := moduleRoot(t)

	owners := map[string]string{
		"cloud.google.com/go/storage": "internal/platform/gcp/",
		"google.golang.org/api":       "internal/platform/gcp/",
		"gorm.io/driver":              "internal/data/db/",
		"github.com/jackc/pgx":        "internal/data/db/",
		"github.com/duckdb/duckdb-go": "internal/lake/frame/",
		"github.com/tidwall/gjson":    "internal/lake/jsonsource/",
		"go.uber.org/zap":             "internal/platform/logger/",
	}

	var violations []string
	for _, ref := range collectImports(t, root) {
		for vendor, owner := range owners {
			if matchesPackage(ref.imp, vendor) && !strings.HasPrefix(ref.file, owner) {
				violations = append(violations, fmt.Sprintf("- %s imports %q (only %s may)", ref.file, ref.imp, owner))
			}
		}
	}
	if len(violations) > 0 {
		t.Fatal("vendor imports outside their adapter:\n" + strings.Join(violations, "\n"))
	}
}

func layerFor(rel string) string {
	for _, layer := range []string{"domain", "platform", "observability", "lake", "data", "modules", "jobs"} {
		if strings.HasPrefix(rel, "internal/"+layer+"/") {
			return layer
		}
	}
	return ""
}

func disallowedImports(modulePath string, layer string) []string {
	pkg := func(names ...string) []string {
		out := make([]string, 0, len(names))
		for _, n := range names {
			out = append(out, modulePath+"/internal/"+n)
		}
		return out
	}
	switch layer {
	case "domain":
		return pkg("data", "lake", "observability", "modules", "jobs", "app")
	case "platform":
		return pkg("data", "observability", "modules", "jobs", "app")
	case "observability":
		return pkg("data", "lake", "modules", "jobs", "app")
	case "lake":
		return pkg("data", "modules", "jobs", "app")
	case "data":
		return pkg("lake", "modules", "jobs", "app")
	case "modules":
		return pkg("data", "jobs", "app")
	case "jobs":
		return pkg("app")
	default:
		return nil
	}
}

func matchesPackage(imp, prefix string) bool {
	return imp == prefix || strings.HasPrefix(imp, prefix+"/")
}

func collectImports(t *testing.T, root string) []importRef {
	t.Helper()
	fset := token.NewFileSet()
	var refs []importRef
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "testdata":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			refs = append(refs, importRef{file: filepath.ToSlash(rel), imp: imp})
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return refs
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
