package scanners

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"packager/internal/discover"
)

func writeFile(t *testing.T, root, rel, content string) discover.Item {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return discover.Item{AbsPath: abs, RepoRelPosix: rel}
}

func TestQualityScannerPython(t *testing.T) {
	root := t.TempDir()
	item := writeFile(t, root, "pkg/mod.py", "def f():\n    if True:\n        pass\n")

	recs, err := Quality{}.Scan(context.Background(), root, []discover.Item{item})
	if err != nil {
		t.Fatal(err)
	}
	if recs[len(recs)-1].Kind() != "quality.summary" {
		t.Fatalf("last record must be quality.summary, got %v", recs[len(recs)-1].Kind())
	}
}

func TestEnvScannerFindsGoGetenv(t *testing.T) {
	root := t.TempDir()
	item := writeFile(t, root, "main.go", `package main
import "os"
func main() { _ = os.Getenv("PORT") }
`)
	recs, err := Env{}.Scan(context.Background(), root, []discover.Item{item})
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, r := range recs {
		if r.Kind() == "env.var" && r["name"] == "PORT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected env.var PORT, got %v", recs)
	}
}

func TestEntrypointsDetectsGoMain(t *testing.T) {
	root := t.TempDir()
	item := writeFile(t, root, "cmd/app/main.go", "package main\n\nfunc main() {}\n")
	recs, err := Entrypoints{}.Scan(context.Background(), root, []discover.Item{item})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range recs {
		if r.Kind() == "entrypoint.file" && r["entry_kind"] == "go_main" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected go_main entrypoint, got %v", recs)
	}
}

func TestSecretsRedactsFinding(t *testing.T) {
	root := t.TempDir()
	item := writeFile(t, root, "config.env", `API_TOKEN="abcdefghijklmnopqrstuvwxyz"`+"\n")
	recs, err := Secrets{}.Scan(context.Background(), root, []discover.Item{item})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if r.Kind() != "secrets.finding" {
			continue
		}
		redacted := r["redacted"].(string)
		if redacted == "abcdefghijklmnopqrstuvwxyz" {
			t.Fatalf("secret value leaked unredacted")
		}
	}
}

func TestRegistryOrder(t *testing.T) {
	want := []string{
		"doccoverage", "complexity", "owners", "env", "entrypoints", "html",
		"sql", "jsts", "deps", "gitscan", "license", "secrets", "assets",
		"quality", "staticcheck",
	}
	if len(Registry) != len(want) {
		t.Fatalf("registry has %d scanners, want %d", len(Registry), len(want))
	}
	for i, name := range want {
		if Registry[i].Name() != name {
			t.Fatalf("Registry[%d] = %s, want %s", i, Registry[i].Name(), name)
		}
	}
}
