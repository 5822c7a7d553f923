package resolver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"poitree/internal/core/errors"
	"poitree/internal/data/fsys"
	"poitree/internal/engine/manifest"
)

func writePackage(t *testing.T, dir, name, version string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(map[string]string{"name": name, "version": version})
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// tempRoot returns a temporary directory with symlinks resolved, since
// resolved package paths are always real paths.
func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func TestResolveNearestWins(t *testing.T) {
	root := tempRoot(t)
	writePackage(t, root, "app", "1.0.0")
	writePackage(t, filepath.Join(root, "node_modules", "pkg"), "pkg", "1.0.0")
	writePackage(t, filepath.Join(root, "node_modules", "a"), "a", "1.0.0")
	nested := filepath.Join(root, "node_modules", "a", "node_modules", "pkg")
	writePackage(t, nested, "pkg", "2.0.0")
	writePackage(t, filepath.Join(root, "node_modules", "b"), "b", "1.0.0")

	r := New(fsys.OS{}, root, time.Second)
	ctx := context.Background()
	desc := manifest.Descriptor{Name: "pkg", VersionRange: "*"}

	fromA, err := r.Resolve(ctx, filepath.Join(root, "node_modules", "a"), desc)
	if err != nil {
		t.Fatal(err)
	}
	if fromA.Path != nested || fromA.Version != "2.0.0" {
		t.Fatalf("expected local pkg@2 to shadow the hoisted copy, got %+v", fromA)
	}

	fromB, err := r.Resolve(ctx, filepath.Join(root, "node_modules", "b"), desc)
	if err != nil {
		t.Fatal(err)
	}
	if fromB.Path != filepath.Join(root, "node_modules", "pkg") || fromB.Version != "1.0.0" {
		t.Fatalf("expected hoisted pkg@1, got %+v", fromB)
	}
}

func TestResolveNotInstalled(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "app", "1.0.0")

	res, err := New(fsys.OS{}, root, 0).Resolve(context.Background(), root, manifest.Descriptor{Name: "ghost", VersionRange: "^1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "" || res.Err == nil || res.Err.Code != errors.CodeNotInstalled {
		t.Fatalf("expected NOT_INSTALLED, got %+v", res)
	}
	if res.Err.Context[errors.CtxPackage] != "ghost" {
		t.Fatalf("expected package context, got %v", res.Err.Context)
	}
}

func TestResolveSkipsMismatchedName(t *testing.T) {
	root := tempRoot(t)
	requester := filepath.Join(root, "node_modules", "a")
	writePackage(t, requester, "a", "1.0.0")
	writePackage(t, filepath.Join(requester, "node_modules", "dep"), "impostor", "9.9.9")
	writePackage(t, filepath.Join(root, "node_modules", "dep"), "dep", "1.0.0")

	res, err := New(fsys.OS{}, root, 0).Resolve(context.Background(), requester, manifest.Descriptor{Name: "dep"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(root, "node_modules", "dep") {
		t.Fatalf("expected walk to continue past the mismatched manifest, got %+v", res)
	}
}

func TestResolveInvalidManifest(t *testing.T) {
	root := tempRoot(t)
	dir := filepath.Join(root, "node_modules", "broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := New(fsys.OS{}, root, 0).Resolve(context.Background(), root, manifest.Descriptor{Name: "broken"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != dir || res.Err == nil || res.Err.Code != errors.CodeInvalidManifest || res.Manifest != nil {
		t.Fatalf("expected INVALID_MANIFEST at %s, got %+v", dir, res)
	}
}

func TestResolveVersionWarning(t *testing.T) {
	root := t.TempDir()
	writePackage(t, filepath.Join(root, "node_modules", "old"), "old", "1.4.0")

	res, err := New(fsys.OS{}, root, 0).Resolve(context.Background(), root, manifest.Descriptor{Name: "old", VersionRange: "^2.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Err != nil || res.Path == "" {
		t.Fatalf("range mismatch must still resolve, got %+v", res)
	}
	if res.Warning == nil || res.Warning.Code != errors.CodeResolutionWarning {
		t.Fatalf("expected RESOLUTION_WARNING, got %+v", res.Warning)
	}
}

func TestResolveAlias(t *testing.T) {
	root := tempRoot(t)
	writePackage(t, filepath.Join(root, "node_modules", "legacy"), "modern", "2.1.0")

	res, err := New(fsys.OS{}, root, 0).Resolve(context.Background(), root, manifest.Descriptor{Name: "legacy", VersionRange: "npm:modern@^2.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(root, "node_modules", "legacy") || res.Warning != nil {
		t.Fatalf("expected alias to resolve cleanly, got %+v", res)
	}
}

func TestCandidates(t *testing.T) {
	r := New(fsys.OS{}, "/proj", 0)
	got := r.Candidates("/proj/node_modules/a/node_modules/b", "c")
	want := []string{
		"/proj/node_modules/a/node_modules/b/node_modules/c",
		"/proj/node_modules/a/node_modules/c",
		"/proj/node_modules/c",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %q at %d, got %q", want[i], i, got[i])
		}
	}
}

func TestCheckRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		rng     string
		version string
		warn    bool
	}{
		{name: "Satisfied", rng: "^1.2.0", version: "1.9.0"},
		{name: "Outside", rng: "~1.2.0", version: "1.3.0", warn: true},
		{name: "Wildcard", rng: "*", version: "0.0.1"},
		{name: "Tag", rng: "latest", version: "3.0.0"},
		{name: "GitURL", rng: "git+https://example.com/x.git", version: "1.0.0"},
		{name: "BadVersion", rng: "^1", version: "not-a-version"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CheckRange(tc.rng, tc.version); (got != nil) != tc.warn {
				t.Fatalf("expected warning=%v, got %v", tc.warn, got)
			}
		})
	}
}

func TestResolveFollowsPnpmLinks(t *testing.T) {
	root := tempRoot(t)
	writePackage(t, root, "app", "1.0.0")
	store := filepath.Join(root, "node_modules", ".pnpm", "foo@1.0.0", "node_modules")
	writePackage(t, filepath.Join(store, "foo"), "foo", "1.0.0")
	writePackage(t, filepath.Join(store, "bar"), "bar", "2.0.0")
	if err := os.Symlink(filepath.Join(store, "foo"), filepath.Join(root, "node_modules", "foo")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	r := New(fsys.OS{}, root, time.Second)
	ctx := context.Background()

	foo, err := r.Resolve(ctx, root, manifest.Descriptor{Name: "foo", VersionRange: "1.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if foo.Err != nil || foo.Path != filepath.Join(store, "foo") {
		t.Fatalf("expected foo at its store path, got %+v", foo)
	}

	// bar is only reachable from foo's real location, as with require().
	bar, err := r.Resolve(ctx, foo.Path, manifest.Descriptor{Name: "bar", VersionRange: "^2.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if bar.Err != nil || bar.Path != filepath.Join(store, "bar") || bar.Version != "2.0.0" {
		t.Fatalf("expected bar next to foo in the store, got %+v", bar)
	}
}

func TestResolveSymlinkedRoot(t *testing.T) {
	target := tempRoot(t)
	writePackage(t, target, "app", "1.0.0")
	writePackage(t, filepath.Join(target, "node_modules", "dep"), "dep", "1.0.0")
	link := filepath.Join(tempRoot(t), "project")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	r := New(fsys.OS{}, link, 0)
	res, err := r.Resolve(context.Background(), link, manifest.Descriptor{Name: "dep"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(target, "node_modules", "dep") {
		t.Fatalf("expected real path, got %+v", res)
	}
	// A walk starting under the resolved root still stops there.
	got := r.Candidates(filepath.Join(target, "node_modules", "dep"), "x")
	if last := got[len(got)-1]; last != filepath.Join(target, "node_modules", "x") {
		t.Fatalf("walk escaped the root: %v", got)
	}
}

func TestResolveRejectsInvalidNames(t *testing.T) {
	root := tempRoot(t)
	// Joined onto <root>/app/node_modules, "../../x" would land here.
	writePackage(t, filepath.Join(root, "x"), "../../x", "1.0.0")

	r := New(fsys.OS{}, filepath.Join(root, "app"), 0)
	for _, name := range []string{"../../x", "../x", "@scope/../x", "a/b", ".hidden", "@/x", `a\b`} {
		res, err := r.Resolve(context.Background(), filepath.Join(root, "app"), manifest.Descriptor{Name: name})
		if err != nil {
			t.Fatal(err)
		}
		if res.Path != "" || res.Err == nil || res.Err.Code != errors.CodeInvalidManifest {
			t.Fatalf("%q: expected INVALID_MANIFEST without a path, got %+v", name, res)
		}
	}

	res, err := r.Resolve(context.Background(), root, manifest.Descriptor{Name: "alias", VersionRange: "npm:../x@1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Err == nil || res.Err.Code != errors.CodeInvalidManifest {
		t.Fatalf("alias targets must be checked too, got %+v", res)
	}
}

type slowFS struct {
	fsys.OS
	delay time.Duration
}

func (s slowFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.OS.ReadFile(context.Background(), path)
}

func TestResolveTimeout(t *testing.T) {
	root := t.TempDir()
	writePackage(t, filepath.Join(root, "node_modules", "slow"), "slow", "1.0.0")

	r := New(slowFS{delay: 200 * time.Millisecond}, root, 20*time.Millisecond)
	res, err := r.Resolve(context.Background(), root, manifest.Descriptor{Name: "slow"})
	if err != nil {
		t.Fatalf("timeouts are node-local, got %v", err)
	}
	if res.Err == nil || res.Err.Code != errors.CodeResolutionTimeout {
		t.Fatalf("expected RESOLUTION_TIMEOUT, got %+v", res)
	}
}

func TestResolveCancelledIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(fsys.OS{}, t.TempDir(), 0).Resolve(ctx, "/", manifest.Descriptor{Name: "x"}); err == nil {
		t.Fatal("expected cancellation to abort")
	}
}
