package poi

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"poitree/internal/core/errors"
	"poitree/internal/data/fsys"
	"poitree/internal/engine/tree"
)

// faultFS wraps the OS filesystem, denies access to chosen directories and
// counts ReadDir calls per path.
type faultFS struct {
	fsys.OS
	mu      sync.Mutex
	denied  map[string]bool
	delay   map[string]time.Duration
	readDir map[string]int
}

func newFaultFS() *faultFS {
	return &faultFS{denied: map[string]bool{}, delay: map[string]time.Duration{}, readDir: map[string]int{}}
}

func (f *faultFS) ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error) {
	f.mu.Lock()
	f.readDir[path]++
	denied := f.denied[path]
	delay := f.delay[path]
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if denied {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
	}
	return f.OS.ReadDir(ctx, path)
}

func (f *faultFS) calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readDir[path]
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newScanner(t *testing.T, fs fsys.FileSystem, mutate func(*Options)) *Scanner {
	t.Helper()
	opts := Options{Depth: 1, Concurrency: 4, Timeout: 5 * time.Second, ExcludeDirs: []string{".git"}, Rules: DefaultRules()}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(fs, opts)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	return s
}

func ofKind(pois []tree.PointOfInterest, kind tree.POIKind) []tree.PointOfInterest {
	var out []tree.PointOfInterest
	for _, p := range pois {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func TestScanDirNativeBinary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"addon","version":"1.0.0"}`)
	writeFile(t, filepath.Join(dir, "addon.node"), "\x7fELF")

	pois, err := newScanner(t, fsys.OS{}, nil).ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	native := ofKind(pois, tree.NativeBinary)
	if len(native) != 1 {
		t.Fatalf("expected exactly one NativeBinary, got %+v", pois)
	}
	if native[0].Path != filepath.Join(dir, "addon.node") {
		t.Fatalf("unexpected path %q", native[0].Path)
	}
	if native[0].Detail["bytes"] != "4" {
		t.Fatalf("unexpected detail %v", native[0].Detail)
	}
}

func TestScanDirInstallScripts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"hooks","scripts":{"postinstall":"node ./setup.js","test":"jest"}}`)

	pois, err := newScanner(t, fsys.OS{}, nil).ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	scripts := ofKind(pois, tree.InstallScript)
	if len(scripts) != 1 {
		t.Fatalf("expected one InstallScript, got %+v", pois)
	}
	if scripts[0].Detail["hook"] != "postinstall" || scripts[0].Detail["script"] != "node ./setup.js" {
		t.Fatalf("unexpected detail %v", scripts[0].Detail)
	}
	if scripts[0].Path != filepath.Join(dir, "package.json") {
		t.Fatalf("unexpected path %q", scripts[0].Path)
	}
}

func TestScanDirImplicitGyp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"native"}`)
	writeFile(t, filepath.Join(dir, "binding.gyp"), `{"targets":[]}`)

	pois, err := newScanner(t, fsys.OS{}, nil).ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	scripts := ofKind(pois, tree.InstallScript)
	if len(scripts) != 1 || scripts[0].Detail["implicit"] != "true" || scripts[0].Detail["script"] != "node-gyp rebuild" {
		t.Fatalf("expected implicit node-gyp hook, got %+v", scripts)
	}
}

func TestScanDirLicense(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"lic"}`)
	writeFile(t, filepath.Join(dir, "LICENSE"), "   \n")
	writeFile(t, filepath.Join(dir, "docs", "LICENCE.md"), "TODO: pick one")
	writeFile(t, filepath.Join(dir, "COPYING"), "Permission is hereby granted, free of charge, to any person")

	pois, err := newScanner(t, fsys.OS{}, nil).ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	licenses := ofKind(pois, tree.LicenseFile)
	if len(licenses) != 2 {
		t.Fatalf("expected two suspect licenses, got %+v", licenses)
	}
	if licenses[0].Path != filepath.Join(dir, "LICENSE") || licenses[0].Detail["reason"] != reasonEmpty {
		t.Fatalf("unexpected first license %+v", licenses[0])
	}
	if licenses[1].Detail["reason"] != reasonUnrecognised {
		t.Fatalf("unexpected second license %+v", licenses[1])
	}
}

func TestScanDirLicenseIgnoresSourceAndLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"lic"}`)
	writeFile(t, filepath.Join(dir, "license.js"), "module.exports = require('./LICENSE.txt')")
	writeFile(t, filepath.Join(dir, "lib", "license.d.ts"), "export declare const license: string")
	writeFile(t, filepath.Join(dir, "LICENSE.txt"), strings.Repeat("lorem ipsum ", 20))

	s := newScanner(t, fsys.OS{}, func(o *Options) { o.Rules.MaxParseBytes = 64 })
	pois, err := s.ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if licenses := ofKind(pois, tree.LicenseFile); len(licenses) != 0 {
		t.Fatalf("expected no license findings, got %+v", licenses)
	}
}

func TestScanDirOversized(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"big"}`)
	writeFile(t, filepath.Join(dir, "blob.bin"), strings.Repeat("x", 2048))

	s := newScanner(t, fsys.OS{}, func(o *Options) { o.Rules.OversizedBytes = 1024 })
	pois, err := s.ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	big := ofKind(pois, tree.OversizedFile)
	if len(big) != 1 || big[0].Detail["size"] != "2.0 KiB" || big[0].Detail["threshold"] != "1.0 KiB" {
		t.Fatalf("unexpected oversized findings %+v", big)
	}
}

func TestScanDirDepthAndExcludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"deep"}`)
	writeFile(t, filepath.Join(dir, "build", "Release", "deep.node"), "")
	writeFile(t, filepath.Join(dir, "lib", "shallow.node"), "")
	writeFile(t, filepath.Join(dir, "node_modules", "dep", "dep.node"), "")
	writeFile(t, filepath.Join(dir, ".git", "hidden.node"), "")

	pois, err := newScanner(t, fsys.OS{}, nil).ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	native := ofKind(pois, tree.NativeBinary)
	if len(native) != 1 || native[0].Path != filepath.Join(dir, "lib", "shallow.node") {
		t.Fatalf("expected only lib/shallow.node at depth 1, got %+v", native)
	}

	deep := newScanner(t, fsys.OS{}, func(o *Options) { o.Depth = 2 })
	pois, err = deep.ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if got := len(ofKind(pois, tree.NativeBinary)); got != 2 {
		t.Fatalf("expected two native binaries at depth 2, got %d", got)
	}
}

func TestScanDirChildProcess(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"spawn"}`)
	writeFile(t, filepath.Join(dir, "index.js"), "const path = require('path');\nconst cp = require('child_process');\n")
	writeFile(t, filepath.Join(dir, "lib", "esm.mjs"), "import { spawn } from \"node:child_process\";\n")
	writeFile(t, filepath.Join(dir, "lib", "lazy.cjs"), "async function f() {\n  return import(`child_process`);\n}\n")
	writeFile(t, filepath.Join(dir, "lib", "clean.js"), "module.exports = require('fs');\n// require('child_process') in a comment\n")

	pois, err := newScanner(t, fsys.OS{}, nil).ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	procs := ofKind(pois, tree.ChildProcess)
	if len(procs) != 3 {
		t.Fatalf("expected three ChildProcess findings, got %+v", procs)
	}
	if procs[0].Path != filepath.Join(dir, "index.js") || procs[0].Detail["line"] != "2" {
		t.Fatalf("unexpected first finding %+v", procs[0])
	}
	if procs[1].Detail["module"] != "node:child_process" {
		t.Fatalf("unexpected esm finding %+v", procs[1])
	}

	off := newScanner(t, fsys.OS{}, func(o *Options) { o.Rules.JavaScript = false })
	pois, err = off.ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(ofKind(pois, tree.ChildProcess)) != 0 {
		t.Fatal("expected no ChildProcess findings with javascript analysis disabled")
	}
}

func TestScanDirSorted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"mix","scripts":{"install":"make","preinstall":"echo"}}`)
	writeFile(t, filepath.Join(dir, "z.node"), "")
	writeFile(t, filepath.Join(dir, "a.node"), "")
	writeFile(t, filepath.Join(dir, "LICENSE"), "")

	pois, err := newScanner(t, fsys.OS{}, nil).ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	var got []string
	for _, p := range pois {
		got = append(got, p.Kind.String()+":"+filepath.Base(p.Path)+":"+p.Detail["hook"])
	}
	want := "NativeBinary:a.node:,NativeBinary:z.node:,InstallScript:package.json:install,InstallScript:package.json:preinstall,LicenseFile:LICENSE:"
	if strings.Join(got, ",") != want {
		t.Fatalf("unexpected order:\n got %s\nwant %s", strings.Join(got, ","), want)
	}
}

func buildTree(root string) (*tree.Node, map[string]*tree.Node) {
	a := &tree.Node{Name: "a", ResolvedPath: filepath.Join(root, "node_modules", "a")}
	b := &tree.Node{Name: "b", ResolvedPath: filepath.Join(root, "node_modules", "b")}
	shared := &tree.Node{Name: "shared", ResolvedPath: filepath.Join(root, "node_modules", "shared")}
	sharedRef := &tree.Node{Name: "shared", ResolvedPath: shared.ResolvedPath, BackReference: true}
	missing := &tree.Node{Name: "missing", ResolutionError: errors.NewNode(errors.CodeNotInstalled, "not installed", nil)}
	a.Children = []*tree.Node{shared}
	b.Children = []*tree.Node{sharedRef}
	rootNode := &tree.Node{Name: "app", ResolvedPath: root, Children: []*tree.Node{a, b, missing}}
	return rootNode, map[string]*tree.Node{"app": rootNode, "a": a, "b": b, "shared": shared, "sharedRef": sharedRef, "missing": missing}
}

func layout(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"app"}`)
	for _, name := range []string{"a", "b", "shared"} {
		dir := filepath.Join(root, "node_modules", name)
		writeFile(t, filepath.Join(dir, "package.json"), `{"name":"`+name+`"}`)
		writeFile(t, filepath.Join(dir, name+".node"), "")
	}
	return root
}

func TestScanTreePermissionDeniedIsLocal(t *testing.T) {
	root := layout(t)
	ffs := newFaultFS()
	ffs.denied[filepath.Join(root, "node_modules", "a")] = true

	rootNode, nodes := buildTree(root)
	if err := newScanner(t, ffs, nil).ScanTree(context.Background(), rootNode); err != nil {
		t.Fatalf("scan tree failed: %v", err)
	}

	a := nodes["a"]
	if a.ScanError == nil || a.ScanError.Code != errors.CodeScanError {
		t.Fatalf("expected SCAN_ERROR on a, got %+v", a.ScanError)
	}
	if len(a.POIs) != 0 {
		t.Fatalf("partial findings must be dropped, got %+v", a.POIs)
	}
	for _, name := range []string{"b", "shared", "sharedRef"} {
		n := nodes[name]
		if n.ScanError != nil {
			t.Fatalf("%s must be unaffected, got %v", name, n.ScanError)
		}
		if len(ofKind(n.POIs, tree.NativeBinary)) != 1 {
			t.Fatalf("%s should still carry its findings, got %+v", name, n.POIs)
		}
	}
}

func TestScanTreePermissionDeniedInSubdirectory(t *testing.T) {
	root := layout(t)
	lib := filepath.Join(root, "node_modules", "a", "lib")
	writeFile(t, filepath.Join(lib, "index.js"), "module.exports = 1")
	ffs := newFaultFS()
	ffs.denied[lib] = true

	rootNode, nodes := buildTree(root)
	if err := newScanner(t, ffs, nil).ScanTree(context.Background(), rootNode); err != nil {
		t.Fatalf("scan tree failed: %v", err)
	}

	a := nodes["a"]
	if a.ScanError == nil || a.ScanError.Code != errors.CodeScanError {
		t.Fatalf("expected SCAN_ERROR on a, got %+v", a.ScanError)
	}
	if a.ScanError.Err == nil || !strings.Contains(a.ScanError.Err.Error(), lib) {
		t.Fatalf("expected the denied subdirectory in the cause, got %v", a.ScanError.Err)
	}
	if len(a.POIs) != 0 {
		t.Fatalf("findings from a's readable root must be dropped, got %+v", a.POIs)
	}
	for _, name := range []string{"app", "b", "shared", "sharedRef"} {
		if nodes[name].ScanError != nil {
			t.Fatalf("%s must be unaffected, got %v", name, nodes[name].ScanError)
		}
	}
	for _, name := range []string{"b", "shared", "sharedRef"} {
		if len(ofKind(nodes[name].POIs, tree.NativeBinary)) != 1 {
			t.Fatalf("%s should still carry its findings, got %+v", name, nodes[name].POIs)
		}
	}
}

// stallFS holds every ReadDir until release is closed, ignoring ctx the way
// a hung syscall would, and records the peak number of concurrent calls.
type stallFS struct {
	fsys.OS
	release chan struct{}

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (f *stallFS) ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	<-f.release

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return nil, nil
}

func (f *stallFS) counts() (inFlight, peak int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight, f.peak
}

func TestScanTreeBoundsOpenDirectoriesAfterTimeouts(t *testing.T) {
	const limit = 2
	base := t.TempDir()
	stall := &stallFS{release: make(chan struct{})}
	bounded := fsys.NewInstrumented(stall, nil, limit)

	rootNode := &tree.Node{Name: "app"}
	for i := 0; i < 20; i++ {
		rootNode.Children = append(rootNode.Children, &tree.Node{
			Name:         fmt.Sprintf("pkg%d", i),
			ResolvedPath: filepath.Join(base, fmt.Sprintf("pkg%d", i)),
		})
	}

	s := newScanner(t, bounded, func(o *Options) {
		o.Concurrency = limit
		o.Timeout = 10 * time.Millisecond
	})
	if err := s.ScanTree(context.Background(), rootNode); err != nil {
		t.Fatalf("timeouts are node-local, got %v", err)
	}
	for _, n := range rootNode.Children {
		if n.ScanError == nil || n.ScanError.Code != errors.CodeScanTimeout {
			t.Fatalf("expected SCAN_TIMEOUT on %s, got %+v", n.Name, n.ScanError)
		}
	}

	close(stall.release)
	deadline := time.Now().Add(2 * time.Second)
	var peak int
	for {
		var inFlight int
		inFlight, peak = stall.counts()
		if inFlight == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d directory reads never finished", inFlight)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if peak > limit {
		t.Fatalf("concurrency limit %d exceeded: %d directory reads in flight", limit, peak)
	}
	if peak == 0 {
		t.Fatal("expected at least one directory read")
	}
}

func TestScanTreeSkipsUnresolved(t *testing.T) {
	root := layout(t)
	rootNode, nodes := buildTree(root)
	if err := newScanner(t, fsys.OS{}, nil).ScanTree(context.Background(), rootNode); err != nil {
		t.Fatalf("scan tree failed: %v", err)
	}
	missing := nodes["missing"]
	if len(missing.POIs) != 0 || missing.ScanError != nil {
		t.Fatalf("unresolved nodes are not scanned, got %+v", missing)
	}
	if missing.ResolutionError == nil {
		t.Fatal("scanner must not touch resolution fields")
	}
}

func TestScanTreeMemoizesByPath(t *testing.T) {
	root := layout(t)
	ffs := newFaultFS()
	rootNode, nodes := buildTree(root)

	if err := newScanner(t, ffs, nil).ScanTree(context.Background(), rootNode); err != nil {
		t.Fatalf("scan tree failed: %v", err)
	}
	if got := ffs.calls(nodes["shared"].ResolvedPath); got != 1 {
		t.Fatalf("expected shared directory to be listed once, got %d", got)
	}
	// Each node owns its slice.
	nodes["shared"].POIs[0].Path = "mutated"
	if nodes["sharedRef"].POIs[0].Path == "mutated" {
		t.Fatal("memoized findings must not be shared between nodes")
	}
}

func TestScanTreeTimeout(t *testing.T) {
	root := layout(t)
	ffs := newFaultFS()
	slow := filepath.Join(root, "node_modules", "b")
	ffs.delay[slow] = 300 * time.Millisecond

	rootNode, nodes := buildTree(root)
	s := newScanner(t, ffs, func(o *Options) { o.Timeout = 30 * time.Millisecond })
	if err := s.ScanTree(context.Background(), rootNode); err != nil {
		t.Fatalf("timeouts are node-local, got %v", err)
	}
	if nodes["b"].ScanError == nil || nodes["b"].ScanError.Code != errors.CodeScanTimeout {
		t.Fatalf("expected SCAN_TIMEOUT on b, got %+v", nodes["b"].ScanError)
	}
	if nodes["a"].ScanError != nil {
		t.Fatalf("a must be unaffected, got %v", nodes["a"].ScanError)
	}
}

func TestNewRejectsBadGlobs(t *testing.T) {
	_, err := New(fsys.OS{}, Options{ExcludeDirs: []string{"[bad"}})
	if !errors.IsCode(err, errors.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
