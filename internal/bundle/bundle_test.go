package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// ---------------------------------------------------------------------------
// Normalize tests
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	cases := []struct {
		abs, root, want string
	}{
		{"/src/app/a.txt", "/src/app", "a.txt"},
		{"/src/app/build/out.o", "/src/app", "build/out.o"},
		{`C:\src\app\build\out.o`, `C:\src\app`, "build/out.o"},
		{`C:\src\app\a.txt`, `C:\src\app\`, "a.txt"},
		{"/src/app/", "/src/app", ""},
		// Only one leading separator is stripped.
		{"/src/app//x", "/src/app", "/x"},
	}

	for _, tc := range cases {
		if got := Normalize(tc.abs, tc.root); got != tc.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tc.abs, tc.root, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Walk tests
// ---------------------------------------------------------------------------

func TestWalk(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.txt":              "a",
		"build/out.o":        "o",
		"build/nested/x.bin": "x",
		"README.md":          "r",
	})
	if err := os.Mkdir(filepath.Join(dir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	var got []string
	for p, err := range Walk(dir) {
		if err != nil {
			t.Fatalf("Walk: %v", err)
		}
		if !filepath.IsAbs(p) {
			t.Errorf("Walk yielded non-absolute path %q", p)
		}
		got = append(got, Normalize(p, dir))
	}
	sort.Strings(got)

	want := []string{"README.md", "a.txt", "build/nested/x.bin", "build/out.o"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Walk = %q, want %q", got, want)
	}
}

func TestWalk_Restartable(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"one": "1", "two": "2"})

	seq := Walk(dir)
	count := func() int {
		n := 0
		for _, err := range seq {
			if err != nil {
				t.Fatal(err)
			}
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 2 || b != 2 {
		t.Errorf("walk counts = %d, %d, want 2, 2", a, b)
	}
}

func TestWalk_EarlyStop(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a": "", "b": "", "c": ""})

	n := 0
	for _, err := range Walk(dir) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		break
	}
	if n != 1 {
		t.Errorf("consumed %d entries, want 1", n)
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	var errs []error
	for p, err := range Walk(missing) {
		if err == nil {
			t.Errorf("unexpected path %q", p)
			continue
		}
		errs = append(errs, err)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}

	var fsErr *FileSystemError
	if !errors.As(errs[0], &fsErr) {
		t.Fatalf("expected *FileSystemError, got %T: %v", errs[0], errs[0])
	}
	if fsErr.Path != missing {
		t.Errorf("FileSystemError.Path = %q, want %q", fsErr.Path, missing)
	}
	if !errors.Is(errs[0], fs.ErrNotExist) {
		t.Errorf("error does not unwrap to fs.ErrNotExist: %v", errs[0])
	}
}

func TestWalk_RootIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	writeTree(t, dir, map[string]string{"plain.txt": "x"})

	for _, err := range Walk(file) {
		var fsErr *FileSystemError
		if !errors.As(err, &fsErr) {
			t.Fatalf("expected *FileSystemError, got %v", err)
		}
		if !errors.Is(err, errNotDir) {
			t.Errorf("error = %v, want not-a-directory", err)
		}
	}
}

func TestWalk_SymlinkYieldedAsFile(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	writeTree(t, other, map[string]string{"inner.txt": "i"})
	if err := os.Symlink(other, filepath.Join(dir, "linkdir")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	var got []string
	for p, err := range Walk(dir) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, Normalize(p, dir))
	}
	if len(got) != 1 || got[0] != "linkdir" {
		t.Errorf("Walk = %q, want [linkdir]", got)
	}
}

// ---------------------------------------------------------------------------
// Hash tests
// ---------------------------------------------------------------------------

func TestComputeFileHash(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"hello.txt": "hello world\n"})

	hash, err := ComputeFileHash(filepath.Join(dir, "hello.txt"))
	if err != nil {
		t.Fatalf("ComputeFileHash: %v", err)
	}

	h := sha256.Sum256([]byte("hello world\n"))
	if want := "sha256:" + hex.EncodeToString(h[:]); hash != want {
		t.Errorf("ComputeFileHash = %q, want %q", hash, want)
	}
	if ComputeFileHashBytes([]byte("hello world\n")) != hash {
		t.Error("ComputeFileHashBytes disagrees with ComputeFileHash")
	}
}

func TestComputeSourceHash(t *testing.T) {
	files := map[string]string{
		"b.txt": "sha256:def456",
		"a.txt": "sha256:abc123",
	}

	hh := sha256.New()
	hh.Write([]byte("a.txt\x00abc123\n"))
	hh.Write([]byte("b.txt\x00def456\n"))
	want := "sha256:" + hex.EncodeToString(hh.Sum(nil))

	for i := 0; i < 50; i++ {
		if got := ComputeSourceHash(files); got != want {
			t.Fatalf("ComputeSourceHash = %q, want %q", got, want)
		}
	}
}

func TestHashFiles(t *testing.T) {
	dir := t.TempDir()
	onDisk := map[string]string{
		"foo.txt":        "foo content",
		"subdir/bar.txt": "bar content",
	}
	writeTree(t, dir, onDisk)

	fileHashes, sourceHash, err := HashFiles(dir, []string{"foo.txt", "subdir/bar.txt"})
	if err != nil {
		t.Fatalf("HashFiles: %v", err)
	}

	for rel, content := range onDisk {
		if got, want := fileHashes[rel], ComputeFileHashBytes([]byte(content)); got != want {
			t.Errorf("hash for %q = %q, want %q", rel, got, want)
		}
	}
	if want := ComputeSourceHash(fileHashes); sourceHash != want {
		t.Errorf("sourceHash = %q, want %q", sourceHash, want)
	}

	if _, _, err := HashFiles(dir, []string{"missing.txt"}); err == nil {
		t.Error("expected error hashing a missing file")
	}
}

// ---------------------------------------------------------------------------
// Content type tests
// ---------------------------------------------------------------------------

func TestContentTypeForFile(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"site.zip", "application/zip"},
		{"SITE.ZIP", "application/zip"},
		{"manifest.json", "application/json"},
		{"LATEST.txt", "text/plain; charset=utf-8"},
		{"report.yaml", "application/x-yaml"},
		{"noext", "application/octet-stream"},
	}

	for _, tc := range cases {
		if got := ContentTypeForFile(tc.filename); got != tc.want {
			t.Errorf("ContentTypeForFile(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Symlink tests
// ---------------------------------------------------------------------------

func TestValidateSymlinks_InTree(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"real.txt": "real"})
	if err := os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Fatal(err)
	}

	if err := ValidateSymlinks(dir, []string{"real.txt", "link.txt"}); err != nil {
		t.Errorf("ValidateSymlinks returned error for in-tree symlink: %v", err)
	}
}

func TestValidateSymlinks_External(t *testing.T) {
	dir := t.TempDir()
	external := t.TempDir()
	writeTree(t, external, map[string]string{"external.txt": "x"})
	if err := os.Symlink(filepath.Join(external, "external.txt"), filepath.Join(dir, "escape.txt")); err != nil {
		t.Fatal(err)
	}

	err := ValidateSymlinks(dir, []string{"escape.txt"})

	var escapeErr *SymlinkEscapeError
	if !errors.As(err, &escapeErr) {
		t.Fatalf("expected *SymlinkEscapeError, got %T: %v", err, err)
	}
	if escapeErr.Path != "escape.txt" {
		t.Errorf("SymlinkEscapeError.Path = %q, want %q", escapeErr.Path, "escape.txt")
	}
	if !strings.Contains(escapeErr.Error(), "outside the source folder") {
		t.Errorf("error message %q does not mention the source folder", escapeErr.Error())
	}
}
