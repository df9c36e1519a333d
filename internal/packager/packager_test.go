package packager

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
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

func writeIgnore(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ignore.txt")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

// zipEntries returns the sorted entry names of the archive at path.
func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func mustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	return wd
}

// ---------------------------------------------------------------------------
// Scenario tests
// ---------------------------------------------------------------------------

func TestRun_IgnoreFileScenario(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":       "a",
		"build/out.o": "o",
		"README.md":   "r",
	})

	r := New(nil).Run(context.Background(), Options{
		SourceFolder:    src,
		IgnoreFile:      writeIgnore(t, "build/ # generated output\n"),
		OutputName:      "site",
		OutputDirectory: out,
	})

	if r.Status != StatusSucceeded {
		t.Fatalf("Status = %s, message %q", r.Status, r.Message())
	}
	if r.Message() != "SUCCESS!" {
		t.Errorf("Message = %q, want SUCCESS!", r.Message())
	}
	if r.State != StateSucceeded {
		t.Errorf("State = %s, want succeeded", r.State)
	}
	if r.FilesWritten != 2 {
		t.Errorf("FilesWritten = %d, want 2", r.FilesWritten)
	}
	if want := filepath.Join(out, "site.zip"); r.ArchivePath != want {
		t.Errorf("ArchivePath = %q, want %q", r.ArchivePath, want)
	}

	got := zipEntries(t, r.ArchivePath)
	if want := []string{"README.md", "a.txt"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %q, want %q", got, want)
	}
	if ex := r.Excluded(); len(ex) != 1 || ex[0] != "build/out.o" {
		t.Errorf("Excluded = %q, want [build/out.o]", ex)
	}
}

func TestRun_NoIgnoreFileIncludesEverything(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":        "a",
		"sub/b.txt":    "b",
		"sub/deep/c.o": "c",
	})

	r := New(nil).Run(context.Background(), Options{SourceFolder: src, OutputDirectory: out})
	if r.Status != StatusSucceeded {
		t.Fatalf("Run: %s", r.Message())
	}

	got := zipEntries(t, r.ArchivePath)
	if want := []string{"a.txt", "sub/b.txt", "sub/deep/c.o"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %q, want %q", got, want)
	}
	if len(r.Patterns) != 0 {
		t.Errorf("Patterns = %q, want none", r.Patterns)
	}
	// Default name is the source folder's base name.
	if want := filepath.Base(r.SourceFolder) + ".zip"; filepath.Base(r.ArchivePath) != want {
		t.Errorf("archive name = %q, want %q", filepath.Base(r.ArchivePath), want)
	}
}

func TestRun_DefaultIgnoreFileAndOutputInSource(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.txt":             "k",
		"tmp/scratch":          "s",
		ignore.DefaultFileName: "tmp/\n",
	})

	p := New(nil)
	for i := 0; i < 2; i++ {
		r := p.Run(context.Background(), Options{SourceFolder: src, OutputName: "bundle"})
		if r.Status != StatusSucceeded {
			t.Fatalf("run %d: %s", i, r.Message())
		}

		// The archive left by the first run lives in the source folder and
		// must not be packed into the second.
		got := zipEntries(t, r.ArchivePath)
		if want := []string{ignore.DefaultFileName, "keep.txt"}; strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("run %d: entries = %q, want %q", i, got, want)
		}
	}
}

func TestRun_MissingSourceFolder(t *testing.T) {
	out := t.TempDir()
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	r := New(nil).Run(context.Background(), Options{
		SourceFolder:    missing,
		OutputName:      "x",
		OutputDirectory: out,
	})

	if r.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", r.Status)
	}
	if !errors.Is(r.Err, ErrInvalidSourceFolder) {
		t.Errorf("Err = %v, want ErrInvalidSourceFolder", r.Err)
	}
	if r.FailedIn != StateResolvingPaths {
		t.Errorf("FailedIn = %s, want resolving_paths", r.FailedIn)
	}
	if r.Message() != r.Err.Error() {
		t.Errorf("Message = %q, want error text", r.Message())
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output directory has %d entries, want none", len(entries))
	}
}

func TestRun_SourceIsFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"file.txt": "x"})

	r := New(nil).Run(context.Background(), Options{SourceFolder: filepath.Join(dir, "file.txt")})
	if !errors.Is(r.Err, ErrInvalidSourceFolder) {
		t.Errorf("Err = %v, want ErrInvalidSourceFolder", r.Err)
	}
}

// ---------------------------------------------------------------------------
// Property tests
// ---------------------------------------------------------------------------

func TestRun_IdempotentAndRoundTrip(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":          "a",
		"docs/index.md":  "d",
		"docsite/x.html": "x",
		"lib/util.go":    "u",
		"secret.txt.bak": "s",
	})
	ignoreFile := writeIgnore(t, "docs\nsecret.txt\n")

	opts := Options{SourceFolder: src, IgnoreFile: ignoreFile, OutputDirectory: out, OutputName: "rt"}
	p := New(nil)

	r1 := p.Run(context.Background(), opts)
	e1 := zipEntries(t, r1.ArchivePath)
	r2 := p.Run(context.Background(), opts)
	e2 := zipEntries(t, r2.ArchivePath)

	if strings.Join(e1, ",") != strings.Join(e2, ",") || r1.FilesWritten != r2.FilesWritten {
		t.Errorf("runs differ: %q (%d) vs %q (%d)", e1, r1.FilesWritten, e2, r2.FilesWritten)
	}

	m := ignore.NewMatcher([]string{"docs", "secret.txt"})
	var want []string
	for _, d := range r2.Decisions {
		if !m.Match(d.RelPath) {
			want = append(want, d.RelPath)
		}
	}
	if strings.Join(e2, ",") != strings.Join(sorted(want), ",") {
		t.Errorf("entries = %q, want %q", e2, sorted(want))
	}
	if strings.Join(e2, ",") != "a.txt,lib/util.go" {
		t.Errorf("entries = %q, want [a.txt lib/util.go]", e2)
	}
}

func TestRun_OverwritesExistingArchive(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeTree(t, src, map[string]string{"old.txt": "o", "new.txt": "n"})
	opts := Options{SourceFolder: src, OutputDirectory: out, OutputName: "ow"}

	if r := New(nil).Run(context.Background(), opts); r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}
	if err := os.Remove(filepath.Join(src, "old.txt")); err != nil {
		t.Fatal(err)
	}

	r := New(nil).Run(context.Background(), opts)
	if r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}
	if got := zipEntries(t, r.ArchivePath); len(got) != 1 || got[0] != "new.txt" {
		t.Errorf("entries = %q, want [new.txt]", got)
	}
}

func TestRun_ArchiveContentsRoundTrip(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	body := strings.Repeat("compressible ", 500)
	writeTree(t, src, map[string]string{"big.txt": body})

	r := New(nil).Run(context.Background(), Options{SourceFolder: src, OutputDirectory: out})
	if r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}

	zr, err := zip.OpenReader(r.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	f := zr.File[0]
	if f.Method != zip.Deflate {
		t.Errorf("Method = %d, want Deflate", f.Method)
	}
	rc, err := f.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != body {
		t.Error("decompressed content does not match source")
	}
}

// ---------------------------------------------------------------------------
// Failure handling
// ---------------------------------------------------------------------------

func TestRun_EntryFailureContinues(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", "z.txt": "z"})
	if err := os.Symlink(filepath.Join(src, "gone"), filepath.Join(src, "m-dangling")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	r := New(nil).Run(context.Background(), Options{SourceFolder: src, OutputDirectory: out})

	if r.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", r.Status)
	}
	if r.FailedIn != StateFinalizing {
		t.Errorf("FailedIn = %s, want finalizing", r.FailedIn)
	}
	if r.FilesWritten != 2 {
		t.Errorf("FilesWritten = %d, want 2", r.FilesWritten)
	}
	if len(r.EntryErrors) != 1 || r.EntryErrors[0].RelPath != "m-dangling" {
		t.Fatalf("EntryErrors = %v, want one for m-dangling", r.EntryErrors)
	}
	if !errors.Is(r.EntryErrors[0], ErrEntryWriteFailed) {
		t.Error("EntryError does not match ErrEntryWriteFailed")
	}
	if !errors.Is(r.Err, ErrEntryWriteFailed) {
		t.Errorf("Err = %v, want ErrEntryWriteFailed", r.Err)
	}

	var entryErr *EntryError
	if !errors.As(r.Err, &entryErr) {
		t.Error("Err does not carry the *EntryError")
	}
	if got := zipEntries(t, r.ArchivePath); strings.Join(got, ",") != "a.txt,z.txt" {
		t.Errorf("entries = %q, want [a.txt z.txt]", got)
	}
}

func TestRun_ArchiveCreationFailed(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})
	before := mustGetwd(t)

	r := New(nil).Run(context.Background(), Options{
		SourceFolder:    src,
		OutputDirectory: filepath.Join(t.TempDir(), "missing", "dir"),
	})

	if !errors.Is(r.Err, ErrArchiveCreationFailed) {
		t.Fatalf("Err = %v, want ErrArchiveCreationFailed", r.Err)
	}
	if r.FailedIn != StateWriting {
		t.Errorf("FailedIn = %s, want writing", r.FailedIn)
	}
	if r.FilesWritten != 0 {
		t.Errorf("FilesWritten = %d, want 0", r.FilesWritten)
	}
	if after := mustGetwd(t); after != before {
		t.Errorf("working directory = %q, want %q", after, before)
	}
}

func TestRun_RejectExternalSymlinks(t *testing.T) {
	src := t.TempDir()
	external := t.TempDir()
	writeTree(t, external, map[string]string{"outside.txt": "x"})
	if err := os.Symlink(filepath.Join(external, "outside.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	out := t.TempDir()

	r := New(nil).Run(context.Background(), Options{
		SourceFolder:           src,
		OutputDirectory:        out,
		RejectExternalSymlinks: true,
	})
	if !errors.Is(r.Err, ErrSymlinkEscape) {
		t.Fatalf("Err = %v, want ErrSymlinkEscape", r.Err)
	}
	var escape *bundle.SymlinkEscapeError
	if !errors.As(r.Err, &escape) || escape.Path != "link.txt" {
		t.Errorf("Err = %v, want *SymlinkEscapeError for link.txt", r.Err)
	}
	if _, err := os.Stat(r.ArchivePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive exists after rejected run: %v", err)
	}

	// Without the option the link target is archived.
	r = New(nil).Run(context.Background(), Options{SourceFolder: src, OutputDirectory: out})
	if r.Status != StatusSucceeded {
		t.Errorf("Run without rejection: %s", r.Message())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(nil).Run(ctx, Options{SourceFolder: src, OutputDirectory: t.TempDir()})
	if !errors.Is(r.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", r.Err)
	}
}

// ---------------------------------------------------------------------------
// Working directory and hooks
// ---------------------------------------------------------------------------

func TestRun_RestoresWorkingDirectory(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})
	before := mustGetwd(t)

	cases := map[string]Options{
		"success":        {SourceFolder: src, OutputDirectory: t.TempDir()},
		"invalid source": {SourceFolder: filepath.Join(src, "nope")},
		"bad output":     {SourceFolder: src, OutputDirectory: filepath.Join(src, "no", "such")},
	}
	for name, opts := range cases {
		var during string
		p := New(nil).OnAfter(func(context.Context) error {
			during = mustGetwd(t)
			return nil
		})
		p.Run(context.Background(), opts)

		if after := mustGetwd(t); after != before {
			t.Errorf("%s: working directory = %q, want %q", name, after, before)
		}
		if during != before {
			t.Errorf("%s: after hook saw working directory %q, want %q", name, during, before)
		}
	}
}

func TestRun_HooksFireOnce(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	for _, opts := range []Options{
		{SourceFolder: src, OutputDirectory: t.TempDir()},
		{SourceFolder: filepath.Join(src, "missing")},
	} {
		var order []string
		p := New(nil).
			OnBefore(func(context.Context) error { order = append(order, "before"); return nil }).
			OnAfter(func(context.Context) error { order = append(order, "after"); return nil })

		p.Run(context.Background(), opts)
		if strings.Join(order, ",") != "before,after" {
			t.Errorf("hook order = %q, want [before after]", order)
		}
	}
}

func TestRun_HookErrorsDoNotChangeStatus(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})
	boom := errors.New("boom")

	p := New(nil).
		OnBefore(func(context.Context) error { return boom }).
		OnAfter(func(context.Context) error { return boom })

	r := p.Run(context.Background(), Options{SourceFolder: src, OutputDirectory: t.TempDir()})
	if r.Status != StatusSucceeded {
		t.Errorf("Status = %s, want succeeded", r.Status)
	}
	if len(r.HookErrors) != 2 {
		t.Fatalf("HookErrors = %v, want 2", r.HookErrors)
	}
	for _, err := range r.HookErrors {
		if !errors.Is(err, boom) {
			t.Errorf("hook error %v does not wrap boom", err)
		}
	}
}

func TestRun_BeforeHookSeesFreshSource(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	p := New(nil).OnBefore(func(context.Context) error {
		return os.WriteFile(filepath.Join(src, "generated.txt"), []byte("g"), 0644)
	})
	r := p.Run(context.Background(), Options{SourceFolder: src, OutputDirectory: out})
	if r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}
	if got := zipEntries(t, r.ArchivePath); len(got) != 1 || got[0] != "generated.txt" {
		t.Errorf("entries = %q, want [generated.txt]", got)
	}
}

// ---------------------------------------------------------------------------
// Ignore cache
// ---------------------------------------------------------------------------

func TestRun_CacheDoesNotLeakBetweenIgnoreFiles(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", "b.txt": "b"})

	p := New(ignore.NewCache())
	ignoreA := writeIgnore(t, "a.txt\n")
	ignoreB := writeIgnore(t, "b.txt\n")

	r1 := p.Run(context.Background(), Options{SourceFolder: src, IgnoreFile: ignoreA, OutputDirectory: t.TempDir()})
	r2 := p.Run(context.Background(), Options{SourceFolder: src, IgnoreFile: ignoreB, OutputDirectory: t.TempDir()})

	if got := zipEntries(t, r1.ArchivePath); strings.Join(got, ",") != "b.txt" {
		t.Errorf("first run entries = %q, want [b.txt]", got)
	}
	if got := zipEntries(t, r2.ArchivePath); strings.Join(got, ",") != "a.txt" {
		t.Errorf("second run entries = %q, want [a.txt]", got)
	}
	if p.Cache().Len() != 2 {
		t.Errorf("cache holds %d matchers, want 2", p.Cache().Len())
	}
}

func TestRun_BeforeHookRewritesCachedIgnoreFile(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":       "a",
		"build/out.o": "o",
		".zipignore":  "nothing-matches\n",
	})
	cache := ignore.NewCache()
	opts := Options{SourceFolder: src, OutputDirectory: t.TempDir()}

	// Plan-time selection memoizes the original ignore file.
	if _, err := Select(context.Background(), cache, opts); err != nil {
		t.Fatalf("Select: %v", err)
	}

	p := New(cache).OnBefore(func(context.Context) error {
		return os.WriteFile(filepath.Join(src, ".zipignore"), []byte("build/\n.zipignore\n"), 0644)
	})
	r := p.Run(context.Background(), opts)
	if r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}
	if got := zipEntries(t, r.ArchivePath); strings.Join(got, ",") != "a.txt" {
		t.Errorf("entries = %q, want [a.txt]", got)
	}
}

// ---------------------------------------------------------------------------
// Relative paths
// ---------------------------------------------------------------------------

func TestRun_RelativeIgnoreFileResolvesInSource(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":         "a",
		"build/out.o":   "o",
		"custom.ignore": "build/\ncustom.ignore\n",
	})

	r := New(nil).Run(context.Background(), Options{
		SourceFolder:    src,
		IgnoreFile:      "custom.ignore",
		OutputDirectory: t.TempDir(),
	})
	if r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}
	if want := filepath.Join(r.SourceFolder, "custom.ignore"); r.IgnoreFile != want {
		t.Errorf("IgnoreFile = %q, want %q", r.IgnoreFile, want)
	}
	if got := zipEntries(t, r.ArchivePath); strings.Join(got, ",") != "a.txt" {
		t.Errorf("entries = %q, want [a.txt]", got)
	}

	sel, err := Select(context.Background(), nil, Options{SourceFolder: src, IgnoreFile: "custom.ignore"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := sel.Included(); strings.Join(got, ",") != "a.txt" {
		t.Errorf("Select included = %q, want [a.txt]", got)
	}
}

func TestRun_RelativeOutputDirectoryResolvesInSource(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":        "a",
		"dist/keep.md": "k",
		".zipignore":   "dist/\n",
	})

	r := New(nil).Run(context.Background(), Options{
		SourceFolder:    src,
		OutputDirectory: "dist",
		OutputName:      "site",
	})
	if r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}
	if want := filepath.Join(r.SourceFolder, "dist", "site.zip"); r.ArchivePath != want {
		t.Errorf("ArchivePath = %q, want %q", r.ArchivePath, want)
	}
	if got := zipEntries(t, r.ArchivePath); strings.Join(got, ",") != ".zipignore,a.txt" {
		t.Errorf("entries = %q, want [.zipignore a.txt]", got)
	}
}

func TestRun_ExcludeSecrets(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"main.go":       "m",
		".env":          "SECRET=1",
		".env.example":  "SECRET=",
		"certs/tls.pem": "p",
	})

	r := New(nil).Run(context.Background(), Options{
		SourceFolder:    src,
		OutputDirectory: t.TempDir(),
		ExcludeSecrets:  true,
	})
	if r.Status != StatusSucceeded {
		t.Fatal(r.Message())
	}
	if got := zipEntries(t, r.ArchivePath); strings.Join(got, ",") != ".env.example,main.go" {
		t.Errorf("entries = %q, want [.env.example main.go]", got)
	}
	for _, d := range r.Decisions {
		if !d.Included && d.Reason != ReasonSecret {
			t.Errorf("%s excluded with reason %q, want %q", d.RelPath, d.Reason, ReasonSecret)
		}
	}
}

// ---------------------------------------------------------------------------
// Select
// ---------------------------------------------------------------------------

func TestSelect(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":       "a",
		"build/out.o": "o",
	})
	ignoreFile := writeIgnore(t, "build/\n")

	sel, err := Select(context.Background(), nil, Options{SourceFolder: src, IgnoreFile: ignoreFile})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := sel.Included(); len(got) != 1 || got[0] != "a.txt" {
		t.Errorf("Included = %q, want [a.txt]", got)
	}
	if got := sel.Excluded(); len(got) != 1 || got[0] != "build/out.o" {
		t.Errorf("Excluded = %q, want [build/out.o]", got)
	}
	if len(sel.Patterns) != 1 || sel.Patterns[0] != "build/" {
		t.Errorf("Patterns = %q, want [build/]", sel.Patterns)
	}

	h1, err := sel.SourceHash()
	if err != nil {
		t.Fatalf("SourceHash: %v", err)
	}
	// Changing an excluded file does not change the hash.
	writeTree(t, src, map[string]string{"build/out.o": "changed"})
	h2, _ := sel.SourceHash()
	if h1 != h2 {
		t.Error("source hash changed after editing an excluded file")
	}
	writeTree(t, src, map[string]string{"a.txt": "changed"})
	h3, _ := sel.SourceHash()
	if h1 == h3 {
		t.Error("source hash unchanged after editing an included file")
	}

	if _, err := os.Stat(sel.ArchivePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Select wrote an archive: %v", err)
	}
}

func TestEntryHashes_MatchSelectionHash(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":       "alpha",
		"sub/b.txt":   "beta",
		"build/out.o": "o",
	})
	ignoreFile := writeIgnore(t, "build/\n")
	opts := Options{SourceFolder: src, IgnoreFile: ignoreFile, OutputDirectory: t.TempDir()}

	r := New(nil).Run(context.Background(), opts)
	if r.Status != StatusSucceeded {
		t.Fatalf("Run: %v", r.Err)
	}

	hashes, err := EntryHashes(r.ArchivePath)
	if err != nil {
		t.Fatalf("EntryHashes: %v", err)
	}
	if len(hashes) != 2 || hashes["a.txt"] != bundle.ComputeFileHashBytes([]byte("alpha")) {
		t.Errorf("EntryHashes = %v", hashes)
	}

	sel, err := Select(context.Background(), nil, opts)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want, err := sel.SourceHash()
	if err != nil {
		t.Fatal(err)
	}
	if got := bundle.ComputeSourceHash(hashes); got != want {
		t.Errorf("archive source hash = %s, selection source hash = %s", got, want)
	}
}

func TestEntryHashes_NotAnArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.zip")
	if err := os.WriteFile(p, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := EntryHashes(p); err == nil {
		t.Error("expected error for a non-zip file")
	}
}

func TestSelect_InvalidSource(t *testing.T) {
	_, err := Select(context.Background(), nil, Options{SourceFolder: filepath.Join(t.TempDir(), "x")})
	if !errors.Is(err, ErrInvalidSourceFolder) {
		t.Errorf("err = %v, want ErrInvalidSourceFolder", err)
	}
}

func TestState_String(t *testing.T) {
	if StateWriting.String() != "writing" || State(99).String() != "unknown" {
		t.Errorf("unexpected state names: %s %s", StateWriting, State(99))
	}
}
