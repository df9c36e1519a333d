// Package acctest holds shared helpers for the provider's acceptance tests.
// Every test runs against in-process memory targets, so no cloud
// credentials are needed.
package acctest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/provider"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

// TestProtoV6ProviderFactories is a map of provider factory functions
// suitable for use with the terraform-plugin-testing framework.
var TestProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"zipbundle": providerserver.NewProtocol6WithError(provider.New("test")()),
}

// SetupTest resets the global MemoryTarget registry so each test starts
// with a clean slate.
func SetupTest(t *testing.T) {
	t.Helper()
	target.ResetMemoryTargets()
	t.Cleanup(func() {
		target.ResetMemoryTargets()
	})
}

// CreateTempSourceDir creates a temporary directory with the given files
// and returns the absolute path. The files map keys are relative paths and
// values are file contents.
func CreateTempSourceDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// WriteFiles writes files under dir, creating parent directories.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		fullPath := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			t.Fatalf("failed to create parent dir for %s: %s", relPath, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write file %s: %s", relPath, err)
		}
	}
}

// ProviderConfigLocal returns an HCL snippet that configures the provider
// without any targets.
func ProviderConfigLocal() string {
	return `
provider "zipbundle" {}
`
}

// ProviderConfigMemory returns an HCL snippet that configures the provider
// with a single memory target.
func ProviderConfigMemory(targetName string) string {
	return fmt.Sprintf(`
provider "zipbundle" {
  target {
    name = %q
    type = "memory"
  }
}
`, targetName)
}

// ProviderConfigMemoryMulti returns an HCL snippet that configures the
// provider with multiple memory targets and optional default_targets.
func ProviderConfigMemoryMulti(names []string, defaults []string) string {
	var b strings.Builder
	b.WriteString("\nprovider \"zipbundle\" {\n")
	if len(defaults) > 0 {
		quoted := make([]string, len(defaults))
		for i, d := range defaults {
			quoted[i] = fmt.Sprintf("%q", d)
		}
		fmt.Fprintf(&b, "  default_targets = [%s]\n", strings.Join(quoted, ", "))
	}
	for _, n := range names {
		fmt.Fprintf(&b, "\n  target {\n    name = %q\n    type = \"memory\"\n  }\n", n)
	}
	b.WriteString("}\n")
	return b.String()
}

// ReadMemoryObject returns the body of key on the named memory target, or
// "" when it does not exist.
func ReadMemoryObject(t *testing.T, targetName, key string) string {
	t.Helper()
	rc, _, err := target.GetOrCreateMemoryTarget(targetName).Get(context.Background(), key)
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading %s:%s: %s", targetName, key, err)
	}
	return string(data)
}

// CountMemoryObjects returns the number of objects under prefix on the
// named memory target.
func CountMemoryObjects(t *testing.T, targetName, prefix string) int {
	t.Helper()
	objs, err := target.GetOrCreateMemoryTarget(targetName).List(context.Background(), prefix)
	if err != nil {
		t.Fatalf("listing %s:%s: %s", targetName, prefix, err)
	}
	return len(objs)
}

// DeleteMemoryObjects removes every object under prefix on the named memory
// target, simulating an out-of-band delete.
func DeleteMemoryObjects(t *testing.T, targetName, prefix string) {
	t.Helper()
	ctx := context.Background()
	tgt := target.GetOrCreateMemoryTarget(targetName)
	objs, err := tgt.List(ctx, prefix)
	if err != nil {
		t.Fatalf("listing %s:%s: %s", targetName, prefix, err)
	}
	for _, o := range objs {
		if err := tgt.Delete(ctx, o.Key); err != nil {
			t.Fatalf("deleting %s:%s: %s", targetName, o.Key, err)
		}
	}
}
