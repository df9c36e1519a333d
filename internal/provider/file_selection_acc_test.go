package provider_test

import (
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/hashicorp/terraform-plugin-testing/helper/resource"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/acctest"
)

func TestAccFileSelectionDataSource_Basic(t *testing.T) {
	acctest.SetupTest(t)

	sourceDir := acctest.CreateTempSourceDir(t, map[string]string{
		".zipignore":     "# build output\nbuild/\nnotes.txt\n",
		"index.html":     "<html></html>",
		"notes.txt":      "private",
		"build/app.js":   "compiled",
		"assets/app.css": "body {}",
	})

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfigLocal() + fmt.Sprintf(`
data "zipbundle_file_selection" "test" {
  source_dir = %q
}
`, sourceDir),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("data.zipbundle_file_selection.test", "patterns.#", "2"),
					resource.TestCheckResourceAttr("data.zipbundle_file_selection.test", "patterns.0", "build/"),
					resource.TestCheckResourceAttr("data.zipbundle_file_selection.test", "patterns.1", "notes.txt"),
					resource.TestCheckResourceAttr("data.zipbundle_file_selection.test", "included_files.#", "3"),
					resource.TestCheckTypeSetElemAttr("data.zipbundle_file_selection.test", "included_files.*", "index.html"),
					resource.TestCheckTypeSetElemAttr("data.zipbundle_file_selection.test", "included_files.*", "assets/app.css"),
					resource.TestCheckTypeSetElemAttr("data.zipbundle_file_selection.test", "included_files.*", ".zipignore"),
					resource.TestCheckResourceAttr("data.zipbundle_file_selection.test", "excluded_files.#", "2"),
					resource.TestCheckTypeSetElemAttr("data.zipbundle_file_selection.test", "excluded_files.*", "notes.txt"),
					resource.TestCheckTypeSetElemAttr("data.zipbundle_file_selection.test", "excluded_files.*", "build/app.js"),
					resource.TestMatchResourceAttr("data.zipbundle_file_selection.test", "source_hash", regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)),
				),
			},
		},
	})
}

// The data source and the archive resource agree on the selection hash, so
// configurations can gate on source_hash before packaging.
func TestAccFileSelectionDataSource_MatchesArchive(t *testing.T) {
	acctest.SetupTest(t)

	sourceDir := acctest.CreateTempSourceDir(t, map[string]string{
		"a.txt":      "alpha",
		"b/c.txt":    "gamma",
		".zipignore": "skip/\n",
		"skip/x.tmp": "tmp",
	})

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfigLocal() + fmt.Sprintf(`
data "zipbundle_file_selection" "test" {
  source_dir = %q
}

resource "zipbundle_archive" "test" {
  source_dir = %q
  output_dir = %q
}
`, sourceDir, sourceDir, t.TempDir()),
				Check: resource.TestCheckResourceAttrPair(
					"data.zipbundle_file_selection.test", "source_hash",
					"zipbundle_archive.test", "source_hash",
				),
			},
		},
	})
}

func TestAccFileSelectionDataSource_MissingSourceDir(t *testing.T) {
	acctest.SetupTest(t)

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfigLocal() + fmt.Sprintf(`
data "zipbundle_file_selection" "test" {
  source_dir = %q
}
`, filepath.Join(t.TempDir(), "missing")),
				ExpectError: regexp.MustCompile("Invalid Source Directory"),
			},
		},
	})
}
