package ignore

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// secretRule is one hardcoded credential exclusion. At most one of the
// fields is set; they are checked in order: matchFunc, prefix+exact, glob.
type secretRule struct {
	prefix    string
	exact     string
	glob      string
	matchFunc func(relPath string) bool
}

var secretRules = []secretRule{
	{prefix: ".git/", exact: ".git"},
	{prefix: ".aws/", exact: ".aws"},
	{prefix: ".ssh/", exact: ".ssh"},
	{matchFunc: matchDotEnv},
	{glob: "**/*.pem"},
	{glob: "**/*.key"},
	{glob: "**/*.p12"},
	{glob: "**/*.pfx"},
	{glob: "**/*.jks"},
	{matchFunc: matchSSHKey},
}

// SecretRules reports whether relPath names a credential or secret store that
// should never be shipped: VCS metadata, cloud and SSH config directories,
// dotenv files, private keys and keystores.
//
// These rules sit outside the .zipignore syntax and are only consulted when a
// packaging run opts in.
func SecretRules(relPath string) bool {
	for _, r := range secretRules {
		if r.matches(relPath) {
			return true
		}
	}
	return false
}

func (r secretRule) matches(rel string) bool {
	if r.matchFunc != nil {
		return r.matchFunc(rel)
	}
	if r.prefix != "" && strings.HasPrefix(rel, r.prefix) {
		return true
	}
	if r.exact != "" && rel == r.exact {
		return true
	}
	if r.glob != "" {
		matched, _ := doublestar.Match(r.glob, rel)
		return matched
	}
	return false
}

// matchDotEnv matches .env and .env.* except .env.example and .env.template.
func matchDotEnv(rel string) bool {
	base := path.Base(rel)
	if base == ".env" {
		return true
	}
	if suffix, ok := strings.CutPrefix(base, ".env."); ok {
		return suffix != "example" && suffix != "template"
	}
	return false
}

func matchSSHKey(rel string) bool {
	base := path.Base(rel)
	return base == "id_rsa" || base == "id_ed25519"
}
