// Package report renders the outcome of a packaging run the way an operator
// reads it in a terminal: one ADDED or IGNORED line per file, then the file
// count and the status. A YAML form carries the same data for machines.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/packager"
)

// Format names accepted by Render.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Ignored is one excluded file and the rule that excluded it.
type Ignored struct {
	Path   string `yaml:"path"`
	Reason string `yaml:"reason"`
}

// Publication describes where the archive was published.
type Publication struct {
	Target        string `yaml:"target"`
	PublicationID string `yaml:"publication_id"`
	ArchiveHash   string `yaml:"archive_hash,omitempty"`
}

// Report is the renderable summary of one run.
type Report struct {
	SourceFolder string        `yaml:"source_folder"`
	ArchivePath  string        `yaml:"archive_path"`
	Added        []string      `yaml:"added"`
	Ignored      []Ignored     `yaml:"ignored"`
	Files        int           `yaml:"files"`
	Status       string        `yaml:"status"`
	EntryErrors  []string      `yaml:"entry_errors,omitempty"`
	HookErrors   []string      `yaml:"hook_errors,omitempty"`
	Publications []Publication `yaml:"publications,omitempty"`
}

// FromResult builds a Report from a packager result. Decisions keep their
// discovery order.
func FromResult(r *packager.Result) *Report {
	rep := &Report{
		SourceFolder: r.SourceFolder,
		ArchivePath:  r.ArchivePath,
		Added:        []string{},
		Ignored:      []Ignored{},
		Files:        r.FilesWritten,
		Status:       r.Message(),
	}
	for _, d := range r.Decisions {
		if d.Included {
			rep.Added = append(rep.Added, d.RelPath)
		} else {
			rep.Ignored = append(rep.Ignored, Ignored{Path: d.RelPath, Reason: d.Reason})
		}
	}
	for _, e := range r.EntryErrors {
		rep.EntryErrors = append(rep.EntryErrors, e.Error())
	}
	for _, e := range r.HookErrors {
		rep.HookErrors = append(rep.HookErrors, e.Error())
	}
	return rep
}

// Render formats rep as text or YAML.
func Render(rep *Report, format string) (string, error) {
	switch format {
	case "", FormatText:
		return Text(rep), nil
	case FormatYAML:
		return YAML(rep)
	default:
		return "", fmt.Errorf("report: unknown format %q", format)
	}
}

// Text renders rep in the console layout.
func Text(rep *Report) string {
	var b strings.Builder

	if rep.SourceFolder != "" {
		fmt.Fprintf(&b, "%s => %s\n", rep.SourceFolder, filepath.Base(rep.ArchivePath))
	}
	for _, p := range rep.Added {
		fmt.Fprintf(&b, "ADDED  : %s\n", p)
	}
	for _, ig := range rep.Ignored {
		fmt.Fprintf(&b, "IGNORED: %s\n", ig.Path)
	}
	for _, e := range rep.EntryErrors {
		fmt.Fprintf(&b, "ERROR  : %s\n", e)
	}
	fmt.Fprintf(&b, "FILES  : %d\n", rep.Files)
	fmt.Fprintf(&b, "STATUS : %s\n", rep.Status)
	for _, e := range rep.HookErrors {
		fmt.Fprintf(&b, "HOOK   : %s\n", e)
	}
	for _, p := range rep.Publications {
		fmt.Fprintf(&b, "PUBLISH: %s %s", p.Target, p.PublicationID)
		if p.ArchiveHash != "" {
			fmt.Fprintf(&b, " (%s)", truncateHash(p.ArchiveHash))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// YAML renders rep as a YAML document.
func YAML(rep *Report) (string, error) {
	out, err := yaml.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("report: marshal yaml: %w", err)
	}
	return string(out), nil
}

// Summary returns a single-line summary of rep.
func Summary(rep *Report) string {
	return fmt.Sprintf("%d file(s) added, %d ignored, %d published: %s",
		len(rep.Added), len(rep.Ignored), len(rep.Publications), rep.Status)
}

// truncateHash shortens "sha256:<hex>" to the prefix plus 8 hex characters.
func truncateHash(h string) string {
	const prefix = "sha256:"
	if hex, ok := strings.CutPrefix(h, prefix); ok {
		if len(hex) > 8 {
			hex = hex[:8]
		}
		return prefix + hex
	}
	if len(h) > 15 {
		return h[:15]
	}
	return h
}
